package voicevox

import (
	"encoding/binary"
	"fmt"

	"github.com/shouni/go-yomiage/pkg/voicevox/api"
)

// ----------------------------------------------------------------------
// 内部ヘルパー関数 (/synthesis 応答の検証とスタブ用WAV生成)
// ----------------------------------------------------------------------

// validateWAV は /synthesis が返したバイト列がRIFF/WAVEであり、
// 'data' チャンクを含むことを確認します。LISTチャンクなどのメタデータはスキップします。
func validateWAV(wavBytes []byte) error {
	if len(wavBytes) < WavTotalHeaderSize {
		return &api.ErrInvalidWAVHeader{
			Details: fmt.Sprintf("WAVデータのサイズが短すぎます (%dバイト)", len(wavBytes)),
		}
	}
	if string(wavBytes[0:RiffChunkIDSize]) != "RIFF" || string(wavBytes[RiffChunkIDSize+RiffChunkSizeField:WavRiffHeaderSize]) != "WAVE" {
		return &api.ErrInvalidWAVHeader{Details: "RIFF/WAVE 識別子が見つかりません"}
	}

	// fmt チャンクの位置からチャンクを順に探索する
	offset := FmtChunkOffset
	for offset+DataChunkHeaderSize <= len(wavBytes) {
		chunkID := string(wavBytes[offset : offset+DataChunkIDSize])
		chunkSize := int(binary.LittleEndian.Uint32(wavBytes[offset+DataChunkIDSize : offset+DataChunkHeaderSize]))

		if chunkID == "data" {
			if offset+DataChunkHeaderSize+chunkSize > len(wavBytes) {
				return &api.ErrInvalidWAVHeader{Details: "dataチャンクのデータ長がファイルサイズを超過しています"}
			}
			return nil
		}

		offset += DataChunkHeaderSize + chunkSize
		// 奇数長のチャンクデータの後にはパディングバイトが入る
		if chunkSize%2 != 0 {
			offset++
		}
	}

	return &api.ErrInvalidWAVHeader{Details: "WAVファイル内に 'data' チャンクが見つかりませんでした"}
}

// encodePCM16 は16bitのPCMサンプルから44バイトヘッダーを持つWAVファイルを構築します。
func encodePCM16(samples []int16, sampleRate, channels int) []byte {
	dataSize := len(samples) * 2
	blockAlign := channels * 2

	wav := make([]byte, WavTotalHeaderSize+dataSize)
	copy(wav[0:], "RIFF")
	// RIFFチャンクサイズは (データサイズ + ヘッダーサイズ) - 8
	binary.LittleEndian.PutUint32(wav[RiffChunkSizeOffset:], uint32(dataSize+WavTotalHeaderSize-(RiffChunkIDSize+RiffChunkSizeField)))
	copy(wav[RiffChunkIDSize+RiffChunkSizeField:], "WAVE")

	copy(wav[FmtChunkOffset:], "fmt ")
	binary.LittleEndian.PutUint32(wav[FmtChunkOffset+FmtChunkIDSize:], FmtChunkSize)
	fmtBody := wav[FmtChunkOffset+FmtChunkIDSize+FmtChunkSizeField:]
	binary.LittleEndian.PutUint16(fmtBody[0:], 1) // リニアPCM
	binary.LittleEndian.PutUint16(fmtBody[2:], uint16(channels))
	binary.LittleEndian.PutUint32(fmtBody[4:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(fmtBody[8:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(fmtBody[12:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(fmtBody[14:], 16)

	copy(wav[DataChunkOffset:], "data")
	binary.LittleEndian.PutUint32(wav[DataChunkSizeOffset:], uint32(dataSize))

	pcm := wav[WavTotalHeaderSize:]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return wav
}
