package voicevox

import "time"

// ----------------------------------------------------------------------
// WAV ファイル定数
// ----------------------------------------------------------------------

const (
	WavTotalHeaderSize  = 44
	DataChunkHeaderSize = 8  // "data" + data_size (8 bytes)
	FmtChunkSize        = 16 // format sub-chunk data size (16 bytes)

	// RIFF/WAVE チャンク (12 bytes)
	RiffChunkIDSize    = 4                                                 // "RIFF"
	RiffChunkSizeField = 4                                                 // File size - 8
	WaveIDSize         = 4                                                 // "WAVE"
	WavRiffHeaderSize  = RiffChunkIDSize + RiffChunkSizeField + WaveIDSize // 12 bytes

	// fmt チャンク (24 bytes)
	FmtChunkIDSize    = 4                                                 // "fmt "
	FmtChunkSizeField = 4                                                 // 16
	WavFmtChunkSize   = FmtChunkIDSize + FmtChunkSizeField + FmtChunkSize // 24 bytes

	// data チャンク (8 bytes)
	DataChunkIDSize = 4 // "data"

	RiffChunkSizeOffset = 4                                   // ファイルサイズが書き込まれる位置
	FmtChunkOffset      = WavRiffHeaderSize                   // "fmt "チャンクの開始位置 (12)
	DataChunkOffset     = WavRiffHeaderSize + WavFmtChunkSize // "data" チャンクの開始位置 (36)
	DataChunkSizeOffset = DataChunkOffset + DataChunkIDSize   // data チャンクのサイズが書き込まれる位置 (40)
)

// ----------------------------------------------------------------------
// エンジン接続定数
// ----------------------------------------------------------------------

const (
	defaultVoicevoxAPIURL = "http://127.0.0.1:50021"
	DefaultClientTimeout  = 60 * time.Second

	// DefaultSpeakerID は「青山龍星 ノーマル」のスタイルIDです。
	DefaultSpeakerID = 13

	// VOICEVOX エンジンの既定出力 (24kHz / 16bit / モノラル)
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	DefaultBitDepth   = 16
)
