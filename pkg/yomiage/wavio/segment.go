package wavio

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Format は PCM のサンプル形式です。
type Format struct {
	SampleRate  int
	BitDepth    int
	NumChannels int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.NumChannels)
}

// Segment は1つの読み上げ文を合成したPCMです。Samples はチャンネル順にインターリーブされています。
type Segment struct {
	Format  Format
	Samples []int
}

// Frames はチャンネルあたりのサンプル数を返します。
func (s Segment) Frames() int {
	if s.Format.NumChannels == 0 {
		return 0
	}
	return len(s.Samples) / s.Format.NumChannels
}

// Duration はセグメントの再生時間を返します。
func (s Segment) Duration() time.Duration {
	if s.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.Format.SampleRate)
}

// DecodeSegment はエンジンが返した WAV データを Segment にデコードします。
func DecodeSegment(data []byte) (Segment, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Segment{}, fmt.Errorf("WAVデータのデコードに失敗しました: %w", err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return Segment{}, fmt.Errorf("WAVデータのフォーマットが不正です (channels=%d, sample_rate=%d)", d.NumChans, d.SampleRate)
	}

	seg := Segment{
		Format: Format{
			SampleRate:  int(d.SampleRate),
			BitDepth:    int(d.BitDepth),
			NumChannels: int(d.NumChans),
		},
		Samples: buf.Data,
	}
	// 末尾の半端なサンプルは捨てる
	if rem := len(seg.Samples) % seg.Format.NumChannels; rem != 0 {
		seg.Samples = seg.Samples[:len(seg.Samples)-rem]
	}
	return seg, nil
}

// SilenceFrames は指定時間の無音に必要なチャンネルあたりのサンプル数です。
func SilenceFrames(sampleRate int, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(float64(sampleRate) * d.Seconds()))
}

func (s Segment) buffer() *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.Format.NumChannels, SampleRate: s.Format.SampleRate},
		Data:           s.Samples,
		SourceBitDepth: s.Format.BitDepth,
	}
}

func silence(f Format, frames int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.NumChannels, SampleRate: f.SampleRate},
		Data:           make([]int, frames*f.NumChannels),
		SourceBitDepth: f.BitDepth,
	}
}
