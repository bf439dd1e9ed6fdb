package wavio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
)

// Part は先頭に無音を挟んで結合するセグメントです。
type Part struct {
	Segment        Segment
	LeadingSilence time.Duration
}

// Stats は書き出したWAVファイルの情報です。
type Stats struct {
	Format   Format
	Frames   int
	Duration time.Duration
}

// Assemble は parts を順に結合して path へWAVファイルとして書き出します。
// 先頭パートのフォーマットを基準とし、異なるフォーマットのパートがあれば何も書かずに
// ErrFormatMismatch を返します。書き出しは同じディレクトリの一時ファイルに対して行い、
// 成功した場合のみ path へリネームします。
func Assemble(path string, parts []Part) (Stats, error) {
	if len(parts) == 0 {
		return Stats{}, errors.New("結合するセグメントがありません")
	}

	ref := parts[0].Segment.Format
	if ref.SampleRate <= 0 || ref.NumChannels <= 0 {
		return Stats{}, fmt.Errorf("基準セグメントのフォーマットが不正です: %s", ref)
	}
	for i, p := range parts[1:] {
		if p.Segment.Format != ref {
			return Stats{}, &ErrFormatMismatch{Index: i + 1, Want: ref, Got: p.Segment.Format}
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Stats{}, &ErrIO{Op: "作成", Path: path, WrappedErr: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	// CreateTemp は 0600 で作成するため通常のファイルと同じ権限に揃える
	if err := tmp.Chmod(0o644); err != nil {
		return Stats{}, &ErrIO{Op: "作成", Path: tmpPath, WrappedErr: err}
	}

	enc := wav.NewEncoder(tmp, ref.SampleRate, ref.BitDepth, ref.NumChannels, 1)
	frames := 0
	for _, p := range parts {
		if n := SilenceFrames(ref.SampleRate, p.LeadingSilence); n > 0 {
			if err := enc.Write(silence(ref, n)); err != nil {
				return Stats{}, &ErrIO{Op: "書き込み", Path: tmpPath, WrappedErr: err}
			}
			frames += n
		}
		// 空のセグメントでも書き込み、データチャンクのヘッダを必ず出力する
		if err := enc.Write(p.Segment.buffer()); err != nil {
			return Stats{}, &ErrIO{Op: "書き込み", Path: tmpPath, WrappedErr: err}
		}
		frames += p.Segment.Frames()
	}

	if err := enc.Close(); err != nil {
		return Stats{}, &ErrIO{Op: "ヘッダの確定", Path: tmpPath, WrappedErr: err}
	}
	if err := tmp.Close(); err != nil {
		return Stats{}, &ErrIO{Op: "クローズ", Path: tmpPath, WrappedErr: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		committed = true
		return Stats{}, &ErrIO{Op: "リネーム", Path: path, WrappedErr: err}
	}
	committed = true

	return Stats{
		Format:   ref,
		Frames:   frames,
		Duration: time.Duration(frames) * time.Second / time.Duration(ref.SampleRate),
	}, nil
}
