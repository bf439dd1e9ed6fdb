package synth

import (
	"fmt"
	"unicode/utf8"
)

const (
	StageAudioQuery = "audio_query"
	StageSynthesis  = "synthesis"
	StageDecode     = "decode"
)

// ErrModelLoad は話者モデルのロードに失敗したことを示します。
type ErrModelLoad struct {
	SpeakerID  int
	WrappedErr error
}

func (e *ErrModelLoad) Error() string {
	return fmt.Sprintf("話者ID %d のモデルロードに失敗しました: %v", e.SpeakerID, e.WrappedErr)
}

func (e *ErrModelLoad) Unwrap() error {
	return e.WrappedErr
}

// ErrSynthesis は読み上げ文の合成に失敗したことを示します。
type ErrSynthesis struct {
	Stage      string
	Text       string
	WrappedErr error
}

func (e *ErrSynthesis) Error() string {
	text := e.Text
	if utf8.RuneCountInString(text) > 30 {
		text = string([]rune(text)[:30]) + "..."
	}
	return fmt.Sprintf("音声合成に失敗しました (段階: %s, テキスト: %q): %v", e.Stage, text, e.WrappedErr)
}

func (e *ErrSynthesis) Unwrap() error {
	return e.WrappedErr
}
