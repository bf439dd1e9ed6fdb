package batch

import (
	"errors"
	"fmt"
)

const (
	StagePrepare    = "prepare"
	StageGenerate   = "generate"
	StageModelLoad  = "model_load"
	StageSynthesize = "synthesize"
	StageWrite      = "write"
)

// ErrBusy は別のバッチが実行中であることを示します。
var ErrBusy = errors.New("別のバッチが実行中です")

// ErrInvalidRequest は生成要求の値が不正であることを示します。
type ErrInvalidRequest struct {
	Field  string
	Reason string
}

func (e *ErrInvalidRequest) Error() string {
	return fmt.Sprintf("生成要求が不正です (%s): %s", e.Field, e.Reason)
}

// ErrBatch はバッチを中断させた失敗です。Iteration は 0 始まりで、準備段階の失敗では -1 です。
type ErrBatch struct {
	Iteration int
	Stage     string
	Err       error
}

func (e *ErrBatch) Error() string {
	if e.Iteration < 0 {
		return fmt.Sprintf("バッチの準備に失敗しました (段階: %s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%d 問目の生成に失敗しました (段階: %s): %v", e.Iteration+1, e.Stage, e.Err)
}

func (e *ErrBatch) Unwrap() error {
	return e.Err
}
