package wavio

import "fmt"

// ErrFormatMismatch は結合するセグメントのサンプル形式が一致しないことを示します。
type ErrFormatMismatch struct {
	Index int // 不一致が見つかったパートの位置
	Want  Format
	Got   Format
}

func (e *ErrFormatMismatch) Error() string {
	return fmt.Sprintf("セグメント %d のフォーマットが一致しません (期待値: %s, 実際: %s)", e.Index, e.Want, e.Got)
}

// ErrIO はWAVファイルの書き出しに失敗したことを示します。
type ErrIO struct {
	Op         string
	Path       string
	WrappedErr error
}

func (e *ErrIO) Error() string {
	return fmt.Sprintf("WAVファイルの%sに失敗しました (%s): %v", e.Op, e.Path, e.WrappedErr)
}

func (e *ErrIO) Unwrap() error {
	return e.WrappedErr
}
