// Package naming は生成したWAVファイルの出力先ディレクトリとファイル名を決定します。
//
// 1回のバッチは出力ルート直下の "{最小桁}-{最大桁}-{口数}-{タイムスタンプ}" ディレクトリにまとめ、
// 各問題は "{通し番号}-{加算|加減算}.wav" として保存します。
package naming

import (
	"fmt"
	"os"
	"time"

	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
)

// TimestampLayout はバッチディレクトリ名に使う時刻の書式です。
const TimestampLayout = "20060102150405"

// Timestamp はバッチ開始時刻をディレクトリ名用の文字列にします。
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// DirectoryFor はバッチディレクトリ名を返します。
func DirectoryFor(cfg problem.Config, ts string) string {
	return fmt.Sprintf("%d-%d-%d-%s", cfg.MinDigit, cfg.MaxDigit, cfg.Length, ts)
}

// Label は実際に使われた引き算の口数から種別ラベルを返します。
func Label(subtractions int) string {
	return problem.KindOf(subtractions)
}

// FileNameFor は ordinal 番目 (1 始まり) の問題のファイル名を返します。
func FileNameFor(subtractions, ordinal int) string {
	return fmt.Sprintf("%d-%s.wav", ordinal, Label(subtractions))
}

// EnsureDir はディレクトリを作成します。既に存在する場合は何もしません。
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return &ErrIO{Path: path, WrappedErr: err}
	}
	return nil
}

// ErrIO は出力ディレクトリの作成に失敗したことを示します。
type ErrIO struct {
	Path       string
	WrappedErr error
}

func (e *ErrIO) Error() string {
	return fmt.Sprintf("出力ディレクトリの作成に失敗しました (%s): %v", e.Path, e.WrappedErr)
}

func (e *ErrIO) Unwrap() error {
	return e.WrappedErr
}
