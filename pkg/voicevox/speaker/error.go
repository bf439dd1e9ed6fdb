package speaker

import "fmt"

// ErrStyleNotFound は指定した話者・スタイルの組がエンジンに存在しないことを示します。
type ErrStyleNotFound struct {
	SpeakerName string
	StyleName   string
}

func (e *ErrStyleNotFound) Error() string {
	return fmt.Sprintf("話者 '%s' のスタイル '%s' が見つかりません", e.SpeakerName, e.StyleName)
}
