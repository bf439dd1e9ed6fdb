package speaker

import "context"

// ----------------------------------------------------------------------
// インターフェース定義
// ----------------------------------------------------------------------

// SpeakerClient は /speakers エンドポイントを呼び出す能力を抽象化するインターフェースです。
// voicevox.Client がこれを満たします。
type SpeakerClient interface {
	GetSpeakers(ctx context.Context) ([]byte, error)
}

// ----------------------------------------------------------------------
// 構造体定義
// ----------------------------------------------------------------------

// DefaultStyleName は話者名だけが指定された場合に選ばれるスタイル名です。
const DefaultStyleName = "ノーマル"

// VVSpeaker はVOICEVOXの /speakers APIの応答JSON構造の一部に対応する型です。
type VVSpeaker struct {
	Name   string `json:"name"`
	Styles []struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	} `json:"styles"`
}

// Style は話者とスタイルの組と、その合成に使うIDです。
type Style struct {
	SpeakerName string
	StyleName   string
	ID          int
}

// Catalog はVOICEVOXから動的に取得した全話者・スタイル情報を保持します。
type Catalog struct {
	styles []Style
	byKey  map[string]int // 例: "青山龍星/ノーマル" -> 13
}

func styleKey(speakerName, styleName string) string {
	return speakerName + "/" + styleName
}

// Styles はエンジンが返した順序のままスタイル一覧を返します。
func (c *Catalog) Styles() []Style {
	out := make([]Style, len(c.styles))
	copy(out, c.styles)
	return out
}

// Resolve は話者名とスタイル名からスタイルIDを検索します。
// styleName が空の場合は DefaultStyleName を使います。
func (c *Catalog) Resolve(speakerName, styleName string) (int, error) {
	if styleName == "" {
		styleName = DefaultStyleName
	}
	id, ok := c.byKey[styleKey(speakerName, styleName)]
	if !ok {
		return 0, &ErrStyleNotFound{SpeakerName: speakerName, StyleName: styleName}
	}
	return id, nil
}
