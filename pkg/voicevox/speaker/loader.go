package speaker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shouni/go-yomiage/pkg/voicevox/api"
)

// ----------------------------------------------------------------------
// ロードロジック
// ----------------------------------------------------------------------

// LoadSpeakers は /speakers エンドポイントからデータを取得し、Catalogを構築します。
func LoadSpeakers(ctx context.Context, client SpeakerClient) (*Catalog, error) {
	// 1. API呼び出し
	bodyBytes, err := client.GetSpeakers(ctx)
	if err != nil {
		return nil, err
	}

	// 2. JSONデコード
	var vvSpeakers []VVSpeaker
	if err := json.Unmarshal(bodyBytes, &vvSpeakers); err != nil {
		return nil, &api.ErrInvalidJSON{Details: "/speakers 応答", WrappedErr: err}
	}

	// 3. データ構造の構築
	catalog := &Catalog{byKey: make(map[string]int)}
	for _, spk := range vvSpeakers {
		for _, style := range spk.Styles {
			key := styleKey(spk.Name, style.Name)
			if _, dup := catalog.byKey[key]; dup {
				slog.DebugContext(ctx, "重複したスタイルをスキップします", "speaker", spk.Name, "style", style.Name)
				continue
			}
			catalog.byKey[key] = style.ID
			catalog.styles = append(catalog.styles, Style{SpeakerName: spk.Name, StyleName: style.Name, ID: style.ID})
		}
	}

	slog.InfoContext(ctx, "VOICEVOXスタイルデータが正常にロードされました", "styles_count", len(catalog.styles))

	return catalog, nil
}
