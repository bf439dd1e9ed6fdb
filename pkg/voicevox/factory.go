package voicevox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shouni/go-yomiage/pkg/voicevox/speaker"
)

// Config は VOICEVOX エンジンへの接続と話者選択の設定です。
type Config struct {
	APIURL      string
	Timeout     time.Duration
	RateLimit   float64 // 1秒あたりのリクエスト数。0 以下は無制限
	SpeakerID   int
	SpeakerName string // 指定された場合 /speakers から SpeakerID を解決する
	StyleName   string
}

// ----------------------------------------------------------------------
// Factory 関数
// ----------------------------------------------------------------------

// Setup は VOICEVOX エンジンへ接続してバージョンを確認し、
// 利用する話者のスタイルIDを確定させたクライアントを返します。
func Setup(ctx context.Context, cfg Config) (*Client, int, error) {
	// 1. API URLの設定
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = os.Getenv("VOICEVOX_API_URL")
	}
	if apiURL == "" {
		apiURL = defaultVoicevoxAPIURL
		slog.Warn("VOICEVOX_API_URL 環境変数が設定されていません。", "default_url", apiURL)
	}

	// 2. クライアントの初期化
	client := NewClient(apiURL, cfg.Timeout, WithRateLimit(cfg.RateLimit, 1))

	// 3. 接続確認
	version, err := client.Version(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("VOICEVOXエンジンへの接続に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "VOICEVOXエンジンに接続しました。", "api_url", apiURL, "engine_version", version)

	// 4. 話者の決定
	speakerID := cfg.SpeakerID
	if cfg.SpeakerName != "" {
		slog.InfoContext(ctx, "VOICEVOX話者スタイルデータをロード中...")
		catalog, err := speaker.LoadSpeakers(ctx, client)
		if err != nil {
			return nil, 0, fmt.Errorf("話者データのロードに失敗しました: %w", err)
		}
		speakerID, err = catalog.Resolve(cfg.SpeakerName, cfg.StyleName)
		if err != nil {
			return nil, 0, err
		}
	}
	if speakerID < 0 {
		return nil, 0, fmt.Errorf("話者IDが不正です: %d", speakerID)
	}

	slog.InfoContext(ctx, "VOICEVOXクライアントの初期化が完了しました。",
		"speaker_id", speakerID,
		"rate_limit", cfg.RateLimit)

	return client, speakerID, nil
}
