package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"golang.org/x/time/rate"

	"github.com/shouni/go-yomiage/pkg/voicevox/api"
)

// ----------------------------------------------------------------------
// クライアント構造体とコンストラクタ
// ----------------------------------------------------------------------

// Client はVOICEVOXエンジンへのAPIリクエストを処理するクライアントです。
// httpkit.Client を利用してリトライ機能を内包します。
type Client struct {
	client  *httpkit.Client // リトライ機能付きHTTPクライアント
	apiURL  string
	limiter *rate.Limiter // nil の場合は無制限
}

// ClientOption は Client の生成時に適用するオプションです。
type ClientOption func(*Client)

// WithRateLimit はエンジンへのリクエスト間隔を制限します。perSecond が 0 以下なら制限しません。
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient は新しいClientインスタンスを初期化します。
func NewClient(apiURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	c := &Client{
		client: httpkit.New(timeout),
		apiURL: apiURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ----------------------------------------------------------------------
// ヘルパー
// ----------------------------------------------------------------------

// buildURL はベースURLとエンドポイントを結合し、クエリパラメータを付与します。
func (c *Client) buildURL(endpoint string, params url.Values) (*url.URL, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, &api.ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("API URLのパース失敗: %w", err)}
	}

	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, &api.ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("エンドポイント結合失敗: %w", err)}
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	return u, nil
}

// wait はレートリミッターが設定されている場合、次のリクエストが許可されるまで待機します。
func (c *Client) wait(ctx context.Context, endpoint string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &api.ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	return nil
}

func speakerParams(speakerID int) url.Values {
	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speakerID))
	return q
}

// post はPOSTリクエストを構築して実行し、応答ボディを返します。
func (c *Client) post(ctx context.Context, endpoint string, params url.Values, body []byte) ([]byte, error) {
	if err := c.wait(ctx, endpoint); err != nil {
		return nil, err
	}

	u, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	// ボディが空のPOSTではContent-Typeなどの設定は不要
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bodyReader)
	if err != nil {
		return nil, &api.ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("リクエスト構築失敗: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if endpoint == "/synthesis" {
		req.Header.Set("Accept", "audio/wav")
	}

	// c.client.DoRequest() がリトライ、ステータスチェック、ボディ読み取りを処理
	respBody, err := c.client.DoRequest(req)
	if err != nil {
		return nil, &api.ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	return respBody, nil
}

// get はGETリクエストを実行し、応答ボディを返します。
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.wait(ctx, endpoint); err != nil {
		return nil, err
	}

	u, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	// FetchBytes は GET, リトライ、ステータスチェック、ボディ読み取りを全て処理
	bodyBytes, err := c.client.FetchBytes(ctx, u.String())
	if err != nil {
		return nil, &api.ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	return bodyBytes, nil
}

// ----------------------------------------------------------------------
// API呼び出しロジック
// ----------------------------------------------------------------------

// BuildQuery は /audio_query APIを呼び出し、音声合成のためのクエリを返します。
func (c *Client) BuildQuery(ctx context.Context, text string, speakerID int) (*api.AudioQuery, error) {
	const endpoint = "/audio_query"

	params := speakerParams(speakerID)
	params.Set("text", text)

	bodyBytes, err := c.post(ctx, endpoint, params, nil)
	if err != nil {
		return nil, err
	}

	var query api.AudioQuery
	if err := json.Unmarshal(bodyBytes, &query); err != nil {
		return nil, &api.ErrInvalidJSON{Details: fmt.Sprintf("%s応答JSONのデコード", endpoint), WrappedErr: err}
	}
	return &query, nil
}

// Synthesize は /synthesis APIを呼び出し、WAV形式の音声データを返します。
func (c *Client) Synthesize(ctx context.Context, query *api.AudioQuery, speakerID int) ([]byte, error) {
	const endpoint = "/synthesis"

	if query == nil {
		return nil, &api.ErrInvalidJSON{Details: "audio query が nil です"}
	}
	queryBody, err := json.Marshal(query)
	if err != nil {
		return nil, &api.ErrInvalidJSON{Details: "audio query のエンコード", WrappedErr: err}
	}

	wavData, err := c.post(ctx, endpoint, speakerParams(speakerID), queryBody)
	if err != nil {
		return nil, err
	}

	if err := validateWAV(wavData); err != nil {
		return nil, err
	}
	return wavData, nil
}

// IsModelLoaded は /is_initialized_speaker APIで話者モデルが初期化済みかを確認します。
func (c *Client) IsModelLoaded(ctx context.Context, speakerID int) (bool, error) {
	const endpoint = "/is_initialized_speaker"

	bodyBytes, err := c.get(ctx, endpoint, speakerParams(speakerID))
	if err != nil {
		return false, err
	}

	var loaded bool
	if err := json.Unmarshal(bodyBytes, &loaded); err != nil {
		return false, &api.ErrInvalidJSON{Details: fmt.Sprintf("%s応答JSONのデコード", endpoint), WrappedErr: err}
	}
	return loaded, nil
}

// LoadModel は /initialize_speaker APIで話者モデルをロードします。
// ロード済みの場合、エンジン側で再初期化はスキップされます。
func (c *Client) LoadModel(ctx context.Context, speakerID int) error {
	const endpoint = "/initialize_speaker"

	params := speakerParams(speakerID)
	params.Set("skip_reinit", "true")

	_, err := c.post(ctx, endpoint, params, nil)
	return err
}

// Version は /version APIからエンジンのバージョン文字列を取得します。
func (c *Client) Version(ctx context.Context) (string, error) {
	const endpoint = "/version"

	bodyBytes, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal(bodyBytes, &version); err != nil {
		return "", &api.ErrInvalidJSON{Details: fmt.Sprintf("%s応答JSONのデコード", endpoint), WrappedErr: err}
	}
	if version == "" {
		return "", &api.ErrAPIResponse{Endpoint: endpoint, Body: string(bodyBytes)}
	}
	return version, nil
}

// GetSpeakers は /speakers APIを呼び出し、VOICEVOXエンジンが提供する
// 全てのスピーカー情報（JSONバイトスライス）を返します。
func (c *Client) GetSpeakers(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/speakers", nil)
}
