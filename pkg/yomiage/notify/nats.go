package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultProgressSubject = "yomiage.progress"
	DefaultCancelSubject   = "yomiage.cancel"
)

// BusConfig は NATS への接続設定です。
type BusConfig struct {
	Servers         []string
	ConnectTimeout  time.Duration
	Username        string
	Password        string
	Token           string
	ProgressSubject string
	CancelSubject   string
}

// Event は NATS に送信する通知のペイロードです。
type Event struct {
	BatchID   string    `json:"batch_id,omitempty"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus は NATS 接続を保持します。
type Bus struct {
	conn *nats.Conn
	cfg  BusConfig
	log  *slog.Logger
}

// Connect は NATS サーバーへ接続します。
func Connect(ctx context.Context, cfg BusConfig, log *slog.Logger) (*Bus, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("NATSサーバーが設定されていません")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.ProgressSubject == "" {
		cfg.ProgressSubject = DefaultProgressSubject
	}
	if cfg.CancelSubject == "" {
		cfg.CancelSubject = DefaultCancelSubject
	}

	options := []nats.Option{nats.Name("yomiage")}
	if cfg.ConnectTimeout > 0 {
		options = append(options, nats.Timeout(cfg.ConnectTimeout))
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("NATSへの接続に失敗しました: %w", err)
	}

	log.InfoContext(ctx, "NATSに接続しました。", "servers", url, "progress_subject", cfg.ProgressSubject)

	return &Bus{conn: conn, cfg: cfg, log: log}, nil
}

// Sink は進捗を ProgressSubject に送信する Sink を返します。
func (b *Bus) Sink() *NATSSink {
	return NewNATSSink(b.conn, b.cfg.ProgressSubject)
}

// ListenCancel は CancelSubject を購読し、キャンセル要求を受けると handler を呼び出します。
// 戻り値の関数で購読を解除します。
func (b *Bus) ListenCancel(handler CancelHandler) (func() error, error) {
	sub, err := b.conn.Subscribe(b.cfg.CancelSubject, handler.HandleMsg)
	if err != nil {
		return nil, fmt.Errorf("キャンセル要求の購読に失敗しました: %w", err)
	}
	b.log.Info("キャンセル要求の購読を開始しました。", "subject", b.cfg.CancelSubject)
	return sub.Unsubscribe, nil
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.log.Info("NATS接続を終了します。")
	_ = b.conn.Drain()
	b.conn.Close()
}

// Publisher は NATS へのメッセージ送信です。*nats.Conn が実装します。
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink は進捗を JSON の Event として送信します。
type NATSSink struct {
	pub     Publisher
	subject string
	now     func() time.Time
}

func NewNATSSink(pub Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject, now: time.Now}
}

func (s *NATSSink) Progress(ctx context.Context, msg string) error {
	return s.publish(ctx, EventProgress, msg)
}

func (s *NATSSink) Finish(ctx context.Context, msg string) error {
	return s.publish(ctx, EventFinish, msg)
}

func (s *NATSSink) publish(ctx context.Context, event, msg string) error {
	data, err := json.Marshal(Event{
		BatchID:   BatchIDFrom(ctx),
		Event:     event,
		Message:   msg,
		Timestamp: s.now(),
	})
	if err != nil {
		return fmt.Errorf("通知のエンコードに失敗しました: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("通知の送信に失敗しました (subject=%s): %w", s.subject, err)
	}
	return nil
}

// CancelRequest はキャンセル要求のペイロードです。BatchID が空の場合は実行中のバッチを対象とします。
type CancelRequest struct {
	BatchID string `json:"batch_id,omitempty"`
}

// CancelHandler はキャンセル要求を受け取り、対象バッチであれば Cancel を呼び出します。
type CancelHandler struct {
	Current func() string // 実行中のバッチID
	Cancel  func()
	Logger  *slog.Logger
}

// HandleMsg は nats.MsgHandler として購読に登録されます。
func (h CancelHandler) HandleMsg(msg *nats.Msg) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var req CancelRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Warn("キャンセル要求を解析できませんでした。", "error", err)
			return
		}
	}

	current := ""
	if h.Current != nil {
		current = h.Current()
	}
	if req.BatchID != "" && req.BatchID != current {
		logger.Debug("別バッチへのキャンセル要求を無視します。", "requested", req.BatchID, "current", current)
		return
	}

	logger.Info("キャンセル要求を受信しました。", "batch_id", current)
	h.Cancel()
}
