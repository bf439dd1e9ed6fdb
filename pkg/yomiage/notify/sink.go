package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const (
	EventProgress = "progress"
	EventFinish   = "finish"
)

// Sink はバッチの進捗を受け取る通知先です。
// 通知の失敗はバッチを中断させないため、呼び出し側はエラーをログに残すだけで無視します。
type Sink interface {
	Progress(ctx context.Context, msg string) error
	Finish(ctx context.Context, msg string) error
}

type batchIDKey struct{}

// WithBatchID は通知に含めるバッチIDを ctx に設定します。
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchIDFrom は ctx に設定されたバッチIDを返します。
func BatchIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey{}).(string)
	return id
}

// LogSink は進捗を slog に出力します。
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Progress(ctx context.Context, msg string) error {
	s.logger.InfoContext(ctx, msg, "event", EventProgress, "batch_id", BatchIDFrom(ctx))
	return nil
}

func (s *LogSink) Finish(ctx context.Context, msg string) error {
	s.logger.InfoContext(ctx, msg, "event", EventFinish, "batch_id", BatchIDFrom(ctx))
	return nil
}

// Multi は複数の Sink へ同じ通知を送ります。
type Multi []Sink

func (m Multi) Progress(ctx context.Context, msg string) error {
	var errs []error
	for _, s := range m {
		if err := s.Progress(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Finish(ctx context.Context, msg string) error {
	var errs []error
	for _, s := range m {
		if err := s.Finish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder は受け取った通知をメモリに記録する Sink です。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Progress(ctx context.Context, msg string) error {
	r.record(ctx, EventProgress, msg)
	return nil
}

func (r *Recorder) Finish(ctx context.Context, msg string) error {
	r.record(ctx, EventFinish, msg)
	return nil
}

func (r *Recorder) record(ctx context.Context, event, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{BatchID: BatchIDFrom(ctx), Event: event, Message: msg})
}

// Events は記録した通知を順に返します。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Messages は指定した種類の通知メッセージを順に返します。
func (r *Recorder) Messages(event string) []string {
	var msgs []string
	for _, e := range r.Events() {
		if e.Event == event {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
