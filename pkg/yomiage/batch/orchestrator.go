package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-yomiage/pkg/voicevox"
	"github.com/shouni/go-yomiage/pkg/yomiage/naming"
	"github.com/shouni/go-yomiage/pkg/yomiage/notify"
	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
	"github.com/shouni/go-yomiage/pkg/yomiage/synth"
	"github.com/shouni/go-yomiage/pkg/yomiage/wavio"
)

const (
	// PitchOffset は全セグメントでエンジン既定のピッチに加算する値です。
	PitchOffset = 0.1
	// ProblemGap は案内文と問題文の間の無音です。
	ProblemGap = 500 * time.Millisecond
	// AnswerGap は問題文と答えの間の無音です。
	AnswerGap = 3 * time.Second

	MsgComplete   = "生成完了"
	MsgCancelling = "キャンセル中..."
	MsgCancelled  = "キャンセルしました"
)

// ProgressMessage は i 問目 (0 始まり) の生成開始を示す進捗メッセージです。
func ProgressMessage(i, total int) string {
	return fmt.Sprintf("生成中... %d/%d", i, total)
}

// Generator は出題条件から問題を生成します。
type Generator interface {
	NewProblem(cfg problem.Config) (*problem.Problem, error)
}

// Synthesizer は読み上げ文を音声に変換します。synth.Adapter が実装します。
type Synthesizer interface {
	EnsureModelLoaded(ctx context.Context, speakerID int, notice synth.LoadNotice) error
	Synthesize(ctx context.Context, text string, speakerID int, pitchOffset float64, speed *float64) (wavio.Segment, error)
}

// Option は Orchestrator の設定です。
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithSink(s notify.Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

func WithSpeakerID(id int) Option {
	return func(o *Orchestrator) { o.speakerID = id }
}

// WithClock はバッチディレクトリ名に使う時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDFunc はバッチIDの生成方法を差し替えます。
func WithIDFunc(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// Orchestrator は問題の生成から音声合成、WAVの書き出しまでを1問ずつ順に実行します。
type Orchestrator struct {
	gen       Generator
	synth     Synthesizer
	sink      notify.Sink
	logger    *slog.Logger
	speakerID int
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	current string // 実行中のバッチID
}

func New(gen Generator, s Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:       gen,
		synth:     s,
		logger:    slog.Default(),
		speakerID: voicevox.DefaultSpeakerID,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = notify.NewLogSink(o.logger)
	}
	o.logger = o.logger.With("component", "batch")
	return o
}

// CurrentBatchID は実行中のバッチIDを返します。実行中でなければ空文字です。
func (o *Orchestrator) CurrentBatchID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Run はバッチを実行します。同時に実行できるバッチは1つだけです。
//
// token のキャンセル要求は各問題の書き出し後に確認し、書き出し済みのファイルは残したまま
// Cancelled で終了します。ctx のキャンセルも同様に扱いますが、合成中のHTTP要求は ctx により中断されます。
// 失敗した場合は Failed と *ErrBatch を返し、それまでに書き出したファイルは削除しません。
func (o *Orchestrator) Run(ctx context.Context, req Request, token *CancelToken) (Result, error) {
	if token == nil {
		token = NewCancelToken()
	}

	batchID := o.newID()
	o.mu.Lock()
	if o.current != "" {
		o.mu.Unlock()
		return Result{State: Idle}, ErrBusy
	}
	o.current = batchID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.current = ""
		o.mu.Unlock()
	}()

	ctx = notify.WithBatchID(ctx, batchID)
	res := Result{BatchID: batchID, State: Running}
	log := o.logger.With("batch_id", batchID)

	if err := req.validate(); err != nil {
		return o.fail(ctx, log, res, err)
	}

	log.InfoContext(ctx, "バッチ生成を開始します。",
		"count", req.Count,
		"gen_type", req.GenType.String(),
		"speed_scale", req.SpeedScale,
		"min_digit", req.Problem.MinDigit,
		"max_digit", req.Problem.MaxDigit,
		"length", req.Problem.Length,
		"subtractions", req.Problem.Subtractions)

	if req.Count == 0 {
		o.finish(ctx, log, MsgComplete)
		res.State = Completed
		return res, nil
	}

	if o.cancelRequested(ctx, token) {
		return o.cancel(ctx, log, res)
	}

	res.Dir = filepath.Join(req.OutputRoot, naming.DirectoryFor(req.Problem, naming.Timestamp(o.now())))
	if err := naming.EnsureDir(res.Dir); err != nil {
		return o.fail(ctx, log, res, &ErrBatch{Iteration: -1, Stage: StagePrepare, Err: err})
	}

	for i := 0; i < req.Count; i++ {
		msg := ProgressMessage(i, req.Count)
		o.progress(ctx, log, msg)

		path, err := o.generate(ctx, req, res.Dir, i, msg)
		if err != nil {
			if ctx.Err() != nil {
				// 強制中断による失敗は中断として扱う
				log.WarnContext(ctx, "生成中に中断されました。", "iteration", i, "error", err)
				res, _ = o.cancel(ctx, log, res)
				return res, ctx.Err()
			}
			return o.fail(ctx, log, res, err)
		}
		res.Files = append(res.Files, path)
		log.InfoContext(ctx, "WAVファイルを書き出しました。", "iteration", i, "path", path)

		if o.cancelRequested(ctx, token) {
			return o.cancel(ctx, log, res)
		}
	}

	o.progress(ctx, log, MsgComplete)
	o.finish(ctx, log, MsgComplete)
	res.State = Completed
	log.InfoContext(ctx, "バッチ生成が完了しました。", "files", len(res.Files), "dir", res.Dir)
	return res, nil
}

// generate は i 問目を生成して書き出し、そのパスを返します。
func (o *Orchestrator) generate(ctx context.Context, req Request, dir string, i int, resume string) (string, error) {
	notice := synth.LoadNotice{
		Progress: func(ctx context.Context, msg string) { o.progress(ctx, o.logger, msg) },
		Resume:   resume,
	}
	if err := o.synth.EnsureModelLoaded(ctx, o.speakerID, notice); err != nil {
		return "", &ErrBatch{Iteration: i, Stage: StageModelLoad, Err: err}
	}

	cfg := EffectiveConfig(req.GenType, req.Problem, i)
	p, err := o.gen.NewProblem(cfg)
	if err != nil {
		return "", &ErrBatch{Iteration: i, Stage: StageGenerate, Err: err}
	}

	speed := req.SpeedScale
	scripts := []struct {
		text  string
		speed *float64
		gap   time.Duration
	}{
		{p.ScriptMeta(), nil, 0},
		{p.ScriptProblem(), &speed, ProblemGap},
		{p.ScriptAnswer(), nil, AnswerGap},
	}

	parts := make([]wavio.Part, 0, len(scripts))
	for _, s := range scripts {
		seg, err := o.synth.Synthesize(ctx, s.text, o.speakerID, PitchOffset, s.speed)
		if err != nil {
			return "", &ErrBatch{Iteration: i, Stage: StageSynthesize, Err: err}
		}
		parts = append(parts, wavio.Part{Segment: seg, LeadingSilence: s.gap})
	}

	path := filepath.Join(dir, naming.FileNameFor(cfg.Subtractions, i+1))
	if _, err := wavio.Assemble(path, parts); err != nil {
		return "", &ErrBatch{Iteration: i, Stage: StageWrite, Err: err}
	}
	return path, nil
}

func (o *Orchestrator) cancelRequested(ctx context.Context, token *CancelToken) bool {
	return token.Cancelled() || ctx.Err() != nil
}

func (o *Orchestrator) cancel(ctx context.Context, log *slog.Logger, res Result) (Result, error) {
	o.progress(ctx, log, MsgCancelled)
	o.finish(ctx, log, MsgCancelled)
	res.State = Cancelled
	log.InfoContext(context.WithoutCancel(ctx), "バッチ生成をキャンセルしました。", "files", len(res.Files))
	return res, nil
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, res Result, err error) (Result, error) {
	o.finish(ctx, log, fmt.Sprintf("生成に失敗しました: %v", err))
	res.State = Failed
	var batchErr *ErrBatch
	if errors.As(err, &batchErr) {
		log.ErrorContext(context.WithoutCancel(ctx), "バッチ生成に失敗しました。", "stage", batchErr.Stage, "iteration", batchErr.Iteration, "error", err)
	} else {
		log.ErrorContext(context.WithoutCancel(ctx), "バッチ生成に失敗しました。", "error", err)
	}
	return res, err
}

// progress と finish の失敗はバッチを中断させない。
func (o *Orchestrator) progress(ctx context.Context, log *slog.Logger, msg string) {
	ctx = context.WithoutCancel(ctx)
	if err := o.sink.Progress(ctx, msg); err != nil {
		log.WarnContext(ctx, "進捗通知の送信に失敗しました。", "message", msg, "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, msg string) {
	ctx = context.WithoutCancel(ctx)
	if err := o.sink.Finish(ctx, msg); err != nil {
		log.WarnContext(ctx, "完了通知の送信に失敗しました。", "message", msg, "error", err)
	}
}
