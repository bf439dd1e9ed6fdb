package synth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shouni/go-yomiage/pkg/voicevox/api"
	"github.com/shouni/go-yomiage/pkg/yomiage/wavio"
)

// ModelLoadingMessage はモデルのロード開始時に通知するメッセージです。
const ModelLoadingMessage = "モデルをロード中..."

// Engine は音声合成エンジンの操作です。voicevox.Client と voicevox.StubEngine が実装します。
type Engine interface {
	IsModelLoaded(ctx context.Context, speakerID int) (bool, error)
	LoadModel(ctx context.Context, speakerID int) error
	BuildQuery(ctx context.Context, text string, speakerID int) (*api.AudioQuery, error)
	Synthesize(ctx context.Context, query *api.AudioQuery, speakerID int) ([]byte, error)
	Version(ctx context.Context) (string, error)
}

// LoadNotice はモデルロードの前後に送る進捗通知です。
// Progress が nil の場合は通知しません。
type LoadNotice struct {
	Progress func(ctx context.Context, msg string)
	Resume   string // ロード完了後に送る生成再開メッセージ
}

// Adapter は読み上げ文を Segment に変換します。
// 話者ごとのモデルロード状態を保持し、ロードはプロセス内で1回だけ行います。
type Adapter struct {
	engine Engine
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[int]bool
}

// NewAdapter は Adapter を生成します。logger が nil の場合は slog.Default() を使います。
func NewAdapter(engine Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		engine: engine,
		logger: logger.With("component", "synth"),
		loaded: make(map[int]bool),
	}
}

// EnsureModelLoaded は話者のモデルがロード済みであることを保証します。
// 初回呼び出し時のみエンジンへロードを要求し、2回目以降は何もしません。
func (a *Adapter) EnsureModelLoaded(ctx context.Context, speakerID int, notice LoadNotice) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loaded[speakerID] {
		return nil
	}

	ok, err := a.engine.IsModelLoaded(ctx, speakerID)
	if err != nil {
		return &ErrModelLoad{SpeakerID: speakerID, WrappedErr: err}
	}
	if ok {
		a.logger.DebugContext(ctx, "モデルはロード済みです。", "speaker_id", speakerID)
		a.loaded[speakerID] = true
		return nil
	}

	notice.send(ctx, ModelLoadingMessage)
	a.logger.InfoContext(ctx, "モデルをロードします。", "speaker_id", speakerID)
	if err := a.engine.LoadModel(ctx, speakerID); err != nil {
		return &ErrModelLoad{SpeakerID: speakerID, WrappedErr: err}
	}
	a.loaded[speakerID] = true
	a.logger.InfoContext(ctx, "モデルのロードが完了しました。", "speaker_id", speakerID)
	notice.send(ctx, notice.Resume)

	return nil
}

func (n LoadNotice) send(ctx context.Context, msg string) {
	if n.Progress == nil || msg == "" {
		return
	}
	n.Progress(ctx, msg)
}

// Synthesize は text を合成します。pitchOffset はエンジン既定のピッチに加算され、
// speed が nil でなければ話速を上書きします。
func (a *Adapter) Synthesize(ctx context.Context, text string, speakerID int, pitchOffset float64, speed *float64) (wavio.Segment, error) {
	query, err := a.engine.BuildQuery(ctx, text, speakerID)
	if err != nil {
		return wavio.Segment{}, &ErrSynthesis{Stage: StageAudioQuery, Text: text, WrappedErr: err}
	}

	query.PitchScale += pitchOffset
	if speed != nil {
		query.SpeedScale = *speed
	}

	data, err := a.engine.Synthesize(ctx, query, speakerID)
	if err != nil {
		return wavio.Segment{}, &ErrSynthesis{Stage: StageSynthesis, Text: text, WrappedErr: err}
	}

	seg, err := wavio.DecodeSegment(data)
	if err != nil {
		return wavio.Segment{}, &ErrSynthesis{Stage: StageDecode, Text: text, WrappedErr: err}
	}

	a.logger.DebugContext(ctx, "音声を合成しました。",
		"speaker_id", speakerID,
		"pitch_scale", query.PitchScale,
		"speed_scale", query.SpeedScale,
		"frames", seg.Frames())

	return seg, nil
}
