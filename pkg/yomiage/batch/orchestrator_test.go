package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-yomiage/pkg/voicevox"
	"github.com/shouni/go-yomiage/pkg/voicevox/api"
	"github.com/shouni/go-yomiage/pkg/yomiage/notify"
	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
	"github.com/shouni/go-yomiage/pkg/yomiage/synth"
	"github.com/shouni/go-yomiage/pkg/yomiage/wavio"
)

var baseConfig = problem.Config{MinDigit: 3, MaxDigit: 6, Length: 10, Subtractions: 3}

type synthCall struct {
	text  string
	speed float64
	pitch float64
}

// recordingEngine は StubEngine への合成要求を記録する。
type recordingEngine struct {
	*voicevox.StubEngine

	mu       sync.Mutex
	loads    int
	calls    []synthCall
	synthErr error
}

func (e *recordingEngine) LoadModel(ctx context.Context, speakerID int) error {
	e.mu.Lock()
	e.loads++
	e.mu.Unlock()
	return e.StubEngine.LoadModel(ctx, speakerID)
}

func (e *recordingEngine) Synthesize(ctx context.Context, q *api.AudioQuery, speakerID int) ([]byte, error) {
	if e.synthErr != nil {
		return nil, e.synthErr
	}
	var text string
	if raw, ok := q.Field("kana"); ok {
		_ = json.Unmarshal(raw, &text)
	}
	e.mu.Lock()
	e.calls = append(e.calls, synthCall{text: text, speed: q.SpeedScale, pitch: q.PitchScale})
	e.mu.Unlock()
	return e.StubEngine.Synthesize(ctx, q, speakerID)
}

// recordingGenerator は渡された出題条件を記録する。
type recordingGenerator struct {
	gen     *problem.Generator
	configs []problem.Config
	onCall  func(n int) error
}

func (g *recordingGenerator) NewProblem(cfg problem.Config) (*problem.Problem, error) {
	n := len(g.configs)
	g.configs = append(g.configs, cfg)
	if g.onCall != nil {
		if err := g.onCall(n); err != nil {
			return nil, err
		}
	}
	return g.gen.NewProblem(cfg)
}

type fixture struct {
	engine *recordingEngine
	gen    *recordingGenerator
	sink   *notify.Recorder
	orch   *Orchestrator
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine: &recordingEngine{StubEngine: voicevox.NewStubEngine()},
		gen:    &recordingGenerator{gen: problem.NewSeededGenerator(99)},
		sink:   &notify.Recorder{},
		root:   filepath.Join(t.TempDir(), "missing", "yish"),
	}
	f.orch = New(f.gen, synth.NewAdapter(f.engine, nil),
		WithSink(f.sink),
		WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local) }),
		WithIDFunc(func() string { return "batch-test" }),
	)
	return f
}

func (f *fixture) request(count int, g GenType) Request {
	return Request{Problem: baseConfig, Count: count, GenType: g, SpeedScale: 1.0, OutputRoot: f.root}
}

func TestEffectiveConfig(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.False(t, EffectiveConfig(AdditionOnly, baseConfig, i).SubtractionsEnabled(), "AdditionOnly i=%d", i)
		assert.Equal(t, baseConfig, EffectiveConfig(ConfiguredMix, baseConfig, i), "ConfiguredMix i=%d", i)

		alt := EffectiveConfig(Alternating, baseConfig, i)
		assert.Equal(t, i%2 != 0, alt.SubtractionsEnabled(), "Alternating i=%d", i)
	}

	additionOnly := baseConfig.WithoutSubtractions()
	for i := 0; i < 4; i++ {
		assert.Equal(t, additionOnly, EffectiveConfig(ConfiguredMix, additionOnly, i))
		assert.False(t, EffectiveConfig(Alternating, additionOnly, i).SubtractionsEnabled())
	}
}

func TestRunAlternatingEndToEnd(t *testing.T) {
	f := newFixture(t)
	req := f.request(3, Alternating)
	req.SpeedScale = 1.2

	res, err := f.orch.Run(context.Background(), req, NewCancelToken())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, "batch-test", res.BatchID)

	require.Len(t, f.gen.configs, 3)
	assert.Equal(t, []int{0, 3, 0}, []int{f.gen.configs[0].Subtractions, f.gen.configs[1].Subtractions, f.gen.configs[2].Subtractions})

	assert.Equal(t, filepath.Join(f.root, "3-6-10-20240102030405"), res.Dir)
	require.Len(t, res.Files, 3)
	assert.Equal(t, "1-加算.wav", filepath.Base(res.Files[0]))
	assert.Equal(t, "2-加減算.wav", filepath.Base(res.Files[1]))
	assert.Equal(t, "3-加算.wav", filepath.Base(res.Files[2]))
	for _, p := range res.Files {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		seg, err := wavio.DecodeSegment(data)
		require.NoError(t, err)
		assert.Greater(t, seg.Frames(), wavio.SilenceFrames(seg.Format.SampleRate, ProblemGap+AnswerGap))
	}

	require.Len(t, f.engine.calls, 9)
	for i, c := range f.engine.calls {
		assert.InDelta(t, PitchOffset, c.pitch, 1e-9)
		if i%3 == 1 {
			assert.True(t, strings.HasPrefix(c.text, "願いましては"), c.text)
			assert.InDelta(t, 1.2, c.speed, 1e-9)
		} else {
			assert.InDelta(t, 1.0, c.speed, 1e-9)
		}
	}

	assert.Equal(t, 1, f.engine.loads)
	assert.Equal(t, []string{
		"生成中... 0/3", synth.ModelLoadingMessage, "生成中... 0/3",
		"生成中... 1/3", "生成中... 2/3", MsgComplete,
	}, f.sink.Messages(notify.EventProgress))
	assert.Equal(t, []string{MsgComplete}, f.sink.Messages(notify.EventFinish))
	for _, e := range f.sink.Events() {
		assert.Equal(t, "batch-test", e.BatchID)
	}
}

func TestRunAdditionOnly(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), f.request(4, AdditionOnly), nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	for _, cfg := range f.gen.configs {
		assert.False(t, cfg.SubtractionsEnabled())
	}
	for _, p := range res.Files {
		assert.True(t, strings.HasSuffix(p, "-加算.wav"), p)
	}
}

func TestRunCancelAfterIteration(t *testing.T) {
	for _, k := range []int{0, 1, 3} {
		f := newFixture(t)
		token := NewCancelToken()
		f.gen.onCall = func(n int) error {
			if n == k {
				token.Cancel()
			}
			return nil
		}

		res, err := f.orch.Run(context.Background(), f.request(5, ConfiguredMix), token)
		require.NoError(t, err)
		assert.Equal(t, Cancelled, res.State, "k=%d", k)
		assert.Len(t, res.Files, k+1, "k=%d", k)

		entries, err := os.ReadDir(res.Dir)
		require.NoError(t, err)
		assert.Len(t, entries, k+1, "k=%d", k)

		assert.Equal(t, []string{MsgCancelled}, f.sink.Messages(notify.EventFinish))
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	token := NewCancelToken()
	token.Cancel()

	res, err := f.orch.Run(context.Background(), f.request(3, ConfiguredMix), token)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.State)
	assert.Empty(t, res.Files)
	assert.Empty(t, f.engine.calls)
}

func TestRunContextCancelledAtBoundary(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gen.onCall = func(n int) error {
		if n == 1 {
			cancel()
		}
		return nil
	}

	res, err := f.orch.Run(ctx, f.request(4, ConfiguredMix), nil)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.State)
	assert.Len(t, res.Files, 2)
}

func TestRunZeroCount(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), f.request(0, Alternating), nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Empty(t, res.Files)
	assert.Empty(t, f.engine.calls)
	assert.Zero(t, f.engine.loads)
	assert.Equal(t, []notify.Event{{BatchID: "batch-test", Event: notify.EventFinish, Message: MsgComplete}}, f.sink.Events())
	assert.NoDirExists(t, f.root)
}

func TestRunCreatesMissingOutputRoot(t *testing.T) {
	f := newFixture(t)
	require.NoDirExists(t, f.root)

	res, err := f.orch.Run(context.Background(), f.request(1, ConfiguredMix), nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.DirExists(t, res.Dir)
	assert.FileExists(t, filepath.Join(res.Dir, "1-加減算.wav"))
}

func TestRunGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.onCall = func(n int) error {
		if n == 1 {
			return &problem.ErrInvalidConfig{Field: "min_digit", Reason: "test"}
		}
		return nil
	}

	res, err := f.orch.Run(context.Background(), f.request(3, ConfiguredMix), nil)
	assert.Equal(t, Failed, res.State)

	var batchErr *ErrBatch
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Iteration)
	assert.Equal(t, StageGenerate, batchErr.Stage)
	var cfgErr *problem.ErrInvalidConfig
	assert.True(t, errors.As(err, &cfgErr))

	// 完了済みの1問目は残る
	assert.Len(t, res.Files, 1)
	entries, err := os.ReadDir(res.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	finish := f.sink.Messages(notify.EventFinish)
	require.Len(t, finish, 1)
	assert.True(t, strings.HasPrefix(finish[0], "生成に失敗しました: "), finish[0])
}

func TestRunInvalidProblemConfigFails(t *testing.T) {
	f := newFixture(t)
	req := f.request(2, ConfiguredMix)
	req.Problem.MinDigit = 0

	res, err := f.orch.Run(context.Background(), req, nil)
	assert.Equal(t, Failed, res.State)
	var cfgErr *problem.ErrInvalidConfig
	assert.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, res.Files)
}

func TestRunSynthesisFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.synthErr = errors.New("engine rejected query")

	res, err := f.orch.Run(context.Background(), f.request(2, ConfiguredMix), nil)
	assert.Equal(t, Failed, res.State)

	var batchErr *ErrBatch
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, StageSynthesize, batchErr.Stage)
	var synthErr *synth.ErrSynthesis
	assert.True(t, errors.As(err, &synthErr))

	entries, err := os.ReadDir(res.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunInvalidRequest(t *testing.T) {
	f := newFixture(t)
	req := f.request(1, ConfiguredMix)
	req.SpeedScale = 0

	res, err := f.orch.Run(context.Background(), req, nil)
	assert.Equal(t, Failed, res.State)
	var reqErr *ErrInvalidRequest
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "speed_scale", reqErr.Field)
}

type brokenSink struct{}

func (brokenSink) Progress(context.Context, string) error { return errors.New("sink down") }
func (brokenSink) Finish(context.Context, string) error   { return errors.New("sink down") }

func TestRunIgnoresSinkFailures(t *testing.T) {
	f := newFixture(t)
	f.orch.sink = brokenSink{}

	res, err := f.orch.Run(context.Background(), f.request(2, Alternating), nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Len(t, res.Files, 2)
}

func TestRunClearsCurrentBatchID(t *testing.T) {
	f := newFixture(t)
	var during string
	f.gen.onCall = func(int) error {
		during = f.orch.CurrentBatchID()
		return nil
	}

	_, err := f.orch.Run(context.Background(), f.request(1, ConfiguredMix), nil)
	require.NoError(t, err)
	assert.Equal(t, "batch-test", during)
	assert.Empty(t, f.orch.CurrentBatchID())
}

func TestParseGenType(t *testing.T) {
	for in, want := range map[string]GenType{
		"0": AdditionOnly, "addition": AdditionOnly,
		"1": ConfiguredMix, "mix": ConfiguredMix,
		"2": Alternating, "Alternating": Alternating,
	} {
		got, err := ParseGenType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseGenType("3")
	assert.Error(t, err)
	_, err = ParseGenType("random")
	assert.Error(t, err)
}

func TestCancelTokenConcurrentUse(t *testing.T) {
	token := NewCancelToken()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); token.Cancel() }()
		go func() { defer wg.Done(); _ = token.Cancelled() }()
	}
	wg.Wait()
	assert.True(t, token.Cancelled())
}
