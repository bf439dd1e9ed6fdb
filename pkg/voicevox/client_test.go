package voicevox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-yomiage/pkg/voicevox/api"
)

const speakersJSON = `[
  {"name": "青山龍星", "styles": [{"name": "ノーマル", "id": 13}, {"name": "熱血", "id": 81}]},
  {"name": "ずんだもん", "styles": [{"name": "ノーマル", "id": 3}, {"name": "あまあま", "id": 1}]}
]`

type fakeEngine struct {
	mu          sync.Mutex
	initialized map[string]bool
}

func newFakeEngine(t *testing.T) *httptest.Server {
	t.Helper()
	fe := &fakeEngine{initialized: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"0.14.5"`)
	})
	mux.HandleFunc("/speakers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, speakersJSON)
	})
	mux.HandleFunc("/audio_query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "13", r.URL.Query().Get("speaker"))
		assert.NotEmpty(t, r.URL.Query().Get("text"))
		_, _ = io.WriteString(w, `{"accent_phrases":[{"moras":[]}],"speedScale":1.0,"pitchScale":0.0,"volumeScale":1.0,"outputSamplingRate":24000}`)
	})
	mux.HandleFunc("/synthesis", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "audio/wav", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if r.URL.Query().Get("speaker") == "999" {
			_, _ = io.WriteString(w, "not a wav")
			return
		}

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		// audio_query の未知フィールドがそのまま送り返されている
		assert.Contains(t, body, "accent_phrases")
		assert.Contains(t, body, "outputSamplingRate")
		assert.InDelta(t, 0.1, body["pitchScale"], 1e-9)
		_, _ = w.Write(encodePCM16(make([]int16, 240), DefaultSampleRate, DefaultChannels))
	})
	mux.HandleFunc("/is_initialized_speaker", func(w http.ResponseWriter, r *http.Request) {
		fe.mu.Lock()
		defer fe.mu.Unlock()
		if fe.initialized[r.URL.Query().Get("speaker")] {
			_, _ = io.WriteString(w, "true")
			return
		}
		_, _ = io.WriteString(w, "false")
	})
	mux.HandleFunc("/initialize_speaker", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("skip_reinit"))
		fe.mu.Lock()
		fe.initialized[r.URL.Query().Get("speaker")] = true
		fe.mu.Unlock()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientQueryAndSynthesize(t *testing.T) {
	srv := newFakeEngine(t)
	c := NewClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	q, err := c.BuildQuery(ctx, "答えは、12円です。", 13)
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.SpeedScale)
	_, ok := q.Field("accent_phrases")
	assert.True(t, ok)

	q.PitchScale += 0.1
	wav, err := c.Synthesize(ctx, q, 13)
	require.NoError(t, err)
	assert.NoError(t, validateWAV(wav))
}

func TestClientSynthesizeRejectsInvalidWAV(t *testing.T) {
	srv := newFakeEngine(t)
	c := NewClient(srv.URL, 5*time.Second)

	_, err := c.Synthesize(context.Background(), api.NewAudioQuery(1.0, 0.0), 999)
	var headerErr *api.ErrInvalidWAVHeader
	assert.True(t, errors.As(err, &headerErr))
}

func TestClientModelLoad(t *testing.T) {
	srv := newFakeEngine(t)
	c := NewClient(srv.URL, 5*time.Second, WithRateLimit(100, 2))
	ctx := context.Background()

	loaded, err := c.IsModelLoaded(ctx, 13)
	require.NoError(t, err)
	assert.False(t, loaded)

	require.NoError(t, c.LoadModel(ctx, 13))

	loaded, err = c.IsModelLoaded(ctx, 13)
	require.NoError(t, err)
	assert.True(t, loaded)
}

func TestSetupResolvesSpeakerName(t *testing.T) {
	srv := newFakeEngine(t)

	_, id, err := Setup(context.Background(), Config{APIURL: srv.URL, Timeout: 5 * time.Second, SpeakerName: "ずんだもん", StyleName: "あまあま"})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, id, err = Setup(context.Background(), Config{APIURL: srv.URL, Timeout: 5 * time.Second, SpeakerID: DefaultSpeakerID})
	require.NoError(t, err)
	assert.Equal(t, 13, id)
}

func TestSetupUnknownStyle(t *testing.T) {
	srv := newFakeEngine(t)

	_, _, err := Setup(context.Background(), Config{APIURL: srv.URL, Timeout: 5 * time.Second, SpeakerName: "青山龍星", StyleName: "存在しない"})
	assert.Error(t, err)
}

func TestValidateWAV(t *testing.T) {
	good := encodePCM16([]int16{1, 2, 3}, DefaultSampleRate, DefaultChannels)
	assert.NoError(t, validateWAV(good))

	assert.Error(t, validateWAV(good[:20]))

	truncated := encodePCM16(make([]int16, 100), DefaultSampleRate, DefaultChannels)[:WavTotalHeaderSize+10]
	assert.Error(t, validateWAV(truncated))

	bad := append([]byte(nil), good...)
	copy(bad, "RIFX")
	assert.Error(t, validateWAV(bad))
}

func TestStubEngineScalesWithSpeed(t *testing.T) {
	s := NewStubEngine()
	ctx := context.Background()

	q, err := s.BuildQuery(ctx, "願いましては", 13)
	require.NoError(t, err)
	normal, err := s.Synthesize(ctx, q, 13)
	require.NoError(t, err)

	q.SpeedScale = 2.0
	fast, err := s.Synthesize(ctx, q, 13)
	require.NoError(t, err)

	assert.NoError(t, validateWAV(normal))
	assert.Less(t, len(fast), len(normal))
}

func TestAudioQueryRoundTripKeepsUnknownFields(t *testing.T) {
	var q api.AudioQuery
	require.NoError(t, json.Unmarshal([]byte(`{"speedScale":1.1,"pitchScale":0.0,"intonationScale":1.0}`), &q))

	q.PitchScale = 0.1
	data, err := json.Marshal(q)
	require.NoError(t, err)

	var out map[string]float64
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, map[string]float64{"speedScale": 1.1, "pitchScale": 0.1, "intonationScale": 1.0}, out)

	assert.Error(t, json.Unmarshal([]byte(`{"speedScale":1.0}`), &q))
}
