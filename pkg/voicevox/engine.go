package voicevox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shouni/go-yomiage/pkg/voicevox/api"
)

// stubRuneDuration は 1 文字あたりに割り当てる発話時間です。
const stubRuneDuration = 80 * time.Millisecond

// StubEngine はVOICEVOXエンジンなしで動作する合成エンジンです。
// 文字数と話速に比例した長さの正弦波WAVを返すため、エンジンを起動できない環境での
// 動作確認に使います。
type StubEngine struct {
	mu     sync.Mutex
	loaded map[int]bool
}

// NewStubEngine は StubEngine を生成します。
func NewStubEngine() *StubEngine {
	slog.Info("VOICEVOXエンジンの代わりにスタブを使用します。", "sample_rate", DefaultSampleRate)
	return &StubEngine{loaded: make(map[int]bool)}
}

func (s *StubEngine) IsModelLoaded(_ context.Context, speakerID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[speakerID], nil
}

func (s *StubEngine) LoadModel(_ context.Context, speakerID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded[speakerID] = true
	return nil
}

func (s *StubEngine) BuildQuery(_ context.Context, text string, _ int) (*api.AudioQuery, error) {
	if text == "" {
		return nil, fmt.Errorf("テキストが空です")
	}
	q := api.NewAudioQuery(1.0, 0.0)
	kana, err := json.Marshal(text)
	if err != nil {
		return nil, err
	}
	q.SetField("kana", kana)
	return q, nil
}

func (s *StubEngine) Synthesize(_ context.Context, query *api.AudioQuery, speakerID int) ([]byte, error) {
	if query == nil || query.SpeedScale <= 0 {
		return nil, fmt.Errorf("audio query が不正です")
	}

	var text string
	if raw, ok := query.Field("kana"); ok {
		_ = json.Unmarshal(raw, &text)
	}
	duration := time.Duration(float64(utf8.RuneCountInString(text)) * float64(stubRuneDuration) / query.SpeedScale)
	frames := int(math.Round(float64(DefaultSampleRate) * duration.Seconds()))

	// 話者ごとに音程を変え、pitchScale を半音単位ではなく周波数の倍率として反映する
	freq := (220.0 + float64(speakerID%12)*20.0) * math.Pow(2, query.PitchScale)
	samples := make([]int16, frames*DefaultChannels)
	for i := 0; i < frames; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/DefaultSampleRate) * 8000)
		for ch := 0; ch < DefaultChannels; ch++ {
			samples[i*DefaultChannels+ch] = v
		}
	}

	return encodePCM16(samples, DefaultSampleRate, DefaultChannels), nil
}

func (s *StubEngine) Version(context.Context) (string, error) {
	return "stub", nil
}
