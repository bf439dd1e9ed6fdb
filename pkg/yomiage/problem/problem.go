package problem

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const (
	KindAddition = "加算"
	KindMixed    = "加減算"

	// maxAttempts は負の途中経過を避けるための再生成回数の上限です。
	maxAttempts = 1000
)

// KindOf は引き算の口数から問題種別の表示名を返します。
func KindOf(subtractions int) string {
	if subtractions == 0 {
		return KindAddition
	}
	return KindMixed
}

// Problem は生成された1問分の読み上げ算です。
// Terms は読み上げ順の各口の値で、負の値は引き算を表します。
type Problem struct {
	Config Config
	Terms  []int64
}

// Answer は全ての口を計算した答えを返します。
func (p *Problem) Answer() int64 {
	var sum int64
	for _, t := range p.Terms {
		sum += t
	}
	return sum
}

// ScriptMeta は出題条件を案内する読み上げ文です。
func (p *Problem) ScriptMeta() string {
	c := p.Config
	if c.MinDigit == c.MaxDigit {
		return fmt.Sprintf("%d桁%d口、%sです。", c.MinDigit, c.Length, KindOf(c.Subtractions))
	}
	return fmt.Sprintf("%d桁から%d桁、%d口、%sです。", c.MinDigit, c.MaxDigit, c.Length, KindOf(c.Subtractions))
}

// ScriptProblem は問題本体の読み上げ文です。
func (p *Problem) ScriptProblem() string {
	var b strings.Builder
	b.WriteString("願いましては、")
	for i, t := range p.Terms {
		switch {
		case t < 0 && (i == 0 || p.Terms[i-1] >= 0):
			b.WriteString("引いては、")
		case t >= 0 && i > 0 && p.Terms[i-1] < 0:
			b.WriteString("加えて、")
		}
		v := t
		if v < 0 {
			v = -v
		}
		fmt.Fprintf(&b, "%d円なり、", v)
	}
	b.WriteString("では。")
	return b.String()
}

// ScriptAnswer は答えの読み上げ文です。
func (p *Problem) ScriptAnswer() string {
	ans := p.Answer()
	if ans < 0 {
		return fmt.Sprintf("答えは、マイナス%d円です。", -ans)
	}
	return fmt.Sprintf("答えは、%d円です。", ans)
}

// Generator は乱数から問題を生成します。複数のゴルーチンから安全に呼び出せます。
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator は現在時刻をシードにした Generator を返します。
func NewGenerator() *Generator {
	seed := uint64(time.Now().UnixNano())
	return NewSeededGenerator(seed)
}

// NewSeededGenerator は固定シードの Generator を返します。同じシードからは同じ問題列が得られます。
func NewSeededGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewProblem は cfg に従って1問生成します。
func (g *Generator) NewProblem(cfg Config) (*Problem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if terms, ok := g.tryTerms(cfg); ok {
			return &Problem{Config: cfg, Terms: terms}, nil
		}
	}
	return nil, &ErrInvalidConfig{Reason: fmt.Sprintf("途中経過が負にならない問題を %d 回の試行で生成できませんでした", maxAttempts)}
}

func (g *Generator) tryTerms(cfg Config) ([]int64, bool) {
	// 1口目以外から引き算の位置を選ぶ
	minus := make(map[int]bool, cfg.Subtractions)
	for _, idx := range g.rng.Perm(cfg.Length - 1)[:cfg.Subtractions] {
		minus[idx+1] = true
	}

	terms := make([]int64, cfg.Length)
	var total int64
	for i := range terms {
		v := g.number(cfg)
		if minus[i] {
			if !cfg.AllowNegative && v > total {
				return nil, false
			}
			v = -v
		}
		terms[i] = v
		total += v
	}
	return terms, true
}

func (g *Generator) number(cfg Config) int64 {
	digits := cfg.MinDigit + g.rng.IntN(cfg.MaxDigit-cfg.MinDigit+1)
	lo := pow10(digits - 1)
	hi := pow10(digits) - 1
	return lo + g.rng.Int64N(hi-lo+1)
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
