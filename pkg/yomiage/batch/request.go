package batch

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
)

// GenType は問題種別の出し分け方です。
type GenType int

const (
	AdditionOnly  GenType = iota // 全問加算
	ConfiguredMix                // 全問設定どおり
	Alternating                  // 偶数番目は加算、奇数番目は設定どおり
)

func (g GenType) String() string {
	switch g {
	case AdditionOnly:
		return "addition"
	case ConfiguredMix:
		return "mix"
	case Alternating:
		return "alternating"
	}
	return fmt.Sprintf("GenType(%d)", int(g))
}

func (g GenType) valid() bool {
	return g >= AdditionOnly && g <= Alternating
}

// ParseGenType は名前 (addition, mix, alternating) または番号 (0, 1, 2) から GenType を得ます。
func ParseGenType(s string) (GenType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "addition", "add":
		return AdditionOnly, nil
	case "mix", "mixed":
		return ConfiguredMix, nil
	case "alternating", "alt":
		return Alternating, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !GenType(n).valid() {
		return 0, &ErrInvalidRequest{Field: "gen_type", Reason: fmt.Sprintf("不明な値です: %q", s)}
	}
	return GenType(n), nil
}

// EffectiveConfig は iteration 番目 (0 始まり) の問題に使う出題条件を返します。
func EffectiveConfig(g GenType, base problem.Config, iteration int) problem.Config {
	switch g {
	case AdditionOnly:
		return base.WithoutSubtractions()
	case Alternating:
		if iteration%2 == 0 {
			return base.WithoutSubtractions()
		}
	}
	return base
}

// Request は1回のバッチ生成の要求です。バッチ開始後は変更しません。
type Request struct {
	Problem    problem.Config
	Count      int
	GenType    GenType
	SpeedScale float64
	OutputRoot string
}

func (r Request) validate() error {
	switch {
	case r.Count < 0:
		return &ErrInvalidRequest{Field: "count", Reason: "0 以上である必要があります"}
	case !r.GenType.valid():
		return &ErrInvalidRequest{Field: "gen_type", Reason: fmt.Sprintf("不明な値です: %d", int(r.GenType))}
	case r.SpeedScale <= 0:
		return &ErrInvalidRequest{Field: "speed_scale", Reason: "正の値である必要があります"}
	case r.OutputRoot == "":
		return &ErrInvalidRequest{Field: "output_root", Reason: "出力先が指定されていません"}
	}
	return nil
}

// State はバッチの状態です。
type State int

const (
	Idle State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result はバッチの結果です。
type Result struct {
	BatchID string
	State   State
	Dir     string   // バッチディレクトリ
	Files   []string // 書き出したWAVファイル (生成順)
}

// CancelToken はバッチ外から立てるキャンセル要求です。1回のバッチごとに作成します。
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
}

func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel はキャンセルを要求します。複数回呼び出しても構いません。
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
