package problem

import "fmt"

// MaxDigits は1口あたりの最大桁数です (int64 で扱える範囲)。
const MaxDigits = 15

// Config は1問分の読み上げ算の出題条件です。
type Config struct {
	MinDigit      int  `yaml:"min_digit"`
	MaxDigit      int  `yaml:"max_digit"`
	Length        int  `yaml:"length"`       // 口数
	Subtractions  int  `yaml:"subtractions"` // 引き算の口数。0 なら加算のみ
	AllowNegative bool `yaml:"allow_negative"`
}

// SubtractionsEnabled は引き算を含む出題かどうかを返します。
func (c Config) SubtractionsEnabled() bool {
	return c.Subtractions > 0
}

// WithoutSubtractions は引き算を無効にした設定を返します。
func (c Config) WithoutSubtractions() Config {
	c.Subtractions = 0
	return c
}

// Validate は出題条件の整合性を確認します。
func (c Config) Validate() error {
	switch {
	case c.MinDigit < 1:
		return &ErrInvalidConfig{Field: "min_digit", Reason: "1 以上である必要があります"}
	case c.MaxDigit < c.MinDigit:
		return &ErrInvalidConfig{Field: "max_digit", Reason: fmt.Sprintf("min_digit (%d) 以上である必要があります", c.MinDigit)}
	case c.MaxDigit > MaxDigits:
		return &ErrInvalidConfig{Field: "max_digit", Reason: fmt.Sprintf("%d 以下である必要があります", MaxDigits)}
	case c.Length < 1:
		return &ErrInvalidConfig{Field: "length", Reason: "1 以上である必要があります"}
	case c.Subtractions < 0:
		return &ErrInvalidConfig{Field: "subtractions", Reason: "0 以上である必要があります"}
	case c.Subtractions >= c.Length:
		// 1口目は必ず加算になる
		return &ErrInvalidConfig{Field: "subtractions", Reason: fmt.Sprintf("口数 (%d) 未満である必要があります", c.Length)}
	}
	return nil
}
