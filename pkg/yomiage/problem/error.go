package problem

import "fmt"

// ErrInvalidConfig は出題条件が不正、または条件を満たす問題を作れないことを示します。
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("出題条件が不正です: %s", e.Reason)
	}
	return fmt.Sprintf("出題条件が不正です (%s): %s", e.Field, e.Reason)
}
