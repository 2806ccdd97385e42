package queue

import (
	"fmt"
	"math"
	"time"
)

// Виды backoff.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Backoff — политика задержки перед следующей попыткой.
type Backoff struct {
	// Kind — "exponential" или "fixed".
	Kind string `json:"kind"`

	// BaseDelay — задержка перед второй попыткой.
	BaseDelay time.Duration `json:"base_delay"`

	// MaxDelay — верхняя граница задержки (0 — без ограничения).
	MaxDelay time.Duration `json:"max_delay"`
}

// Validate проверяет политику.
func (b Backoff) Validate() error {
	switch b.Kind {
	case BackoffExponential, BackoffFixed, "":
	default:
		return fmt.Errorf("%w: unknown backoff kind %q", ErrInvalidOptions, b.Kind)
	}
	if b.BaseDelay < 0 {
		return fmt.Errorf("%w: base delay must be >= 0", ErrInvalidOptions)
	}
	if b.MaxDelay > 0 && b.MaxDelay < b.BaseDelay {
		return fmt.Errorf("%w: max delay must be >= base delay", ErrInvalidOptions)
	}
	return nil
}

// Delay вычисляет задержку после неудачной попытки attempt (начиная с 1).
//
//   - "exponential": delay = base * 2^(attempt-1), capped at MaxDelay
//   - "fixed": delay = base
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.BaseDelay
	if b.Kind != BackoffFixed {
		for i := 1; i < attempt; i++ {
			if (b.MaxDelay > 0 && delay >= b.MaxDelay) || delay > math.MaxInt64/2 {
				break
			}
			delay *= 2
		}
	}

	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}
