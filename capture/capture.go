// Package capture provides IQ sample sources for the classification session:
// a networked rtl_tcp tuner and a replay source backed by stored dataset
// records.
package capture

import (
	"context"
	"errors"
	"time"

	"rtl-ml/radio"
)

// ErrCapture marks a failed tune or read. It is recoverable per target.
var ErrCapture = errors.New("capture failed")

// Source is a tunable stream of complex baseband samples. Implementations are
// used by one goroutine at a time.
type Source interface {
	SetFrequency(ctx context.Context, hz float64) error
	Read(ctx context.Context, duration time.Duration) (radio.Buffer, error)
	SampleRate() float64
	Close() error
}

// SampleCount converts a capture duration to a whole number of samples.
func SampleCount(rate float64, duration time.Duration) int {
	return int(rate * duration.Seconds())
}
