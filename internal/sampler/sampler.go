// Package sampler turns a tuned receiver capture into a single calibrated power value.
package sampler

import (
	"context"
	"time"
)

// Receiver tuning limits (HackRF One)
const (
	MinFrequencyHz int64 = 1_000_000
	MaxFrequencyHz int64 = 6_000_000_000
)

// Measurement is one calibrated power reading taken by a Sampler
type Measurement struct {
	FrequencyHz int64
	PowerDBm    float64
	CapturedAt  time.Time
}

// Sampler measures signal power at a single center frequency. Implementations
// block until the capture completes or times out and must never substitute a
// made-up value for a failed capture.
type Sampler interface {
	Measure(ctx context.Context, frequencyHz int64) (Measurement, error)
}

// CheckRange rejects frequencies the receiver cannot tune to
func CheckRange(frequencyHz int64) error {
	if frequencyHz < MinFrequencyHz || frequencyHz > MaxFrequencyHz {
		return &OutOfRangeError{FrequencyHz: frequencyHz, MinHz: MinFrequencyHz, MaxHz: MaxFrequencyHz}
	}
	return nil
}
