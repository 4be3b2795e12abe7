// Package samplertest provides a scripted Sampler for exercising scan logic without a receiver.
package samplertest

import (
	"context"
	"sync"
	"time"

	"github.com/tinfoilhat/hatscore/internal/sampler"
)

// Scripted returns fixed power values per frequency. Frequencies with a
// configured failure return that error instead. Unknown frequencies read
// DefaultDBm.
type Scripted struct {
	DefaultDBm float64

	// Delay, when set, is waited out before each reading (or until ctx is done)
	Delay time.Duration

	mu       sync.Mutex
	power    map[int64]float64
	failures map[int64]error
	calls    []int64
	hook     func(frequencyHz int64)
}

// New returns a Scripted sampler reading powers
func New(powers map[int64]float64) *Scripted {
	s := &Scripted{
		DefaultDBm: -60,
		power:      make(map[int64]float64, len(powers)),
		failures:   make(map[int64]error),
	}
	for f, p := range powers {
		s.power[f] = p
	}
	return s
}

// SetPower changes the reading for a frequency
func (s *Scripted) SetPower(frequencyHz int64, dbm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power[frequencyHz] = dbm
}

// SetPowers replaces every configured reading
func (s *Scripted) SetPowers(powers map[int64]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = make(map[int64]float64, len(powers))
	for f, p := range powers {
		s.power[f] = p
	}
}

// Fail makes every reading at frequencyHz return err; a nil err clears it
func (s *Scripted) Fail(frequencyHz int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, frequencyHz)
		return
	}
	s.failures[frequencyHz] = err
}

// OnMeasure registers a callback run at the start of each Measure call
func (s *Scripted) OnMeasure(fn func(frequencyHz int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Calls returns the frequencies measured so far, in call order
func (s *Scripted) Calls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.calls...)
}

func (s *Scripted) Measure(ctx context.Context, frequencyHz int64) (sampler.Measurement, error) {
	if err := sampler.CheckRange(frequencyHz); err != nil {
		return sampler.Measurement{}, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, frequencyHz)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(frequencyHz)
	}

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return sampler.Measurement{}, sampler.NewHardwareError(sampler.KindCaptureFailed, frequencyHz, ctx.Err())
		case <-time.After(s.Delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[frequencyHz]; err != nil {
		return sampler.Measurement{}, err
	}

	p, ok := s.power[frequencyHz]
	if !ok {
		p = s.DefaultDBm
	}
	return sampler.Measurement{
		FrequencyHz: frequencyHz,
		PowerDBm:    p,
		CapturedAt:  time.Now().UTC(),
	}, nil
}
