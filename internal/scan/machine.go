// Package scan drives measurement passes over the frequency plan.
package scan

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

var (
	// ErrAlreadyScanning is returned when a pass or measurement is requested while one is running
	ErrAlreadyScanning = errors.New("a scan is already in progress")

	// ErrNotScanning is returned by Step and Abort when no pass is running
	ErrNotScanning = errors.New("no scan in progress")

	// ErrInvalidPass is returned for an unknown pass type
	ErrInvalidPass = errors.New("invalid pass type")
)

// State is the controller's lifecycle position
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// status is the complete machine state. Values are never mutated in place;
// transition returns a new one.
type status struct {
	State     State
	Pass      models.PassType
	Remaining []models.FrequencyPoint
	Total     int
	Failed    []int64
}

func (s status) done() int {
	return s.Total - len(s.Remaining)
}

// Snapshot is a read-only view of the controller state
type Snapshot struct {
	State     State           `json:"state"`
	Pass      models.PassType `json:"pass_type,omitempty"`
	Done      int             `json:"frequencies_done"`
	Total     int             `json:"frequencies_total"`
	Remaining int             `json:"frequencies_remaining"`
	Failed    []int64         `json:"failed_frequencies,omitempty"`
}

func (s status) snapshot() Snapshot {
	return Snapshot{
		State:     s.State,
		Pass:      s.Pass,
		Done:      s.done(),
		Total:     s.Total,
		Remaining: len(s.Remaining),
		Failed:    slices.Clone(s.Failed),
	}
}

type input interface{ isInput() }

type startInput struct {
	pass   models.PassType
	points []models.FrequencyPoint
}

type measuredInput struct {
	reading models.PowerReading
}

type failedInput struct {
	frequencyHz int64
	err         error
}

type completeInput struct {
	readings []models.PowerReading
}

type abortInput struct{}

type resetInput struct{}

// manualInput is a single-frequency measurement outside a pass
type manualInput struct {
	reading     models.PowerReading
	bandLabel   string
	attenuation *float64
}

func (startInput) isInput()    {}
func (measuredInput) isInput() {}
func (failedInput) isInput()   {}
func (completeInput) isInput() {}
func (abortInput) isInput()    {}
func (resetInput) isInput()    {}
func (manualInput) isInput()   {}

// transition applies in to s. It has no side effects; the caller persists
// readings before applying measuredInput and publishes the returned events.
func transition(s status, in input) (status, []events.Event, error) {
	switch in := in.(type) {
	case startInput:
		if s.State == StateScanning {
			return s, nil, ErrAlreadyScanning
		}
		if !in.pass.Valid() {
			return s, nil, fmt.Errorf("%w: %q", ErrInvalidPass, in.pass)
		}
		return status{
			State:     StateScanning,
			Pass:      in.pass,
			Remaining: slices.Clone(in.points),
			Total:     len(in.points),
		}, nil, nil

	case measuredInput:
		if err := expectHead(s, in.reading.FrequencyHz); err != nil {
			return s, nil, err
		}
		head := s.Remaining[0]
		next := s
		next.Remaining = s.Remaining[1:]
		return next, []events.Event{events.New(events.TypeProgress, s.Pass, events.ProgressPayload{
			FrequencyHz: head.FrequencyHz,
			BandLabel:   head.BandLabel,
			PowerDBm:    in.reading.PowerDBm,
			Done:        next.done(),
			Total:       next.Total,
			Remaining:   len(next.Remaining),
		})}, nil

	case failedInput:
		if err := expectHead(s, in.frequencyHz); err != nil {
			return s, nil, err
		}
		next := s
		next.Remaining = s.Remaining[1:]
		next.Failed = append(slices.Clone(s.Failed), in.frequencyHz)
		return next, []events.Event{events.New(events.TypeError, s.Pass, events.ErrorPayload{
			FrequencyHz: in.frequencyHz,
			Kind:        errorKind(in.err),
			Message:     in.err.Error(),
			Remaining:   len(next.Remaining),
		})}, nil

	case completeInput:
		if s.State != StateScanning {
			return s, nil, ErrNotScanning
		}
		if len(s.Remaining) > 0 {
			return s, nil, fmt.Errorf("cannot complete pass with %d frequencies remaining", len(s.Remaining))
		}
		next := s
		next.State = StateCompleted
		readings := in.readings
		if readings == nil {
			readings = []models.PowerReading{}
		}
		failed := slices.Clone(s.Failed)
		if failed == nil {
			failed = []int64{}
		}
		return next, []events.Event{events.New(events.TypeCompleted, s.Pass, events.CompletedPayload{
			Readings: readings,
			Failed:   failed,
		})}, nil

	case abortInput:
		if s.State != StateScanning {
			return s, nil, ErrNotScanning
		}
		next := s
		next.State = StateAborted
		return next, []events.Event{events.New(events.TypeAborted, s.Pass, events.AbortedPayload{
			Done:      s.done(),
			Remaining: len(s.Remaining),
		})}, nil

	case resetInput:
		return status{State: StateIdle}, []events.Event{events.New(events.TypeReset, "", events.ResetPayload{
			PreviousState: string(s.State),
		})}, nil

	case manualInput:
		if s.State == StateScanning {
			return s, nil, ErrAlreadyScanning
		}
		return s, []events.Event{events.New(events.TypeProgress, in.reading.PassType, events.ProgressPayload{
			FrequencyHz:   in.reading.FrequencyHz,
			BandLabel:     in.bandLabel,
			PowerDBm:      in.reading.PowerDBm,
			Done:          1,
			Total:         1,
			AttenuationDB: in.attenuation,
		})}, nil
	}

	return s, nil, fmt.Errorf("unknown scan input %T", in)
}

func expectHead(s status, frequencyHz int64) error {
	if s.State != StateScanning {
		return ErrNotScanning
	}
	if len(s.Remaining) == 0 || s.Remaining[0].FrequencyHz != frequencyHz {
		return fmt.Errorf("frequency %d is not the next one in the pass", frequencyHz)
	}
	return nil
}

func errorKind(err error) string {
	var hwErr *sampler.HardwareError
	switch {
	case errors.As(err, &hwErr):
		return string(hwErr.Kind)
	case errors.Is(err, sampler.ErrOutOfRange):
		return "out_of_range"
	default:
		return "error"
	}
}
