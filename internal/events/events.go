// Package events carries scan and scoring notifications to the live display,
// the message broker and the log.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

// Type names an event kind
type Type string

const (
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeAborted   Type = "aborted"
	// TypeReset announces a new test cycle; it never means a pass finished
	TypeReset Type = "reset"
	TypeError Type = "error"
	TypeSaved Type = "saved"
)

// Event is one notification
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Pass      models.PassType `json:"pass_type,omitempty"`
	Payload   any             `json:"payload,omitempty"`
}

// New stamps a new event
func New(t Type, pass models.PassType, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Pass:      pass,
		Payload:   payload,
	}
}

// ProgressPayload reports one stored reading
type ProgressPayload struct {
	FrequencyHz int64   `json:"frequency_hz"`
	BandLabel   string  `json:"band_label,omitempty"`
	PowerDBm    float64 `json:"power_dbm"`
	Done        int     `json:"done"`
	Total       int     `json:"total"`
	Remaining   int     `json:"remaining"`
	// AttenuationDB is set for single-frequency hat measurements with a cached baseline
	AttenuationDB *float64 `json:"attenuation_db,omitempty"`
}

// CompletedPayload carries every cached reading of the finished pass
type CompletedPayload struct {
	Readings []models.PowerReading `json:"readings"`
	Failed   []int64               `json:"failed_frequencies"`
}

// AbortedPayload reports how far the pass got
type AbortedPayload struct {
	Done      int `json:"done"`
	Remaining int `json:"remaining"`
}

// ErrorPayload reports a failed frequency; the pass continues
type ErrorPayload struct {
	FrequencyHz int64  `json:"frequency_hz"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Remaining   int    `json:"remaining"`
}

// ResetPayload marks the start of a new test cycle
type ResetPayload struct {
	PreviousState string `json:"previous_state"`
}

// SavedPayload announces a recorded result
type SavedPayload struct {
	ResultID           int64          `json:"result_id"`
	ContestantID       int64          `json:"contestant_id"`
	ContestantName     string         `json:"contestant_name"`
	HatType            models.HatType `json:"hat_type"`
	AverageAttenuation float64        `json:"average_attenuation"`
	IsBestScore        bool           `json:"is_best_score"`
	Message            string         `json:"message"`
}

// Sink receives events. Publish must not block for long; it is called from
// the scan loop.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(e Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Fanout delivers every event to each registered sink in registration order
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout returns a fanout over sinks
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers another sink
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Publish(e Event) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(e)
	}
}

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})
