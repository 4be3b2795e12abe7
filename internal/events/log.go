package events

import (
	"github.com/rs/zerolog"
)

// LogSink writes events to a zerolog logger. Progress is logged at debug level.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink logging to logger
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(e Event) {
	var ev *zerolog.Event
	switch e.Type {
	case TypeProgress:
		ev = s.logger.Debug()
	case TypeError:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Info()
	}

	ev = ev.Str("event", string(e.Type)).Str("event_id", e.ID.String())
	if e.Pass != "" {
		ev = ev.Str("pass", string(e.Pass))
	}

	switch p := e.Payload.(type) {
	case ProgressPayload:
		ev.Int64("frequency_hz", p.FrequencyHz).
			Float64("power_dbm", p.PowerDBm).
			Int("remaining", p.Remaining).
			Msg("Frequency measured")
	case ErrorPayload:
		ev.Int64("frequency_hz", p.FrequencyHz).
			Str("kind", p.Kind).
			Str("error", p.Message).
			Msg("Frequency measurement failed")
	case CompletedPayload:
		ev.Int("readings", len(p.Readings)).
			Int("failed", len(p.Failed)).
			Msg("Pass completed")
	case AbortedPayload:
		ev.Int("done", p.Done).Int("remaining", p.Remaining).Msg("Pass aborted")
	case ResetPayload:
		ev.Str("previous_state", p.PreviousState).Msg("Scan reset")
	case SavedPayload:
		ev.Int64("result_id", p.ResultID).
			Int64("contestant_id", p.ContestantID).
			Float64("average_attenuation", p.AverageAttenuation).
			Bool("is_best_score", p.IsBestScore).
			Msg("Result saved")
	default:
		ev.Msg("Event")
	}
}
