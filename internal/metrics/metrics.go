// Package metrics exposes scanner and scoring activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/sampler"
)

// Metrics holds all collectors. It is an events.Sink so the scan loop feeds
// it the same way it feeds the display.
type Metrics struct {
	registry *prometheus.Registry

	readingsTotal   *prometheus.CounterVec   // stored readings (by pass)
	lastPowerDBm    *prometheus.GaugeVec     // last reading per pass and frequency
	errorsTotal     *prometheus.CounterVec   // failed frequencies (by kind)
	passesTotal     *prometheus.CounterVec   // finished passes (by pass, outcome)
	resetsTotal     prometheus.Counter       // test cycle resets
	resultsTotal    *prometheus.CounterVec   // saved results (by hat type)
	bestScoresTotal prometheus.Counter       // saved results that became a personal best
	lastAverage     *prometheus.GaugeVec     // last saved average attenuation (by hat type)
	captureSeconds  *prometheus.HistogramVec // capture duration (by outcome)
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		readingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatscore_readings_total",
				Help: "Power readings stored in the measurement cache",
			},
			[]string{"pass"},
		),
		lastPowerDBm: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hatscore_last_power_dbm",
				Help: "Most recent power reading in dBm",
			},
			[]string{"pass", "frequency_hz"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatscore_measurement_errors_total",
				Help: "Frequencies that could not be measured",
			},
			[]string{"kind"},
		),
		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatscore_passes_total",
				Help: "Measurement passes that ended",
			},
			[]string{"pass", "outcome"},
		),
		resetsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hatscore_resets_total",
				Help: "Test cycle resets",
			},
		),
		resultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatscore_results_saved_total",
				Help: "Test results recorded",
			},
			[]string{"hat_type"},
		),
		bestScoresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hatscore_best_scores_total",
				Help: "Recorded results that became the contestant's best",
			},
		),
		lastAverage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hatscore_last_average_attenuation_db",
				Help: "Average attenuation of the last recorded result",
			},
			[]string{"hat_type"},
		),
		captureSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hatscore_capture_duration_seconds",
				Help:    "Time spent capturing and reducing one frequency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"outcome"},
		),
	}
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Publish(e events.Event) {
	pass := string(e.Pass)
	switch p := e.Payload.(type) {
	case events.ProgressPayload:
		m.readingsTotal.WithLabelValues(pass).Inc()
		m.lastPowerDBm.WithLabelValues(pass, strconv.FormatInt(p.FrequencyHz, 10)).Set(p.PowerDBm)
	case events.ErrorPayload:
		m.errorsTotal.WithLabelValues(p.Kind).Inc()
	case events.CompletedPayload:
		m.passesTotal.WithLabelValues(pass, "completed").Inc()
	case events.AbortedPayload:
		m.passesTotal.WithLabelValues(pass, "aborted").Inc()
	case events.ResetPayload:
		m.resetsTotal.Inc()
		m.lastPowerDBm.Reset()
	case events.SavedPayload:
		m.resultsTotal.WithLabelValues(string(p.HatType)).Inc()
		m.lastAverage.WithLabelValues(string(p.HatType)).Set(p.AverageAttenuation)
		if p.IsBestScore {
			m.bestScoresTotal.Inc()
		}
	}
}

// InstrumentSampler wraps s so every capture is timed
func (m *Metrics) InstrumentSampler(s sampler.Sampler) sampler.Sampler {
	return &instrumented{next: s, hist: m.captureSeconds, now: time.Now}
}

type instrumented struct {
	next sampler.Sampler
	hist *prometheus.HistogramVec
	now  func() time.Time
}

func (i *instrumented) Measure(ctx context.Context, frequencyHz int64) (sampler.Measurement, error) {
	start := i.now()
	m, err := i.next.Measure(ctx, frequencyHz)
	i.hist.WithLabelValues(outcome(err)).Observe(i.now().Sub(start).Seconds())
	return m, err
}

func outcome(err error) string {
	var hwErr *sampler.HardwareError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sampler.ErrOutOfRange):
		return "out_of_range"
	case errors.As(err, &hwErr):
		return string(hwErr.Kind)
	default:
		return "error"
	}
}
