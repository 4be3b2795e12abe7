package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// ErrInterrupted is returned by MeasureFrequency when a reset or a new pass
// began while the capture was running. The reading is discarded.
var ErrInterrupted = errors.New("measurement interrupted by a new test cycle")

// Options tunes the controller's failure policy
type Options struct {
	// RetryAttempts is how many extra captures a frequency gets after a hardware error
	RetryAttempts int
	RetryDelay    time.Duration
}

// StepResult describes one processed frequency
type StepResult struct {
	FrequencyHz int64
	Reading     *models.PowerReading
	// Err is the per-frequency failure; the pass continues past it
	Err      error
	Snapshot Snapshot
}

// MeasureResult is a single-frequency reading taken outside a pass
type MeasureResult struct {
	Reading       models.PowerReading
	BandLabel     string
	AttenuationDB *float64
}

// Controller owns the receiver. There must be exactly one per physical device.
type Controller struct {
	plan    *plan.Plan
	sampler sampler.Sampler
	cache   repository.MeasurementCache
	sink    events.Sink
	opts    Options
	now     func() time.Time

	// stepMu serializes receiver use
	stepMu sync.Mutex

	// mu guards status and generation. Cache writes and event publishing
	// happen under it so their order matches the state changes.
	mu         sync.Mutex
	status     status
	generation uint64
}

// NewController returns an idle controller
func NewController(p *plan.Plan, s sampler.Sampler, cache repository.MeasurementCache, sink events.Sink, opts Options) *Controller {
	if sink == nil {
		sink = events.Discard
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	return &Controller{
		plan:    p,
		sampler: s,
		cache:   cache,
		sink:    sink,
		opts:    opts,
		now:     time.Now,
		status:  status{State: StateIdle},
	}
}

// Plan returns the frequency plan the controller scans
func (c *Controller) Plan() *plan.Plan {
	return c.plan
}

// State returns the current state. It never waits for a capture.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.snapshot()
}

// StartPass begins a pass over the whole plan. The cached readings of that
// pass type are cleared first.
func (c *Controller) StartPass(ctx context.Context, pass models.PassType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, evs, err := transition(c.status, startInput{pass: pass, points: c.plan.Points()})
	if err != nil {
		return err
	}

	if err := c.cache.Clear(ctx, pass); err != nil {
		return fmt.Errorf("failed to clear %s readings: %w", pass, err)
	}

	c.generation++
	c.apply(next, evs)

	log.Info().Str("pass", string(pass)).Int("frequencies", next.Total).Msg("Scan pass started")
	return nil
}

// Step measures the next frequency of the running pass. A hardware failure is
// reported in the result and as an error event; the pass moves on. When the
// last frequency is done the pass completes.
func (c *Controller) Step(ctx context.Context) (*StepResult, error) {
	return c.step(ctx, nil)
}

// step runs one Step; a non-nil onlyGen restricts it to that pass generation
func (c *Controller) step(ctx context.Context, onlyGen *uint64) (*StepResult, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	c.mu.Lock()
	if c.status.State != StateScanning || (onlyGen != nil && *onlyGen != c.generation) {
		c.mu.Unlock()
		return nil, ErrNotScanning
	}
	if len(c.status.Remaining) == 0 {
		// a previous completion could not read the cache back
		defer c.mu.Unlock()
		if err := c.completeLocked(ctx); err != nil {
			return nil, err
		}
		return &StepResult{Snapshot: c.status.snapshot()}, nil
	}
	point := c.status.Remaining[0]
	pass := c.status.Pass
	gen := c.generation
	c.mu.Unlock()

	m, measureErr := c.measure(ctx, point.FrequencyHz)
	if measureErr != nil && ctx.Err() != nil {
		// the caller gave up; the frequency stays queued
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		log.Debug().Str("frequency", plan.FormatHz(point.FrequencyHz)).Msg("Discarding reading from a superseded pass")
		return nil, ErrNotScanning
	}

	res := &StepResult{FrequencyHz: point.FrequencyHz}

	if measureErr != nil {
		res.Err = measureErr
		log.Warn().Err(measureErr).
			Str("pass", string(pass)).
			Str("frequency", plan.FormatHz(point.FrequencyHz)).
			Msg("Frequency measurement failed, continuing")

		if c.status.State != StateScanning {
			res.Snapshot = c.status.snapshot()
			return res, nil
		}
		next, evs, err := transition(c.status, failedInput{frequencyHz: point.FrequencyHz, err: measureErr})
		if err != nil {
			return nil, err
		}
		c.apply(next, evs)
	} else {
		reading := models.PowerReading{
			PassType:    pass,
			FrequencyHz: point.FrequencyHz,
			PowerDBm:    m.PowerDBm,
			CapturedAt:  m.CapturedAt,
		}
		if reading.CapturedAt.IsZero() {
			reading.CapturedAt = c.now().UTC()
		}

		// the cache write must land before anyone hears about it
		if err := c.cache.Put(ctx, reading); err != nil {
			return nil, fmt.Errorf("failed to cache reading: %w", err)
		}
		res.Reading = &reading

		if c.status.State != StateScanning {
			// aborted while capturing; the reading is kept but the pass is over
			res.Snapshot = c.status.snapshot()
			return res, nil
		}
		next, evs, err := transition(c.status, measuredInput{reading: reading})
		if err != nil {
			return nil, err
		}
		c.apply(next, evs)
	}

	if len(c.status.Remaining) == 0 {
		if err := c.completeLocked(ctx); err != nil {
			return nil, err
		}
	}

	res.Snapshot = c.status.snapshot()
	return res, nil
}

func (c *Controller) completeLocked(ctx context.Context) error {
	readings, err := c.cache.Get(ctx, c.status.Pass)
	if err != nil {
		return fmt.Errorf("failed to read back %s readings: %w", c.status.Pass, err)
	}

	next, evs, err := transition(c.status, completeInput{readings: readings})
	if err != nil {
		return err
	}
	c.apply(next, evs)

	log.Info().
		Str("pass", string(next.Pass)).
		Int("readings", len(readings)).
		Int("failed", len(next.Failed)).
		Msg("Scan pass completed")
	return nil
}

// RunToCompletion steps until the pass completes, is aborted or reset, or ctx
// is done. Abort is observed between steps only. A pass started after this
// call began is left to its own runner.
func (c *Controller) RunToCompletion(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	for {
		c.mu.Lock()
		snap := c.status.snapshot()
		current := c.generation
		c.mu.Unlock()

		if snap.State != StateScanning || current != gen {
			return snap, nil
		}
		if err := ctx.Err(); err != nil {
			return snap, err
		}

		if _, err := c.step(ctx, &gen); err != nil {
			if errors.Is(err, ErrNotScanning) {
				return c.State(), nil
			}
			return c.State(), err
		}
	}
}

// Abort stops the running pass after the current capture. Readings already
// cached are kept.
func (c *Controller) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, evs, err := transition(c.status, abortInput{})
	if err != nil {
		return err
	}
	c.apply(next, evs)

	log.Info().Str("pass", string(next.Pass)).Int("done", next.done()).Msg("Scan pass aborted")
	return nil
}

// Reset clears every cached reading and returns to idle, whatever the state.
// A capture in flight finishes but its reading is dropped.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(ctx)
}

// Finish ends the test cycle after its result is recorded. It resets like
// Reset but returns ErrAlreadyScanning instead of dropping a running pass.
func (c *Controller) Finish(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.State == StateScanning {
		return ErrAlreadyScanning
	}
	return c.resetLocked(ctx)
}

func (c *Controller) resetLocked(ctx context.Context) error {
	if err := c.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear measurement cache: %w", err)
	}

	previous := c.status.State
	next, evs, err := transition(c.status, resetInput{})
	if err != nil {
		return err
	}
	c.generation++
	c.apply(next, evs)

	log.Info().Str("previous_state", string(previous)).Msg("Scan state reset")
	return nil
}

// MeasureFrequency takes one reading outside a pass and caches it. For the hat
// pass the attenuation against the cached baseline at that frequency is
// reported when a baseline exists.
func (c *Controller) MeasureFrequency(ctx context.Context, pass models.PassType, frequencyHz int64) (*MeasureResult, error) {
	if !pass.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPass, pass)
	}
	if err := sampler.CheckRange(frequencyHz); err != nil {
		return nil, err
	}
	if c.State().State == StateScanning {
		return nil, ErrAlreadyScanning
	}

	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	c.mu.Lock()
	gen := c.generation
	scanning := c.status.State == StateScanning
	c.mu.Unlock()
	if scanning {
		return nil, ErrAlreadyScanning
	}

	m, err := c.measure(ctx, frequencyHz)
	if err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.sink.Publish(events.New(events.TypeError, pass, events.ErrorPayload{
				FrequencyHz: frequencyHz,
				Kind:        errorKind(err),
				Message:     err.Error(),
			}))
		}
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return nil, ErrInterrupted
	}

	reading := models.PowerReading{
		PassType:    pass,
		FrequencyHz: frequencyHz,
		PowerDBm:    m.PowerDBm,
		CapturedAt:  m.CapturedAt,
	}
	if reading.CapturedAt.IsZero() {
		reading.CapturedAt = c.now().UTC()
	}

	out := &MeasureResult{Reading: reading}
	if pt, ok := c.plan.Lookup(frequencyHz); ok {
		out.BandLabel = pt.BandLabel
	}

	if pass == models.PassHat {
		att, err := c.liveAttenuation(ctx, reading)
		if err != nil {
			return nil, err
		}
		out.AttenuationDB = att
	}

	next, evs, err := transition(c.status, manualInput{reading: reading, bandLabel: out.BandLabel, attenuation: out.AttenuationDB})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(ctx, reading); err != nil {
		return nil, fmt.Errorf("failed to cache reading: %w", err)
	}
	c.apply(next, evs)

	return out, nil
}

func (c *Controller) liveAttenuation(ctx context.Context, hat models.PowerReading) (*float64, error) {
	baseline, err := c.cache.Get(ctx, models.PassBaseline)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}
	for _, b := range baseline {
		if b.FrequencyHz == hat.FrequencyHz {
			att := math.Round((b.PowerDBm-hat.PowerDBm)*100) / 100
			return &att, nil
		}
	}
	return nil, nil
}

// CachedReadings returns the stored readings of a pass, ordered by frequency
func (c *Controller) CachedReadings(ctx context.Context, pass models.PassType) ([]models.PowerReading, error) {
	if !pass.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPass, pass)
	}
	return c.cache.Get(ctx, pass)
}

// measure captures one frequency, retrying hardware failures per Options
func (c *Controller) measure(ctx context.Context, frequencyHz int64) (sampler.Measurement, error) {
	for attempt := 0; ; attempt++ {
		m, err := c.sampler.Measure(ctx, frequencyHz)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, sampler.ErrHardware) || attempt >= c.opts.RetryAttempts || ctx.Err() != nil {
			return sampler.Measurement{}, err
		}

		log.Debug().Err(err).
			Str("frequency", plan.FormatHz(frequencyHz)).
			Int("attempt", attempt+1).
			Msg("Retrying frequency")

		if c.opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return sampler.Measurement{}, err
			case <-time.After(c.opts.RetryDelay):
			}
		}
	}
}

// apply installs next and publishes evs; mu must be held
func (c *Controller) apply(next status, evs []events.Event) {
	c.status = next
	for _, e := range evs {
		c.sink.Publish(e)
	}
}
