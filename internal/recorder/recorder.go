// Package recorder persists scored tests and keeps each contestant's best score.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/attenuation"
	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/scan"
	"github.com/tinfoilhat/hatscore/internal/storage"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

var (
	ErrContestantNotFound = errors.New("contestant not found")
	ErrInvalidHatType     = errors.New("invalid hat type")
	// ErrNoResults is returned when a contestant has never been tested
	ErrNoResults = errors.New("no results recorded")
	// ErrPassAborted is returned when the last pass was aborted before it finished
	ErrPassAborted = errors.New("pass aborted before completion")
)

// Cycle is the scan controller as the recorder sees it
type Cycle interface {
	State() scan.Snapshot
	Finish(ctx context.Context) error
}

// Outcome is a recorded test and the operator message for it
type Outcome struct {
	Result       *models.TestResult
	Contestant   *models.Contestant
	DataPoints   []models.TestDataPoint
	PreviousBest *float64
	Message      string
	// ArchiveKey is empty when archiving is disabled or failed
	ArchiveKey string
}

// Recorder is the only writer of test results
type Recorder struct {
	results     repository.ResultRepository
	contestants repository.ContestantRepository
	cache       repository.MeasurementCache
	cycle       Cycle
	sink        events.Sink
	archive     storage.ReportArchive
	now         func() time.Time

	// per-contestant save locks, *sync.Mutex keyed by contestant id
	locks sync.Map
}

// New returns a recorder. archive may be nil.
func New(results repository.ResultRepository, contestants repository.ContestantRepository, cache repository.MeasurementCache, cycle Cycle, sink events.Sink, archive storage.ReportArchive) *Recorder {
	if sink == nil {
		sink = events.Discard
	}
	return &Recorder{
		results:     results,
		contestants: contestants,
		cache:       cache,
		cycle:       cycle,
		sink:        sink,
		archive:     archive,
		now:         time.Now,
	}
}

func (r *Recorder) lock(contestantID int64) func() {
	v, _ := r.locks.LoadOrStore(contestantID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ready rejects scoring while a pass is running or after one was aborted
func (r *Recorder) ready() error {
	snap := r.cycle.State()
	switch snap.State {
	case scan.StateScanning:
		return fmt.Errorf("%w: %s pass at %d/%d", scan.ErrAlreadyScanning, snap.Pass, snap.Done, snap.Total)
	case scan.StateAborted:
		return fmt.Errorf("%w: %s pass stopped at %d/%d", ErrPassAborted, snap.Pass, snap.Done, snap.Total)
	}
	return nil
}

// Score computes the attenuation of the cached baseline and hat passes. The
// controller must be idle or have completed its last pass.
func (r *Recorder) Score(ctx context.Context, p *plan.Plan) (*attenuation.Result, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	baseline, err := r.cache.Get(ctx, models.PassBaseline)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline readings: %w", err)
	}
	hat, err := r.cache.Get(ctx, models.PassHat)
	if err != nil {
		return nil, fmt.Errorf("failed to read hat readings: %w", err)
	}
	return attenuation.Compute(p, baseline, hat)
}

// SaveFromCache scores the cached passes and records the result
func (r *Recorder) SaveFromCache(ctx context.Context, p *plan.Plan, contestantID int64, hatType models.HatType) (*Outcome, error) {
	res, err := r.Score(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.Save(ctx, contestantID, hatType, res)
}

// Save records a scored test for the contestant. The result, its data points
// and the best-score flag are written in one transaction; nothing is written
// when the score has no valid measurements. The test cycle is finished
// afterwards so the next contestant starts fresh.
func (r *Recorder) Save(ctx context.Context, contestantID int64, hatType models.HatType, res *attenuation.Result) (*Outcome, error) {
	if res == nil || res.ValidCount == 0 {
		return nil, attenuation.ErrNoValidMeasurements
	}
	if !hatType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHatType, hatType)
	}

	contestant, err := r.contestants.GetByID(ctx, contestantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrContestantNotFound, contestantID)
		}
		return nil, fmt.Errorf("failed to load contestant: %w", err)
	}

	unlock := r.lock(contestantID)
	saved, err := r.results.SaveResult(ctx, repository.NewResult{
		ContestantID:       contestantID,
		HatType:            hatType,
		TestDate:           r.now().UTC(),
		AverageAttenuation: res.AverageAttenuation,
		DataPoints:         res.DataPoints(),
	})
	unlock()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrContestantNotFound, contestantID)
		}
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	points := res.DataPoints()
	for i := range points {
		points[i].TestResultID = saved.Result.ID
	}

	out := &Outcome{
		Result:       saved.Result,
		Contestant:   contestant,
		DataPoints:   points,
		PreviousBest: saved.PreviousBest,
		Message:      ScoreMessage(contestant.Name, saved.Result.AverageAttenuation, saved.Result.IsBestScore, saved.PreviousBest),
	}

	log.Info().
		Int64("result_id", saved.Result.ID).
		Str("contestant", contestant.Name).
		Str("hat_type", string(hatType)).
		Float64("average_attenuation", saved.Result.AverageAttenuation).
		Bool("is_best_score", saved.Result.IsBestScore).
		Msg("Test result recorded")

	r.sink.Publish(events.New(events.TypeSaved, models.PassHat, events.SavedPayload{
		ResultID:           saved.Result.ID,
		ContestantID:       contestant.ID,
		ContestantName:     contestant.Name,
		HatType:            hatType,
		AverageAttenuation: saved.Result.AverageAttenuation,
		IsBestScore:        saved.Result.IsBestScore,
		Message:            out.Message,
	}))

	if r.archive != nil {
		key, err := r.archive.Store(ctx, &storage.Report{
			Result:         *saved.Result,
			ContestantName: contestant.Name,
			DataPoints:     points,
			BandSummary:    res.BandSummary,
			RangeSummary:   res.RangeSummary,
			PreviousBest:   saved.PreviousBest,
		})
		if err != nil {
			// the database row is the record of truth
			log.Warn().Err(err).Int64("result_id", saved.Result.ID).Msg("Failed to archive test report")
		} else {
			out.ArchiveKey = key
		}
	}

	if err := r.cycle.Finish(ctx); err != nil {
		// the result is stored; a pass started since keeps its readings
		log.Warn().Err(err).Int64("result_id", saved.Result.ID).Msg("Failed to finish test cycle after save")
	}

	return out, nil
}

// LastResult returns the contestant's most recent result and its data points
func (r *Recorder) LastResult(ctx context.Context, contestantID int64) (*models.TestResult, []models.TestDataPoint, error) {
	if _, err := r.contestants.GetByID(ctx, contestantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %d", ErrContestantNotFound, contestantID)
		}
		return nil, nil, err
	}

	result, err := r.results.GetLastResult(ctx, contestantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNoResults
		}
		return nil, nil, err
	}

	points, err := r.results.GetDataPoints(ctx, result.ID)
	if err != nil {
		return nil, nil, err
	}
	return result, points, nil
}

// ScoreMessage is the operator-facing summary of a saved score
func ScoreMessage(name string, average float64, isBest bool, previousBest *float64) string {
	if average < 0 {
		msg := fmt.Sprintf("Warning: The hat shows negative attenuation (%.2f dB), "+
			"which means it's amplifying signals instead of blocking them.", average)
		if isBest || previousBest == nil {
			return msg + " This is still your best score so far."
		}
		return msg + fmt.Sprintf(" Your previous best score of %.2f dB is better.", *previousBest)
	}

	if isBest || previousBest == nil {
		return fmt.Sprintf("This is the best score for %s with an attenuation of %.2f dB.", name, average)
	}
	return fmt.Sprintf("Not the best score for %s. Previous best: %.2f dB, Current: %.2f dB.", name, *previousBest, average)
}
