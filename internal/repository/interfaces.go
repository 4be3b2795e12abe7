package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique column already holds the value
var ErrDuplicate = errors.New("already exists")

// MeasurementCache defines the durable (pass, frequency) -> latest reading store.
// Put must be durable before it returns.
type MeasurementCache interface {
	Put(ctx context.Context, reading models.PowerReading) error
	Get(ctx context.Context, pass models.PassType) ([]models.PowerReading, error)
	Clear(ctx context.Context, pass models.PassType) error
	ClearAll(ctx context.Context) error
}

// ContestantRepository defines the interface for contestant operations
type ContestantRepository interface {
	Create(ctx context.Context, c *models.Contestant) error
	GetByID(ctx context.Context, id int64) (*models.Contestant, error)
	GetByName(ctx context.Context, name string) (*models.Contestant, error)
	List(ctx context.Context) ([]*models.Contestant, error)
}

// NewResult is a scored test ready to be persisted
type NewResult struct {
	ContestantID       int64
	HatType            models.HatType
	TestDate           time.Time
	AverageAttenuation float64
	DataPoints         []models.TestDataPoint
}

// SaveOutcome is what SaveResult wrote
type SaveOutcome struct {
	Result *models.TestResult
	// PreviousBest is the contestant's best average before this save, nil on a first test
	PreviousBest *float64
}

// ResultRepository defines the interface for test result operations
type ResultRepository interface {
	// SaveResult writes the result and its data points and recomputes the
	// contestant's best-score flag, all in one transaction.
	SaveResult(ctx context.Context, r NewResult) (*SaveOutcome, error)
	GetResult(ctx context.Context, id int64) (*models.TestResult, error)
	GetLastResult(ctx context.Context, contestantID int64) (*models.TestResult, error)
	GetLatestResult(ctx context.Context) (*models.TestResult, error)
	GetResultsByContestant(ctx context.Context, contestantID int64) ([]*models.TestResult, error)
	GetDataPoints(ctx context.Context, resultID int64) ([]models.TestDataPoint, error)
	Leaderboard(ctx context.Context, hatType *models.HatType, limit int) ([]models.LeaderboardEntry, error)
}
