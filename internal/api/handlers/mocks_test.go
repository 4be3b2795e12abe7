package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tinfoilhat/hatscore/internal/attenuation"
	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/recorder"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/scan"
	"github.com/tinfoilhat/hatscore/internal/storage"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// MockScanController implements ScanController for testing
type MockScanController struct {
	mock.Mock
}

func (m *MockScanController) Plan() *plan.Plan {
	args := m.Called()
	return args.Get(0).(*plan.Plan)
}

func (m *MockScanController) State() scan.Snapshot {
	args := m.Called()
	return args.Get(0).(scan.Snapshot)
}

func (m *MockScanController) Step(ctx context.Context) (*scan.StepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scan.StepResult), args.Error(1)
}

func (m *MockScanController) Abort() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockScanController) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockScanController) MeasureFrequency(ctx context.Context, pass models.PassType, frequencyHz int64) (*scan.MeasureResult, error) {
	args := m.Called(ctx, pass, frequencyHz)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scan.MeasureResult), args.Error(1)
}

func (m *MockScanController) CachedReadings(ctx context.Context, pass models.PassType) ([]models.PowerReading, error) {
	args := m.Called(ctx, pass)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PowerReading), args.Error(1)
}

// MockPassStarter implements PassStarter for testing
type MockPassStarter struct {
	mock.Mock
}

func (m *MockPassStarter) Start(ctx context.Context, pass models.PassType) (scan.Snapshot, error) {
	args := m.Called(ctx, pass)
	return args.Get(0).(scan.Snapshot), args.Error(1)
}

// MockResultRecorder implements ResultRecorder for testing
type MockResultRecorder struct {
	mock.Mock
}

func (m *MockResultRecorder) Score(ctx context.Context, p *plan.Plan) (*attenuation.Result, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*attenuation.Result), args.Error(1)
}

func (m *MockResultRecorder) SaveFromCache(ctx context.Context, p *plan.Plan, contestantID int64, hatType models.HatType) (*recorder.Outcome, error) {
	args := m.Called(ctx, p, contestantID, hatType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recorder.Outcome), args.Error(1)
}

func (m *MockResultRecorder) LastResult(ctx context.Context, contestantID int64) (*models.TestResult, []models.TestDataPoint, error) {
	args := m.Called(ctx, contestantID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.TestResult), args.Get(1).([]models.TestDataPoint), args.Error(2)
}

// MockResultRepository implements repository.ResultRepository for testing
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) SaveResult(ctx context.Context, r repository.NewResult) (*repository.SaveOutcome, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.SaveOutcome), args.Error(1)
}

func (m *MockResultRepository) GetResult(ctx context.Context, id int64) (*models.TestResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) GetLastResult(ctx context.Context, contestantID int64) (*models.TestResult, error) {
	args := m.Called(ctx, contestantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) GetLatestResult(ctx context.Context) (*models.TestResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) GetResultsByContestant(ctx context.Context, contestantID int64) ([]*models.TestResult, error) {
	args := m.Called(ctx, contestantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) GetDataPoints(ctx context.Context, resultID int64) ([]models.TestDataPoint, error) {
	args := m.Called(ctx, resultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TestDataPoint), args.Error(1)
}

func (m *MockResultRepository) Leaderboard(ctx context.Context, hatType *models.HatType, limit int) ([]models.LeaderboardEntry, error) {
	args := m.Called(ctx, hatType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LeaderboardEntry), args.Error(1)
}

// MockContestantRepository implements repository.ContestantRepository for testing
type MockContestantRepository struct {
	mock.Mock
}

func (m *MockContestantRepository) Create(ctx context.Context, c *models.Contestant) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockContestantRepository) GetByID(ctx context.Context, id int64) (*models.Contestant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contestant), args.Error(1)
}

func (m *MockContestantRepository) GetByName(ctx context.Context, name string) (*models.Contestant, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contestant), args.Error(1)
}

func (m *MockContestantRepository) List(ctx context.Context) ([]*models.Contestant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Contestant), args.Error(1)
}

// MockArchive implements storage.ReportArchive for testing
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Store(ctx context.Context, r *storage.Report) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

func (m *MockArchive) Fetch(ctx context.Context, key string) (*storage.Report, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Report), args.Error(1)
}

func (m *MockArchive) DownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}
