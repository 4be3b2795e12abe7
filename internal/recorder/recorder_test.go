package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilhat/hatscore/internal/attenuation"
	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/scan"
	"github.com/tinfoilhat/hatscore/internal/storage"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

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
	return args.Get(0).([]*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) GetDataPoints(ctx context.Context, resultID int64) ([]models.TestDataPoint, error) {
	args := m.Called(ctx, resultID)
	return args.Get(0).([]models.TestDataPoint), args.Error(1)
}

func (m *MockResultRepository) Leaderboard(ctx context.Context, hatType *models.HatType, limit int) ([]models.LeaderboardEntry, error) {
	args := m.Called(ctx, hatType, limit)
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
	return args.Get(0).([]*models.Contestant), args.Error(1)
}

// MockCache implements repository.MeasurementCache for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Put(ctx context.Context, reading models.PowerReading) error {
	return m.Called(ctx, reading).Error(0)
}

func (m *MockCache) Get(ctx context.Context, pass models.PassType) ([]models.PowerReading, error) {
	args := m.Called(ctx, pass)
	return args.Get(0).([]models.PowerReading), args.Error(1)
}

func (m *MockCache) Clear(ctx context.Context, pass models.PassType) error {
	return m.Called(ctx, pass).Error(0)
}

func (m *MockCache) ClearAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockArchive implements storage.ReportArchive for testing
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Store(ctx context.Context, report *storage.Report) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

func (m *MockArchive) Fetch(ctx context.Context, key string) (*storage.Report, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(*storage.Report), args.Error(1)
}

func (m *MockArchive) DownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *sinkRecorder) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

var (
	fm   = int64(88_000_000)
	wifi = int64(2_400_000_000)
)

func scenarioPlan() *plan.Plan {
	return plan.MustNew([]models.FrequencyPoint{
		{FrequencyHz: fm, BandLabel: "FM"},
		{FrequencyHz: wifi, BandLabel: "WiFi"},
	})
}

func readings(pass models.PassType, values map[int64]float64) []models.PowerReading {
	var out []models.PowerReading
	for _, hz := range []int64{fm, wifi} {
		if v, ok := values[hz]; ok {
			out = append(out, models.PowerReading{PassType: pass, FrequencyHz: hz, PowerDBm: v})
		}
	}
	return out
}

func scenarioA(t *testing.T) *attenuation.Result {
	t.Helper()
	res, err := attenuation.Compute(scenarioPlan(),
		readings(models.PassBaseline, map[int64]float64{fm: -70, wifi: -80}),
		readings(models.PassHat, map[int64]float64{fm: -75, wifi: -65}))
	require.NoError(t, err)
	return res
}

func f64(v float64) *float64 { return &v }

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// fakeCycle stands in for the scan controller
type fakeCycle struct {
	mu        sync.Mutex
	state     scan.Snapshot
	finishErr error
	finished  int
}

func (f *fakeCycle) State() scan.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCycle) Finish(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finished++
	return nil
}

func (f *fakeCycle) finishes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

func newRecorder(results *MockResultRepository, contestants *MockContestantRepository, cache *MockCache, sink events.Sink, archive storage.ReportArchive) *Recorder {
	r := New(results, contestants, cache, &fakeCycle{state: scan.Snapshot{State: scan.StateCompleted, Pass: models.PassHat}}, sink, archive)
	r.now = func() time.Time { return fixedNow }
	return r
}

func cycleOf(r *Recorder) *fakeCycle {
	return r.cycle.(*fakeCycle)
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	cache := &MockCache{}
	archive := &MockArchive{}
	sink := &sinkRecorder{}

	contestants.On("GetByID", ctx, int64(7)).Return(&models.Contestant{ID: 7, Name: "Scully"}, nil)
	results.On("SaveResult", ctx, mock.MatchedBy(func(r repository.NewResult) bool {
		return r.ContestantID == 7 &&
			r.HatType == models.HatHybrid &&
			r.AverageAttenuation == -5 &&
			r.TestDate.Equal(fixedNow) &&
			len(r.DataPoints) == 2
	})).Return(&repository.SaveOutcome{
		Result:       &models.TestResult{ID: 11, ContestantID: 7, AverageAttenuation: -5, IsBestScore: false, HatType: models.HatHybrid, TestDate: fixedNow},
		PreviousBest: f64(3.25),
	}, nil)
	archive.On("Store", ctx, mock.MatchedBy(func(r *storage.Report) bool {
		return r.Result.ID == 11 && r.ContestantName == "Scully" && len(r.BandSummary) == 2
	})).Return("reports/7/11-x.json.gz", nil)

	rec := newRecorder(results, contestants, cache, sink, archive)
	out, err := rec.Save(ctx, 7, models.HatHybrid, scenarioA(t))
	require.NoError(t, err)

	assert.Equal(t, int64(11), out.Result.ID)
	assert.Equal(t, "reports/7/11-x.json.gz", out.ArchiveKey)
	assert.Equal(t, "Warning: The hat shows negative attenuation (-5.00 dB), which means it's amplifying signals instead of blocking them. Your previous best score of 3.25 dB is better.", out.Message)
	require.Len(t, out.DataPoints, 2)
	for _, dp := range out.DataPoints {
		assert.Equal(t, int64(11), dp.TestResultID)
	}

	require.Len(t, sink.events, 1)
	saved := sink.events[0]
	assert.Equal(t, events.TypeSaved, saved.Type)
	payload := saved.Payload.(events.SavedPayload)
	assert.Equal(t, int64(11), payload.ResultID)
	assert.Equal(t, "Scully", payload.ContestantName)
	assert.False(t, payload.IsBestScore)

	assert.Equal(t, 1, cycleOf(rec).finishes())

	results.AssertExpectations(t)
	contestants.AssertExpectations(t)
	cache.AssertExpectations(t)
	archive.AssertExpectations(t)
}

func TestSave_NoValidMeasurements(t *testing.T) {
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	cache := &MockCache{}
	rec := newRecorder(results, contestants, cache, nil, nil)

	_, err := rec.Save(context.Background(), 7, models.HatClassic, nil)
	assert.ErrorIs(t, err, attenuation.ErrNoValidMeasurements)

	_, err = rec.Save(context.Background(), 7, models.HatClassic, &attenuation.Result{})
	assert.ErrorIs(t, err, attenuation.ErrNoValidMeasurements)

	results.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)
	assert.Zero(t, cycleOf(rec).finishes())
}

func TestSave_InvalidHatType(t *testing.T) {
	rec := newRecorder(&MockResultRepository{}, &MockContestantRepository{}, &MockCache{}, nil, nil)
	_, err := rec.Save(context.Background(), 7, models.HatType("fedora"), scenarioA(t))
	assert.ErrorIs(t, err, ErrInvalidHatType)
}

func TestSave_ContestantNotFound(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	contestants.On("GetByID", ctx, int64(99)).Return(nil, repository.ErrNotFound)

	rec := newRecorder(results, contestants, &MockCache{}, nil, nil)
	_, err := rec.Save(ctx, 99, models.HatClassic, scenarioA(t))
	assert.ErrorIs(t, err, ErrContestantNotFound)
	results.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)
}

func TestSave_RepositoryFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	cache := &MockCache{}
	sink := &sinkRecorder{}

	contestants.On("GetByID", ctx, int64(7)).Return(&models.Contestant{ID: 7, Name: "Scully"}, nil)
	results.On("SaveResult", ctx, mock.Anything).Return(nil, errors.New("connection reset"))

	rec := newRecorder(results, contestants, cache, sink, nil)
	_, err := rec.Save(ctx, 7, models.HatClassic, scenarioA(t))
	require.Error(t, err)

	assert.Zero(t, cycleOf(rec).finishes())
	assert.Empty(t, sink.events)
}

func TestSave_ArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	cache := &MockCache{}
	archive := &MockArchive{}

	contestants.On("GetByID", ctx, int64(7)).Return(&models.Contestant{ID: 7, Name: "Scully"}, nil)
	results.On("SaveResult", ctx, mock.Anything).Return(&repository.SaveOutcome{
		Result: &models.TestResult{ID: 12, ContestantID: 7, AverageAttenuation: 12.5, IsBestScore: true, HatType: models.HatClassic},
	}, nil)
	archive.On("Store", ctx, mock.Anything).Return("", errors.New("bucket gone"))

	rec := newRecorder(results, contestants, cache, nil, archive)
	out, err := rec.Save(ctx, 7, models.HatClassic, scenarioA(t))
	require.NoError(t, err)
	assert.Empty(t, out.ArchiveKey)
	assert.Equal(t, "This is the best score for Scully with an attenuation of 12.50 dB.", out.Message)
	assert.Equal(t, 1, cycleOf(rec).finishes())
}

func TestSaveFromCache(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	cache := &MockCache{}

	// scenario B: the hat pass is missing 2400 MHz
	cache.On("Get", ctx, models.PassBaseline).Return(readings(models.PassBaseline, map[int64]float64{fm: -70, wifi: -80}), nil)
	cache.On("Get", ctx, models.PassHat).Return(readings(models.PassHat, map[int64]float64{fm: -75}), nil)
	contestants.On("GetByID", ctx, int64(7)).Return(&models.Contestant{ID: 7, Name: "Scully"}, nil)
	results.On("SaveResult", ctx, mock.MatchedBy(func(r repository.NewResult) bool {
		return r.AverageAttenuation == 5 &&
			len(r.DataPoints) == 2 &&
			r.DataPoints[1].FrequencyHz == wifi &&
			!r.DataPoints[1].Valid &&
			r.DataPoints[1].BaselineLevel == nil
	})).Return(&repository.SaveOutcome{
		Result: &models.TestResult{ID: 13, ContestantID: 7, AverageAttenuation: 5, IsBestScore: true, HatType: models.HatClassic},
	}, nil)

	rec := newRecorder(results, contestants, cache, nil, nil)
	out, err := rec.SaveFromCache(ctx, scenarioPlan(), 7, models.HatClassic)
	require.NoError(t, err)
	assert.Equal(t, int64(13), out.Result.ID)
	results.AssertExpectations(t)
}

func TestSaveFromCache_NoOverlap(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	cache := &MockCache{}

	cache.On("Get", ctx, models.PassBaseline).Return(readings(models.PassBaseline, map[int64]float64{fm: -70}), nil)
	cache.On("Get", ctx, models.PassHat).Return(readings(models.PassHat, map[int64]float64{wifi: -65}), nil)

	rec := newRecorder(results, &MockContestantRepository{}, cache, nil, nil)
	_, err := rec.SaveFromCache(ctx, scenarioPlan(), 7, models.HatClassic)
	assert.ErrorIs(t, err, attenuation.ErrNoValidMeasurements)
	results.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)
}

func TestSave_SerializedPerContestant(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}
	cache := &MockCache{}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	contestants.On("GetByID", ctx, int64(7)).Return(&models.Contestant{ID: 7, Name: "Scully"}, nil)
	results.On("SaveResult", ctx, mock.Anything).Run(func(mock.Arguments) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}).Return(&repository.SaveOutcome{Result: &models.TestResult{ID: 1, ContestantID: 7, IsBestScore: true}}, nil)

	rec := newRecorder(results, contestants, cache, nil, nil)
	res := scenarioA(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.Save(ctx, 7, models.HatClassic, res)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
	results.AssertNumberOfCalls(t, "SaveResult", 5)
	assert.Equal(t, 5, cycleOf(rec).finishes())
}

func TestLastResult(t *testing.T) {
	ctx := context.Background()
	results := &MockResultRepository{}
	contestants := &MockContestantRepository{}

	contestants.On("GetByID", ctx, int64(7)).Return(&models.Contestant{ID: 7}, nil)
	contestants.On("GetByID", ctx, int64(8)).Return(&models.Contestant{ID: 8}, nil)
	contestants.On("GetByID", ctx, int64(9)).Return(nil, repository.ErrNotFound)
	results.On("GetLastResult", ctx, int64(7)).Return(&models.TestResult{ID: 21}, nil)
	results.On("GetLastResult", ctx, int64(8)).Return(nil, repository.ErrNotFound)
	results.On("GetDataPoints", ctx, int64(21)).Return([]models.TestDataPoint{{TestResultID: 21, FrequencyHz: fm}}, nil)

	rec := newRecorder(results, contestants, &MockCache{}, nil, nil)

	result, points, err := rec.LastResult(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(21), result.ID)
	assert.Len(t, points, 1)

	_, _, err = rec.LastResult(ctx, 8)
	assert.ErrorIs(t, err, ErrNoResults)

	_, _, err = rec.LastResult(ctx, 9)
	assert.ErrorIs(t, err, ErrContestantNotFound)
}

func TestScoreMessage(t *testing.T) {
	tests := []struct {
		name     string
		average  float64
		isBest   bool
		previous *float64
		want     string
	}{
		{"first test", 8.5, true, nil, "This is the best score for Mulder with an attenuation of 8.50 dB."},
		{"new best", 9, true, f64(8.5), "This is the best score for Mulder with an attenuation of 9.00 dB."},
		{"not best", 4, false, f64(8.5), "Not the best score for Mulder. Previous best: 8.50 dB, Current: 4.00 dB."},
		{"zero is a score", 0, true, nil, "This is the best score for Mulder with an attenuation of 0.00 dB."},
		{"negative best", -1.5, true, nil, "Warning: The hat shows negative attenuation (-1.50 dB), which means it's amplifying signals instead of blocking them. This is still your best score so far."},
		{"negative not best", -1.5, false, f64(2), "Warning: The hat shows negative attenuation (-1.50 dB), which means it's amplifying signals instead of blocking them. Your previous best score of 2.00 dB is better."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreMessage("Mulder", tt.average, tt.isBest, tt.previous))
		})
	}
}
