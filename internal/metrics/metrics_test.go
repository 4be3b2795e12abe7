package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/internal/sampler/samplertest"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

func TestMetrics_Publish(t *testing.T) {
	m := New()

	m.Publish(events.New(events.TypeProgress, models.PassBaseline, events.ProgressPayload{FrequencyHz: 100_000_000, PowerDBm: -50.1}))
	m.Publish(events.New(events.TypeProgress, models.PassBaseline, events.ProgressPayload{FrequencyHz: 200_000_000, PowerDBm: -55}))
	m.Publish(events.New(events.TypeError, models.PassBaseline, events.ErrorPayload{Kind: string(sampler.KindCaptureTimeout)}))
	m.Publish(events.New(events.TypeCompleted, models.PassBaseline, events.CompletedPayload{}))
	m.Publish(events.New(events.TypeSaved, "", events.SavedPayload{HatType: models.HatClassic, AverageAttenuation: 12.5, IsBestScore: true}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsTotal.WithLabelValues("baseline")))
	assert.Equal(t, -50.1, testutil.ToFloat64(m.lastPowerDBm.WithLabelValues("baseline", "100000000")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("capture_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passesTotal.WithLabelValues("baseline", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resultsTotal.WithLabelValues("classic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bestScoresTotal))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.lastAverage.WithLabelValues("classic")))

	m.Publish(events.New(events.TypeReset, "", events.ResetPayload{PreviousState: "completed"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resetsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.lastPowerDBm))
}

func TestInstrumentSampler(t *testing.T) {
	m := New()
	fake := samplertest.New(map[int64]float64{100_000_000: -42})
	fake.Fail(200_000_000, sampler.NewHardwareError(sampler.KindDeviceBusy, 200_000_000, nil))
	s := m.InstrumentSampler(fake)

	got, err := s.Measure(context.Background(), 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, -42.0, got.PowerDBm)

	_, err = s.Measure(context.Background(), 200_000_000)
	assert.ErrorIs(t, err, sampler.ErrDeviceBusy)

	_, err = s.Measure(context.Background(), 10)
	assert.ErrorIs(t, err, sampler.ErrOutOfRange)

	assert.Equal(t, 3, testutil.CollectAndCount(m.captureSeconds))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Publish(events.New(events.TypeReset, "", events.ResetPayload{}))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "hatscore_resets_total 1"))
}
