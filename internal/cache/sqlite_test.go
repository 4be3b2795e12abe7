package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

func newTestCache(t *testing.T) (*SqliteCache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c := NewSqliteCache(path)
	require.NoError(t, c.Open(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

func reading(pass models.PassType, hz int64, dbm float64) models.PowerReading {
	return models.PowerReading{
		PassType:    pass,
		FrequencyHz: hz,
		PowerDBm:    dbm,
		CapturedAt:  time.Date(2026, 3, 14, 12, 0, 0, 123456789, time.UTC),
	}
}

func TestSqliteCache_PutIsIdempotentPerKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 88_000_000, -30)))
	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 88_000_000, -30)))
	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 88_000_000, -31.5)))

	got, err := c.Get(ctx, models.PassBaseline)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -31.5, got[0].PowerDBm)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 123456789, time.UTC), got[0].CapturedAt)
}

func TestSqliteCache_GetOrdersByFrequencyAndSeparatesPasses(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 2_400_000_000, -20)))
	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 88_000_000, -30)))
	require.NoError(t, c.Put(ctx, reading(models.PassHat, 88_000_000, -45)))

	baseline, err := c.Get(ctx, models.PassBaseline)
	require.NoError(t, err)
	require.Len(t, baseline, 2)
	assert.Equal(t, int64(88_000_000), baseline[0].FrequencyHz)
	assert.Equal(t, int64(2_400_000_000), baseline[1].FrequencyHz)

	hat, err := c.Get(ctx, models.PassHat)
	require.NoError(t, err)
	require.Len(t, hat, 1)
	assert.Equal(t, models.PassHat, hat[0].PassType)
}

func TestSqliteCache_Clear(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 88_000_000, -30)))
	require.NoError(t, c.Put(ctx, reading(models.PassHat, 88_000_000, -45)))

	require.NoError(t, c.Clear(ctx, models.PassBaseline))
	baseline, err := c.Get(ctx, models.PassBaseline)
	require.NoError(t, err)
	assert.Empty(t, baseline)

	hat, err := c.Get(ctx, models.PassHat)
	require.NoError(t, err)
	assert.Len(t, hat, 1)

	require.NoError(t, c.ClearAll(ctx))
	hat, err = c.Get(ctx, models.PassHat)
	require.NoError(t, err)
	assert.Empty(t, hat)
}

func TestSqliteCache_SurvivesReopen(t *testing.T) {
	c, path := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, reading(models.PassBaseline, 433_000_000, -25)))
	require.NoError(t, c.Close())
	// closing twice is fine
	require.NoError(t, c.Close())

	reopened := NewSqliteCache(path)
	defer reopened.Close()

	got, err := reopened.Get(ctx, models.PassBaseline)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -25.0, got[0].PowerDBm)
}
