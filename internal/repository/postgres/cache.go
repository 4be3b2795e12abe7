package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// PostgresMeasurementCache implements MeasurementCache on the shared database.
// Each call is a single autocommitted statement, so a returned Put is durable.
type PostgresMeasurementCache struct {
	db *sql.DB
}

// NewPostgresMeasurementCache creates a new PostgreSQL measurement cache
func NewPostgresMeasurementCache(db *sql.DB) repository.MeasurementCache {
	return &PostgresMeasurementCache{db: db}
}

// Put stores the reading, replacing any earlier one for the same pass and frequency
func (c *PostgresMeasurementCache) Put(ctx context.Context, reading models.PowerReading) error {
	query := `
		INSERT INTO measurement_cache (pass_type, frequency_hz, power_dbm, captured_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pass_type, frequency_hz)
		DO UPDATE SET power_dbm = EXCLUDED.power_dbm, captured_at = EXCLUDED.captured_at`

	_, err := c.db.ExecContext(ctx, query,
		string(reading.PassType),
		reading.FrequencyHz,
		reading.PowerDBm,
		reading.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to cache %s reading at %d Hz: %w", reading.PassType, reading.FrequencyHz, err)
	}
	return nil
}

// Get returns the pass's readings ordered by frequency
func (c *PostgresMeasurementCache) Get(ctx context.Context, pass models.PassType) ([]models.PowerReading, error) {
	query := `
		SELECT pass_type, frequency_hz, power_dbm, captured_at
		FROM measurement_cache
		WHERE pass_type = $1
		ORDER BY frequency_hz`

	rows, err := c.db.QueryContext(ctx, query, string(pass))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.PowerReading
	for rows.Next() {
		var r models.PowerReading
		var pt string
		if err := rows.Scan(&pt, &r.FrequencyHz, &r.PowerDBm, &r.CapturedAt); err != nil {
			return nil, err
		}
		r.PassType = models.PassType(pt)
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// Clear removes every reading of one pass
func (c *PostgresMeasurementCache) Clear(ctx context.Context, pass models.PassType) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM measurement_cache WHERE pass_type = $1`, string(pass))
	return err
}

// ClearAll removes every cached reading
func (c *PostgresMeasurementCache) ClearAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM measurement_cache`)
	return err
}
