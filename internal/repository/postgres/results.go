package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

const (
	lockContestantQuery = `SELECT id FROM contestants WHERE id = $1 FOR UPDATE`

	previousBestQuery = `SELECT MAX(average_attenuation) FROM test_results WHERE contestant_id = $1`

	insertResultQuery = `
		INSERT INTO test_results (contestant_id, test_date, average_attenuation, hat_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, test_date`

	insertDataPointQuery = `
		INSERT INTO test_data_points (test_result_id, frequency_hz, baseline_level, hat_level, attenuation, valid)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// ties on the average go to the most recent test, then the newest row
	bestResultQuery = `
		SELECT id FROM test_results
		WHERE contestant_id = $1
		ORDER BY average_attenuation DESC, test_date DESC, id DESC
		LIMIT 1`

	clearBestQuery = `UPDATE test_results SET is_best_score = FALSE WHERE contestant_id = $1 AND is_best_score`

	markBestQuery = `UPDATE test_results SET is_best_score = TRUE WHERE id = $1`

	resultColumns = `id, contestant_id, test_date, average_attenuation, is_best_score, hat_type`
)

// PostgresResultRepository implements ResultRepository for PostgreSQL
type PostgresResultRepository struct {
	db *sql.DB
}

// NewPostgresResultRepository creates a new PostgreSQL result repository
func NewPostgresResultRepository(db *sql.DB) repository.ResultRepository {
	return &PostgresResultRepository{db: db}
}

// SaveResult stores a test result with its data points and moves the
// contestant's best-score flag, holding a row lock on the contestant so
// concurrent saves for the same contestant are serialized.
func (r *PostgresResultRepository) SaveResult(ctx context.Context, nr repository.NewResult) (*repository.SaveOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var contestantID int64
	if err := tx.QueryRowContext(ctx, lockContestantQuery, nr.ContestantID).Scan(&contestantID); err != nil {
		return nil, mapError(err)
	}

	var prev sql.NullFloat64
	if err := tx.QueryRowContext(ctx, previousBestQuery, nr.ContestantID).Scan(&prev); err != nil {
		return nil, fmt.Errorf("failed to read previous best: %w", err)
	}

	result := &models.TestResult{
		ContestantID:       nr.ContestantID,
		AverageAttenuation: nr.AverageAttenuation,
		HatType:            nr.HatType,
	}
	err = tx.QueryRowContext(ctx, insertResultQuery,
		nr.ContestantID,
		nr.TestDate,
		nr.AverageAttenuation,
		string(nr.HatType)).Scan(&result.ID, &result.TestDate)
	if err != nil {
		return nil, fmt.Errorf("failed to insert test result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertDataPointQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data point insert: %w", err)
	}
	defer stmt.Close()

	for _, dp := range nr.DataPoints {
		_, err := stmt.ExecContext(ctx,
			result.ID,
			dp.FrequencyHz,
			nullFloat(dp.BaselineLevel),
			nullFloat(dp.HatLevel),
			nullFloat(dp.Attenuation),
			dp.Valid)
		if err != nil {
			return nil, fmt.Errorf("failed to insert data point %d Hz: %w", dp.FrequencyHz, err)
		}
	}

	var bestID int64
	if err := tx.QueryRowContext(ctx, bestResultQuery, nr.ContestantID).Scan(&bestID); err != nil {
		return nil, fmt.Errorf("failed to find best result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, clearBestQuery, nr.ContestantID); err != nil {
		return nil, fmt.Errorf("failed to clear best flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx, markBestQuery, bestID); err != nil {
		return nil, fmt.Errorf("failed to set best flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit test result: %w", err)
	}

	result.IsBestScore = bestID == result.ID
	outcome := &repository.SaveOutcome{Result: result}
	if prev.Valid {
		p := prev.Float64
		outcome.PreviousBest = &p
	}
	return outcome, nil
}

// GetResult retrieves a test result by ID
func (r *PostgresResultRepository) GetResult(ctx context.Context, id int64) (*models.TestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM test_results WHERE id = $1`
	return scanResult(r.db.QueryRowContext(ctx, query, id))
}

// GetLastResult retrieves the contestant's most recent test result
func (r *PostgresResultRepository) GetLastResult(ctx context.Context, contestantID int64) (*models.TestResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM test_results
		WHERE contestant_id = $1
		ORDER BY test_date DESC, id DESC
		LIMIT 1`
	return scanResult(r.db.QueryRowContext(ctx, query, contestantID))
}

// GetLatestResult retrieves the most recent test result of any contestant
func (r *PostgresResultRepository) GetLatestResult(ctx context.Context) (*models.TestResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM test_results
		ORDER BY test_date DESC, id DESC
		LIMIT 1`
	return scanResult(r.db.QueryRowContext(ctx, query))
}

// GetResultsByContestant retrieves all of a contestant's results, newest first
func (r *PostgresResultRepository) GetResultsByContestant(ctx context.Context, contestantID int64) ([]*models.TestResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM test_results
		WHERE contestant_id = $1
		ORDER BY test_date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, contestantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.TestResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// GetDataPoints retrieves the per-frequency rows of a result ordered by frequency
func (r *PostgresResultRepository) GetDataPoints(ctx context.Context, resultID int64) ([]models.TestDataPoint, error) {
	query := `
		SELECT test_result_id, frequency_hz, baseline_level, hat_level, attenuation, valid
		FROM test_data_points
		WHERE test_result_id = $1
		ORDER BY frequency_hz`

	rows, err := r.db.QueryContext(ctx, query, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.TestDataPoint
	for rows.Next() {
		var dp models.TestDataPoint
		var baseline, hat, att sql.NullFloat64

		err := rows.Scan(&dp.TestResultID, &dp.FrequencyHz, &baseline, &hat, &att, &dp.Valid)
		if err != nil {
			return nil, err
		}

		dp.BaselineLevel = floatPtr(baseline)
		dp.HatLevel = floatPtr(hat)
		dp.Attenuation = floatPtr(att)
		points = append(points, dp)
	}

	return points, rows.Err()
}

// Leaderboard returns each contestant's best result, highest attenuation
// first. With a hat type filter the best result of that type is used, so a
// contestant whose overall best is in the other category still appears.
// A limit of zero or less returns every row.
func (r *PostgresResultRepository) Leaderboard(ctx context.Context, hatType *models.HatType, limit int) ([]models.LeaderboardEntry, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	var rows *sql.Rows
	var err error
	if hatType == nil {
		query := `
			SELECT c.id, c.name, t.id, t.average_attenuation, t.test_date, t.hat_type
			FROM test_results t
			JOIN contestants c ON c.id = t.contestant_id
			WHERE t.is_best_score
			ORDER BY t.average_attenuation DESC, t.test_date ASC, t.id ASC
			LIMIT $1`
		rows, err = r.db.QueryContext(ctx, query, lim)
	} else {
		query := `
			SELECT c.id, c.name, t.id, t.average_attenuation, t.test_date, t.hat_type
			FROM (
				SELECT DISTINCT ON (contestant_id) id, contestant_id, average_attenuation, test_date, hat_type
				FROM test_results
				WHERE hat_type = $1
				ORDER BY contestant_id, average_attenuation DESC, test_date DESC, id DESC
			) t
			JOIN contestants c ON c.id = t.contestant_id
			ORDER BY t.average_attenuation DESC, t.test_date ASC, t.id ASC
			LIMIT $2`
		rows, err = r.db.QueryContext(ctx, query, string(*hatType), lim)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		var ht string
		if err := rows.Scan(&e.ContestantID, &e.Name, &e.TestResultID, &e.AverageAttenuation, &e.TestDate, &ht); err != nil {
			return nil, err
		}
		e.HatType = models.HatType(ht)
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.TestResult, error) {
	var res models.TestResult
	var ht string
	err := row.Scan(&res.ID, &res.ContestantID, &res.TestDate, &res.AverageAttenuation, &res.IsBestScore, &ht)
	if err != nil {
		return nil, mapError(err)
	}
	res.HatType = models.HatType(ht)
	return &res, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
