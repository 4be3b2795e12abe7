package postgres

import (
	"context"
	"database/sql"

	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// PostgresContestantRepository implements ContestantRepository for PostgreSQL
type PostgresContestantRepository struct {
	db *sql.DB
}

// NewPostgresContestantRepository creates a new PostgreSQL contestant repository
func NewPostgresContestantRepository(db *sql.DB) repository.ContestantRepository {
	return &PostgresContestantRepository{db: db}
}

// Create inserts a contestant and fills in its ID and creation time
func (r *PostgresContestantRepository) Create(ctx context.Context, c *models.Contestant) error {
	query := `
		INSERT INTO contestants (name, phone_number, email, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		c.Name,
		c.PhoneNumber,
		c.Email,
		c.Notes).Scan(&c.ID, &c.CreatedAt)

	return mapError(err)
}

// GetByID retrieves a contestant by ID
func (r *PostgresContestantRepository) GetByID(ctx context.Context, id int64) (*models.Contestant, error) {
	query := `
		SELECT id, name, phone_number, email, notes, created_at
		FROM contestants
		WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByName retrieves a contestant by their unique name
func (r *PostgresContestantRepository) GetByName(ctx context.Context, name string) (*models.Contestant, error) {
	query := `
		SELECT id, name, phone_number, email, notes, created_at
		FROM contestants
		WHERE name = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

// List returns all contestants ordered by name
func (r *PostgresContestantRepository) List(ctx context.Context) ([]*models.Contestant, error) {
	query := `
		SELECT id, name, phone_number, email, notes, created_at
		FROM contestants
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contestants []*models.Contestant
	for rows.Next() {
		var c models.Contestant
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Email, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		contestants = append(contestants, &c)
	}

	return contestants, rows.Err()
}

func (r *PostgresContestantRepository) scanOne(row *sql.Row) (*models.Contestant, error) {
	var c models.Contestant
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Email, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}
