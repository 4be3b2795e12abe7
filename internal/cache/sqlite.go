// Package cache holds the local SQLite driver of the measurement cache.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// SqliteCache is a MeasurementCache in a local SQLite file. Writes go through
// a single WAL connection with synchronous=FULL, so a reading is on disk
// before Put returns and survives a crash of the process.
type SqliteCache struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ repository.MeasurementCache = (*SqliteCache)(nil)

// NewSqliteCache returns a cache backed by the file at dbPath. The file and
// schema are created on first use.
func NewSqliteCache(dbPath string) *SqliteCache {
	return &SqliteCache{dbPath: dbPath}
}

func (s *SqliteCache) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteCache) getReadDB() (*sql.DB, error) {
	// the schema must exist before a read-only connection can see it
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// Open creates the database file and schema eagerly so configuration errors
// show up at startup rather than on the first reading.
func (s *SqliteCache) Open(ctx context.Context) error {
	db, err := s.getWriteDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SqliteCache) Put(ctx context.Context, reading models.PowerReading) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	captured := reading.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}

	_, err = db.ExecContext(ctx, upsertReadingSQL,
		string(reading.PassType),
		reading.FrequencyHz,
		reading.PowerDBm,
		captured.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("caching %s reading at %d Hz: %w", reading.PassType, reading.FrequencyHz, err)
	}
	return nil
}

func (s *SqliteCache) Get(ctx context.Context, pass models.PassType) (readings []models.PowerReading, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectReadingsSQL, string(pass))
	if err != nil {
		err = fmt.Errorf("querying readings: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r models.PowerReading
		var pt string
		var capturedNanos int64
		if err = rows.Scan(&pt, &r.FrequencyHz, &r.PowerDBm, &capturedNanos); err != nil {
			err = fmt.Errorf("scanning reading: %w", err)
			return
		}
		r.PassType = models.PassType(pt)
		r.CapturedAt = time.Unix(0, capturedNanos).UTC()
		readings = append(readings, r)
	}
	err = rows.Err()
	return
}

func (s *SqliteCache) Clear(ctx context.Context, pass models.PassType) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, deletePassSQL, string(pass)); err != nil {
		return fmt.Errorf("clearing %s readings: %w", pass, err)
	}
	return nil
}

func (s *SqliteCache) ClearAll(ctx context.Context) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, deleteAllSQL); err != nil {
		return fmt.Errorf("clearing readings: %w", err)
	}
	return nil
}

// Close releases both connections. It is safe to call more than once.
func (s *SqliteCache) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error
		if s.readDB != nil {
			readErr = s.readDB.Close()
		}
		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
		}
		s.closeErr = errors.Join(writeErr, readErr)
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
