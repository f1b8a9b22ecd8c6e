package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
)

// Tx is the slice of pgx.Tx the store needs. pgx.Tx satisfies it.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB abstracts the connection pool so tests can substitute a mock.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (Tx, error)
}

// poolDB adapts *pgxpool.Pool to DB (pool.Begin returns pgx.Tx, which
// satisfies the narrower Tx).
type poolDB struct {
	pool *pgxpool.Pool
}

func (p poolDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p poolDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p poolDB) Begin(ctx context.Context) (Tx, error) {
	return p.pool.Begin(ctx)
}

// Connect opens a pgx connection pool for the given database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("calendar: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("calendar: ping: %w", err)
	}
	return pool, nil
}

// Store persists the calendar as a single-row JSON blob. Reads are fail-soft
// (degrade to an empty map); writes run in an explicit transaction and are
// the one path in this system that surfaces errors to the caller.
type Store struct {
	db     DB
	logger *zap.Logger
}

// NewStore creates a Store over a pgx pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{db: poolDB{pool: pool}, logger: logger}
}

// NewStoreWithDB creates a Store over an arbitrary DB. Used by tests.
func NewStoreWithDB(db DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the blob table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS calendar_events (
			id         BIGSERIAL PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("calendar: ensure schema: %w", err)
	}
	return nil
}

// Events returns the latest stored event map. Any failure (no rows, scan
// error, bad payload) degrades to an empty map so the recommendation path
// keeps working without calendar data.
func (s *Store) Events(ctx context.Context) models.CalendarEventMap {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM calendar_events ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			observability.CalendarReadErrorsTotal.Inc()
			if s.logger != nil {
				s.logger.Warn("calendar read failed, using empty map", zap.Error(err))
			}
		}
		return models.CalendarEventMap{}
	}

	var events models.CalendarEventMap
	if err := json.Unmarshal(raw, &events); err != nil {
		observability.CalendarReadErrorsTotal.Inc()
		if s.logger != nil {
			s.logger.Warn("calendar payload malformed, using empty map", zap.Error(err))
		}
		return models.CalendarEventMap{}
	}
	if events == nil {
		events = models.CalendarEventMap{}
	}
	return events
}

// SaveEvents overwrites the stored calendar: delete-all-then-insert-one
// inside a transaction. Not an upsert and not append; the table holds at most
// one logical row. A failed write rolls back and returns the error.
func (s *Store) SaveEvents(ctx context.Context, events models.CalendarEventMap) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("calendar: encode events: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("calendar: begin: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM calendar_events`); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("calendar: clear events: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO calendar_events (payload) VALUES ($1)`, raw); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("calendar: insert events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("calendar: commit: %w", err)
	}

	observability.CalendarWritesTotal.Inc()
	if s.logger != nil {
		s.logger.Info("calendar saved", zap.Int("days", len(events)))
	}
	return nil
}
