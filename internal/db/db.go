package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"monitoring-service/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyProcessed is returned when a dead letter was already marked processed.
	ErrAlreadyProcessed = errors.New("dead letter already processed")
)

// AlertFilter narrows ListAlertEvents. Zero values mean no filter.
type AlertFilter struct {
	PatientID string
	Limit     int
}

func (f AlertFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 100
	}
	return f.Limit
}

// Store is the record store for alert events, dead letters and templates.
type Store interface {
	SaveAlertEvent(ctx context.Context, event models.AlertEvent) error
	ListAlertEvents(ctx context.Context, filter AlertFilter) ([]models.AlertEvent, error)

	SaveDeadLetter(ctx context.Context, dl models.DeadLetterMessage) error
	GetDeadLetter(ctx context.Context, id string) (models.DeadLetterMessage, error)
	ListDeadLetters(ctx context.Context, unprocessedOnly bool) ([]models.DeadLetterMessage, error)
	CountUnprocessedDeadLetters(ctx context.Context) (int, error)
	MarkDeadLetterProcessed(ctx context.Context, id string, at time.Time) (models.DeadLetterMessage, error)

	GetTemplate(ctx context.Context, name string) (models.Template, error)
	UpsertTemplate(ctx context.Context, tpl models.Template) error

	Close()
}

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS alert_events (
	id          TEXT PRIMARY KEY,
	patient_id  TEXT NOT NULL,
	indicator   TEXT NOT NULL,
	alert_kind  TEXT NOT NULL,
	reason      TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS alert_events_patient_created_idx ON alert_events (patient_id, created_at DESC);

CREATE TABLE IF NOT EXISTS dead_letters (
	id              TEXT PRIMARY KEY,
	request_id      TEXT NOT NULL,
	original_topic  TEXT NOT NULL,
	channel_type    TEXT NOT NULL,
	receiver        TEXT NOT NULL,
	subject         TEXT NOT NULL,
	body            TEXT NOT NULL,
	priority        SMALLINT NOT NULL,
	error_message   TEXT NOT NULL,
	attempts        INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	is_processed    BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS dead_letters_unprocessed_idx ON dead_letters (created_at) WHERE NOT is_processed;

CREATE TABLE IF NOT EXISTS notification_templates (
	name        TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	body        TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the tables when they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (d *DB) Close() {
	d.Pool.Close()
}
