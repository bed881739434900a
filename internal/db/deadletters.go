package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"monitoring-service/internal/models"
)

const deadLetterColumns = `id, request_id, original_topic, channel_type, receiver, subject, body,
	priority, error_message, attempts, created_at, is_processed, processed_at`

func (d *DB) SaveDeadLetter(ctx context.Context, dl models.DeadLetterMessage) error {
	query := `
	INSERT INTO dead_letters (` + deadLetterColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := d.Pool.Exec(ctx, query,
		dl.ID, dl.RequestID, dl.OriginalTopic, string(dl.Channel), dl.Receiver, dl.Subject, dl.Body,
		int16(dl.Priority), dl.ErrorMessage, dl.Attempts, dl.CreatedAt, dl.IsProcessed, dl.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

func (d *DB) GetDeadLetter(ctx context.Context, id string) (models.DeadLetterMessage, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id = $1`
	dl, err := scanDeadLetter(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeadLetterMessage{}, fmt.Errorf("dead letter %s: %w", id, ErrNotFound)
		}
		return models.DeadLetterMessage{}, fmt.Errorf("failed to get dead letter %s: %w", id, err)
	}
	return dl, nil
}

func (d *DB) ListDeadLetters(ctx context.Context, unprocessedOnly bool) ([]models.DeadLetterMessage, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters`
	if unprocessedOnly {
		query += ` WHERE NOT is_processed`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letters: %w", err)
	}
	defer rows.Close()

	list := []models.DeadLetterMessage{}
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		list = append(list, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	return list, nil
}

func (d *DB) CountUnprocessedDeadLetters(ctx context.Context) (int, error) {
	var n int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letters WHERE NOT is_processed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}

// MarkDeadLetterProcessed flips the processed flag once. Unknown ids return
// ErrNotFound and repeated calls return ErrAlreadyProcessed.
func (d *DB) MarkDeadLetterProcessed(ctx context.Context, id string, at time.Time) (models.DeadLetterMessage, error) {
	query := `
	UPDATE dead_letters SET is_processed = TRUE, processed_at = $2
	WHERE id = $1 AND NOT is_processed
	RETURNING ` + deadLetterColumns

	dl, err := scanDeadLetter(d.Pool.QueryRow(ctx, query, id, at))
	if err == nil {
		return dl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.DeadLetterMessage{}, fmt.Errorf("failed to mark dead letter %s: %w", id, err)
	}
	if _, err := d.GetDeadLetter(ctx, id); err != nil {
		return models.DeadLetterMessage{}, err
	}
	return models.DeadLetterMessage{}, fmt.Errorf("dead letter %s: %w", id, ErrAlreadyProcessed)
}

func scanDeadLetter(row pgx.Row) (models.DeadLetterMessage, error) {
	var dl models.DeadLetterMessage
	var channel string
	var priority int16
	err := row.Scan(
		&dl.ID, &dl.RequestID, &dl.OriginalTopic, &channel, &dl.Receiver, &dl.Subject, &dl.Body,
		&priority, &dl.ErrorMessage, &dl.Attempts, &dl.CreatedAt, &dl.IsProcessed, &dl.ProcessedAt,
	)
	dl.Channel = models.ChannelType(channel)
	dl.Priority = models.Priority(priority)
	return dl, err
}
