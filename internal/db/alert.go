package db

import (
	"context"
	"fmt"

	"monitoring-service/internal/models"
)

// SaveAlertEvent appends an alert event. Saving the same id twice is a no-op
// so a redelivered evaluation does not duplicate the row.
func (d *DB) SaveAlertEvent(ctx context.Context, event models.AlertEvent) error {
	query := `
	INSERT INTO alert_events (id, patient_id, indicator, alert_kind, reason, value, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING`

	_, err := d.Pool.Exec(ctx, query,
		event.ID,
		event.PatientID,
		event.Indicator,
		string(event.Kind),
		event.Reason,
		event.Value,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// ListAlertEvents returns the newest events first.
func (d *DB) ListAlertEvents(ctx context.Context, filter AlertFilter) ([]models.AlertEvent, error) {
	query := `
	SELECT id, patient_id, indicator, alert_kind, reason, value, created_at
	FROM alert_events`
	args := []interface{}{}
	if filter.PatientID != "" {
		query += " WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2"
		args = append(args, filter.PatientID, filter.limit())
	} else {
		query += " ORDER BY created_at DESC LIMIT $1"
		args = append(args, filter.limit())
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert events: %w", err)
	}
	defer rows.Close()

	list := []models.AlertEvent{}
	for rows.Next() {
		var e models.AlertEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Indicator, &kind, &e.Reason, &e.Value, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		e.Kind = models.AlertKind(kind)
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alert events: %w", err)
	}
	return list, nil
}
