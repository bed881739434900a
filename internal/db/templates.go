package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"monitoring-service/internal/models"
)

func (d *DB) GetTemplate(ctx context.Context, name string) (models.Template, error) {
	var tpl models.Template
	query := `SELECT name, subject, body, updated_at FROM notification_templates WHERE name = $1`
	err := d.Pool.QueryRow(ctx, query, name).Scan(&tpl.Name, &tpl.Subject, &tpl.Body, &tpl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, fmt.Errorf("template %q: %w", name, ErrNotFound)
		}
		return models.Template{}, fmt.Errorf("failed to get template %q: %w", name, err)
	}
	return tpl, nil
}

func (d *DB) UpsertTemplate(ctx context.Context, tpl models.Template) error {
	query := `
	INSERT INTO notification_templates (name, subject, body, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (name) DO UPDATE SET subject = EXCLUDED.subject, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	if _, err := d.Pool.Exec(ctx, query, tpl.Name, tpl.Subject, tpl.Body, tpl.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save template %q: %w", tpl.Name, err)
	}
	return nil
}
