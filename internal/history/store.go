// Package history keeps the last known value and last alert state per patient indicator.
package history

import (
	"context"
	"time"

	"monitoring-service/internal/models"
)

// Key identifies one patient indicator.
type Key struct {
	PatientID string
	Indicator string
}

func (k Key) String() string {
	return k.PatientID + ":" + k.Indicator
}

// Store is the metric history capability used by the decision engine.
// Every write carries a TTL; a zero TTL keeps the entry until overwritten.
type Store interface {
	LastValue(ctx context.Context, key Key) (float64, bool, error)
	SetLastValue(ctx context.Context, key Key, value float64, ttl time.Duration) error
	LastAlert(ctx context.Context, key Key) (models.LastAlertState, bool, error)
	SetLastAlert(ctx context.Context, key Key, state models.LastAlertState, ttl time.Duration) error
	Close() error
}
