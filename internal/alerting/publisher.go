package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"monitoring-service/internal/models"
	"monitoring-service/internal/stream"
)

// AlertStore persists alert events.
type AlertStore interface {
	SaveAlertEvent(ctx context.Context, event models.AlertEvent) error
}

// Publisher persists an event and then publishes it on the alerts topic.
type Publisher struct {
	store  AlertStore
	stream stream.Publisher
	topic  string
}

func NewPublisher(store AlertStore, pub stream.Publisher, topic string) *Publisher {
	return &Publisher{store: store, stream: pub, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, event models.AlertEvent) error {
	if err := p.store.SaveAlertEvent(ctx, event); err != nil {
		return fmt.Errorf("persist alert event %s: %w", event.ID, err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert event %s: %w", event.ID, err)
	}
	if err := p.stream.Publish(ctx, p.topic, []byte(event.PatientID), payload); err != nil {
		return fmt.Errorf("publish alert event %s: %w", event.ID, err)
	}
	return nil
}
