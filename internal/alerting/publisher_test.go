package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"monitoring-service/internal/models"
)

type mockAlertStore struct{ mock.Mock }

func (m *mockAlertStore) SaveAlertEvent(ctx context.Context, event models.AlertEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockStreamPublisher struct{ mock.Mock }

func (m *mockStreamPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func TestPublisherPersistsThenPublishes(t *testing.T) {
	store := &mockAlertStore{}
	pub := &mockStreamPublisher{}
	event := models.AlertEvent{ID: "a-1", PatientID: "p-1", Indicator: "Pulse", Kind: models.AlertKindAlert, Reason: "value 150 outside limits [60, 100]"}

	store.On("SaveAlertEvent", mock.Anything, event).Return(nil).Once()
	pub.On("Publish", mock.Anything, "alert_events", []byte("p-1"), mock.MatchedBy(func(raw []byte) bool {
		var decoded models.AlertEvent
		return json.Unmarshal(raw, &decoded) == nil && decoded.ID == "a-1" && decoded.Kind == models.AlertKindAlert
	})).Return(nil).Once()

	require.NoError(t, NewPublisher(store, pub, "alert_events").Publish(context.Background(), event))
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestPublisherStopsWhenPersistFails(t *testing.T) {
	store := &mockAlertStore{}
	pub := &mockStreamPublisher{}
	store.On("SaveAlertEvent", mock.Anything, mock.Anything).Return(errors.New("db down"))

	err := NewPublisher(store, pub, "alert_events").Publish(context.Background(), models.AlertEvent{ID: "a-2"})
	assert.ErrorContains(t, err, "db down")
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
