package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/internal/models"
)

// exerciseStore runs the same contract against every Store implementation.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	patient := "p-" + uuid.NewString()

	for i, kind := range []models.AlertKind{models.AlertKindWarning, models.AlertKindAlert} {
		event := models.AlertEvent{
			ID:        uuid.NewString(),
			PatientID: patient,
			Indicator: "Pulse",
			Kind:      kind,
			Reason:    "value outside limits",
			Value:     150,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.SaveAlertEvent(ctx, event))
		require.NoError(t, store.SaveAlertEvent(ctx, event))
	}
	events, err := store.ListAlertEvents(ctx, AlertFilter{PatientID: patient})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AlertKindAlert, events[0].Kind)

	events, err = store.ListAlertEvents(ctx, AlertFilter{PatientID: patient, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	before, err := store.CountUnprocessedDeadLetters(ctx)
	require.NoError(t, err)

	dl := models.DeadLetterMessage{
		ID:            uuid.NewString(),
		RequestID:     uuid.NewString(),
		OriginalTopic: "alert_events",
		Channel:       models.ChannelEmail,
		Receiver:      "nurse@example.org",
		Subject:       "Pulse alert",
		Body:          "value 150",
		Priority:      models.PriorityCritical,
		ErrorMessage:  "smtp unavailable",
		Attempts:      3,
		CreatedAt:     base,
	}
	require.NoError(t, store.SaveDeadLetter(ctx, dl))

	got, err := store.GetDeadLetter(ctx, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, dl.Receiver, got.Receiver)
	assert.Equal(t, models.PriorityCritical, got.Priority)
	assert.False(t, got.IsProcessed)

	count, err := store.CountUnprocessedDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, count)

	marked, err := store.MarkDeadLetterProcessed(ctx, dl.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, marked.IsProcessed)
	require.NotNil(t, marked.ProcessedAt)

	_, err = store.MarkDeadLetterProcessed(ctx, dl.ID, base.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = store.MarkDeadLetterProcessed(ctx, uuid.NewString(), base)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetDeadLetter(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	unprocessed, err := store.ListDeadLetters(ctx, true)
	require.NoError(t, err)
	for _, u := range unprocessed {
		assert.NotEqual(t, dl.ID, u.ID)
	}
	all, err := store.ListDeadLetters(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	name := "alert-" + uuid.NewString()
	_, err = store.GetTemplate(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.UpsertTemplate(ctx, models.Template{Name: name, Subject: "{indicator}", Body: "v1", UpdatedAt: base}))
	require.NoError(t, store.UpsertTemplate(ctx, models.Template{Name: name, Subject: "{indicator}", Body: "v2", UpdatedAt: base}))
	tpl, err := store.GetTemplate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "v2", tpl.Body)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	database, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))

	exerciseStore(t, database)
}
