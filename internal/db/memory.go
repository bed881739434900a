package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"monitoring-service/internal/models"
)

// MemoryStore implements Store in process memory. It is used when no DB_DSN
// is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	alerts      []models.AlertEvent
	alertIDs    map[string]struct{}
	deadLetters map[string]models.DeadLetterMessage
	templates   map[string]models.Template
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alertIDs:    make(map[string]struct{}),
		deadLetters: make(map[string]models.DeadLetterMessage),
		templates:   make(map[string]models.Template),
	}
}

func (m *MemoryStore) SaveAlertEvent(_ context.Context, event models.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.alertIDs[event.ID]; dup {
		return nil
	}
	m.alertIDs[event.ID] = struct{}{}
	m.alerts = append(m.alerts, event)
	return nil
}

func (m *MemoryStore) ListAlertEvents(_ context.Context, filter AlertFilter) ([]models.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []models.AlertEvent{}
	for i := len(m.alerts) - 1; i >= 0 && len(list) < filter.limit(); i-- {
		e := m.alerts[i]
		if filter.PatientID != "" && e.PatientID != filter.PatientID {
			continue
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *MemoryStore) SaveDeadLetter(_ context.Context, dl models.DeadLetterMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.deadLetters[dl.ID]; dup {
		return fmt.Errorf("dead letter %s already exists", dl.ID)
	}
	m.deadLetters[dl.ID] = dl
	return nil
}

func (m *MemoryStore) GetDeadLetter(_ context.Context, id string) (models.DeadLetterMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dl, ok := m.deadLetters[id]
	if !ok {
		return models.DeadLetterMessage{}, fmt.Errorf("dead letter %s: %w", id, ErrNotFound)
	}
	return dl, nil
}

func (m *MemoryStore) ListDeadLetters(_ context.Context, unprocessedOnly bool) ([]models.DeadLetterMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []models.DeadLetterMessage{}
	for _, dl := range m.deadLetters {
		if unprocessedOnly && dl.IsProcessed {
			continue
		}
		list = append(list, dl)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (m *MemoryStore) CountUnprocessedDeadLetters(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, dl := range m.deadLetters {
		if !dl.IsProcessed {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkDeadLetterProcessed(_ context.Context, id string, at time.Time) (models.DeadLetterMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.deadLetters[id]
	if !ok {
		return models.DeadLetterMessage{}, fmt.Errorf("dead letter %s: %w", id, ErrNotFound)
	}
	if dl.IsProcessed {
		return models.DeadLetterMessage{}, fmt.Errorf("dead letter %s: %w", id, ErrAlreadyProcessed)
	}
	dl.IsProcessed = true
	dl.ProcessedAt = &at
	m.deadLetters[id] = dl
	return dl, nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, name string) (models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[name]
	if !ok {
		return models.Template{}, fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	return tpl, nil
}

func (m *MemoryStore) UpsertTemplate(_ context.Context, tpl models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.Name] = tpl
	return nil
}

func (m *MemoryStore) Close() {}
