package history

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"monitoring-service/internal/models"
)

const memoryShards = 32

type memoryEntry struct {
	value        float64
	hasValue     bool
	valueExpires time.Time
	alert        models.LastAlertState
	hasAlert     bool
	alertExpires time.Time
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[Key]*memoryEntry
}

// MemoryStore keeps history in process memory, partitioned so unrelated keys
// rarely share a lock.
type MemoryStore struct {
	now    func() time.Time
	shards [memoryShards]*memoryShard
}

// NewMemoryStore creates an in-memory store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	s := &MemoryStore{now: now}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[Key]*memoryEntry)}
	}
	return s
}

func (s *MemoryStore) shard(key Key) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.PatientID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Indicator))
	return s.shards[h.Sum32()%memoryShards]
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) live(expires time.Time) bool {
	return expires.IsZero() || s.now().Before(expires)
}

func (s *MemoryStore) LastValue(_ context.Context, key Key) (float64, bool, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[key]
	if !ok || !e.hasValue || !s.live(e.valueExpires) {
		return 0, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) SetLastValue(_ context.Context, key Key, value float64, ttl time.Duration) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := sh.entry(key)
	e.value, e.hasValue, e.valueExpires = value, true, s.expiry(ttl)
	return nil
}

func (s *MemoryStore) LastAlert(_ context.Context, key Key) (models.LastAlertState, bool, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[key]
	if !ok || !e.hasAlert || !s.live(e.alertExpires) {
		return models.LastAlertState{}, false, nil
	}
	return e.alert, true, nil
}

func (s *MemoryStore) SetLastAlert(_ context.Context, key Key, state models.LastAlertState, ttl time.Duration) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := sh.entry(key)
	e.alert, e.hasAlert, e.alertExpires = state, true, s.expiry(ttl)
	return nil
}

// Sweep drops entries whose value and alert state have both expired.
func (s *MemoryStore) Sweep() int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			valueLive := e.hasValue && s.live(e.valueExpires)
			alertLive := e.hasAlert && s.live(e.alertExpires)
			if !valueLive && !alertLive {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len counts resident entries, expired or not.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (s *MemoryStore) Close() error { return nil }

func (sh *memoryShard) entry(key Key) *memoryEntry {
	e, ok := sh.entries[key]
	if !ok {
		e = &memoryEntry{}
		sh.entries[key] = e
	}
	return e
}
