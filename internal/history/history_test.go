package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/internal/clock"
	"monitoring-service/internal/models"
)

var testKey = Key{PatientID: "p-1", Indicator: "pulse"}

func exerciseStore(t *testing.T, store Store, expire func(time.Duration)) {
	ctx := context.Background()

	_, ok, err := store.LastValue(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetLastValue(ctx, testKey, 72.5, time.Hour))
	require.NoError(t, store.SetLastValue(ctx, testKey, 80, time.Hour))
	v, ok, err := store.LastValue(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 80.0, v)

	_, ok, err = store.LastAlert(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastAlert(ctx, testKey, models.LastAlertState{Kind: models.AlertKindWarning, Timestamp: at}, time.Hour))
	state, ok, err := store.LastAlert(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.AlertKindWarning, state.Kind)
	assert.True(t, at.Equal(state.Timestamp))

	other := Key{PatientID: "p-2", Indicator: "pulse"}
	_, ok, err = store.LastValue(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)

	expire(2 * time.Hour)
	_, ok, err = store.LastValue(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.LastAlert(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk.Now)
	exerciseStore(t, store, clk.Advance)
	assert.Equal(t, 1, store.Sweep())
}

func TestMemoryStoreSweeperFreesExpiredEntries(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk.Now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 1000; i++ {
		key := Key{PatientID: fmt.Sprintf("p-%d", i), Indicator: "pulse"}
		require.NoError(t, store.SetLastValue(ctx, key, 70, 24*time.Hour))
	}
	live := Key{PatientID: "p-live", Indicator: "pulse"}
	require.NoError(t, store.SetLastValue(ctx, live, 70, 72*time.Hour))
	require.Equal(t, 1001, store.Len())

	go store.RunSweeper(ctx, 5*time.Millisecond)
	clk.Advance(48 * time.Hour)

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	_, ok, err := store.LastValue(ctx, live)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStoreFromClient(client, "")
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store, srv.FastForward)
}

func TestRedisStoreKeysAndErrors(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStoreFromClient(client, "hist")
	ctx := context.Background()

	require.NoError(t, store.SetLastValue(ctx, testKey, 98.6, 24*time.Hour))
	got, err := srv.Get("hist:p-1:pulse:value")
	require.NoError(t, err)
	assert.Equal(t, "98.6", got)
	assert.Equal(t, 24*time.Hour, srv.TTL("hist:p-1:pulse:value"))

	require.NoError(t, srv.Set("hist:p-1:pulse:alert", "{not json"))
	_, _, err = store.LastAlert(ctx, testKey)
	assert.Error(t, err)

	srv.Close()
	_, _, err = store.LastValue(ctx, testKey)
	assert.Error(t, err)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(testKey)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutexDoesNotBlockOtherKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock(testKey)
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := km.Lock(Key{PatientID: "p-9", Indicator: "pulse"})
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on unrelated key blocked")
	}
}
