package queue

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/internal/models"
)

func request(id string, p models.Priority) models.NotificationRequest {
	return models.NotificationRequest{ID: id, Recipient: "r", Channel: models.ChannelEmail, Body: "b", Priority: p}
}

func TestTryDequeueEmpty(t *testing.T) {
	q := New()
	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Count())
}

func TestDequeueOrder(t *testing.T) {
	q := New()
	require.NoError(t, q.Enqueue(request("low", models.PriorityLow)))
	require.NoError(t, q.Enqueue(request("normal-1", models.PriorityNormal)))
	require.NoError(t, q.Enqueue(request("critical", models.PriorityCritical)))
	require.NoError(t, q.Enqueue(request("normal-2", models.PriorityNormal)))
	require.NoError(t, q.Enqueue(request("high", models.PriorityHigh)))

	var got []string
	for {
		req, ok := q.TryDequeue()
		if !ok {
			break
		}
		got = append(got, req.ID)
	}
	assert.Equal(t, []string{"critical", "high", "normal-1", "normal-2", "low"}, got)
}

func TestRandomizedHeapOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	q := New()
	var present []models.Priority

	for i := 0; i < 2000; i++ {
		if rng.Intn(3) > 0 {
			p := models.Priority(rng.Intn(4))
			require.NoError(t, q.Enqueue(request(fmt.Sprint(i), p)))
			present = append(present, p)
			continue
		}
		req, ok := q.TryDequeue()
		if len(present) == 0 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		sort.Slice(present, func(a, b int) bool { return present[a] < present[b] })
		assert.Equal(t, present[0], req.Priority)
		present = present[1:]
		assert.Equal(t, len(present), q.Count())
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q := New()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(request(fmt.Sprintf("%d-%d", p, i), models.Priority(i%4)))
			}
		}(p)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	stop := make(chan struct{})
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				req, ok := q.TryDequeue()
				if ok {
					mu.Lock()
					seen[req.ID] = true
					mu.Unlock()
					continue
				}
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	wg.Wait()
	require.Eventually(t, func() bool { return q.Count() == 0 }, 5*time.Second, time.Millisecond)
	close(stop)
	consumers.Wait()

	assert.Len(t, seen, producers*perProducer)
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New()
	require.NoError(t, q.Enqueue(request("kept", models.PriorityNormal)))
	q.Close()

	assert.ErrorIs(t, q.Enqueue(request("late", models.PriorityCritical)), ErrClosed)
	req, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "kept", req.ID)
}
