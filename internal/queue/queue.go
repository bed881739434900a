// Package queue holds notification requests in priority order.
package queue

import (
	"container/heap"
	"errors"
	"sync"

	"monitoring-service/internal/models"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

type entry struct {
	req models.NotificationRequest
	seq uint64
}

type entries []entry

func (e entries) Len() int { return len(e) }

func (e entries) Less(i, j int) bool {
	if e[i].req.Priority != e[j].req.Priority {
		return e[i].req.Priority < e[j].req.Priority
	}
	return e[i].seq < e[j].seq
}

func (e entries) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries) Push(x any) { *e = append(*e, x.(entry)) }

func (e *entries) Pop() any {
	old := *e
	n := len(old)
	item := old[n-1]
	old[n-1] = entry{}
	*e = old[:n-1]
	return item
}

// PriorityQueue returns the most urgent request first. Requests of equal
// priority come out in the order they went in.
type PriorityQueue struct {
	mu     sync.Mutex
	items  entries
	seq    uint64
	closed bool
}

func New() *PriorityQueue {
	return &PriorityQueue{}
}

func (q *PriorityQueue) Enqueue(req models.NotificationRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.seq++
	heap.Push(&q.items, entry{req: req, seq: q.seq})
	return nil
}

// TryDequeue never blocks; ok is false when the queue is empty.
func (q *PriorityQueue) TryDequeue() (models.NotificationRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.NotificationRequest{}, false
	}
	return heap.Pop(&q.items).(entry).req, true
}

func (q *PriorityQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues. Requests already queued can still be dequeued.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
