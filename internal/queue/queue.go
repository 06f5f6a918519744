// Package queue is the bounded priority queue between message ingestion and
// the pipeline handler. Priority derives from channel reputation so proven
// channels are processed first under load; the bound plus drop-on-full is
// the system's backpressure mechanism.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/moonwatch/signalrun/internal/models"
)

// UnknownChannelPriority is the admission priority for channels without a
// reputation record. Lower is served first.
const UnknownChannelPriority = 50.0

// retryDemotion is added to a message's priority on its single retry.
const retryDemotion = 100.0

// Item is one queued message with its admission priority snapshot.
type Item struct {
	Priority  float64
	EnqueueTS time.Time
	Message   models.MessageEvent
	Attempts  int
}

// itemHeap orders by priority ascending, ties broken by older enqueue time.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueueTS.Before(h[j].EnqueueTS)
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any) { *h = append(*h, x.(*Item)) }
func (h *itemHeap) Pop() any   { old := *h; n := len(old); it := old[n-1]; *h = old[:n-1]; return it }

// ScoreLookup resolves a channel's reputation score; ok=false means the
// channel is unknown.
type ScoreLookup func(channel string) (float64, bool)

// Queue is the bounded min-heap. All methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    itemHeap
	maxSize int
	scores  ScoreLookup
	closed  bool

	totalEnqueued int64
	totalDropped  int64
}

// New builds a queue. maxSize <= 0 selects the default bound of 1000. scores
// may be nil, in which case every channel is treated as unknown.
func New(maxSize int, scores ScoreLookup) *Queue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	q := &Queue{maxSize: maxSize, scores: scores}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PriorityFor computes the admission priority for a channel: 100 minus its
// reputation score, or the unknown default.
func (q *Queue) PriorityFor(channel string) float64 {
	if q.scores != nil {
		if score, ok := q.scores(channel); ok {
			return 100 - score
		}
	}
	return UnknownChannelPriority
}

// Enqueue admits a message at its channel's current priority. A full queue
// drops the message and returns false.
func (q *Queue) Enqueue(msg models.MessageEvent) bool {
	return q.push(&Item{
		Priority:  q.PriorityFor(msg.ChannelName),
		EnqueueTS: time.Now().UTC(),
		Message:   msg,
	})
}

// Requeue re-admits a failed message demoted by the retry penalty. The
// original enqueue timestamp is kept so the retry does not jump the line
// within its demoted band.
func (q *Queue) Requeue(it *Item) bool {
	it.Priority += retryDemotion
	it.Attempts++
	return q.push(it)
}

func (q *Queue) push(it *Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.heap) >= q.maxSize {
		q.totalDropped++
		return false
	}
	heap.Push(&q.heap, it)
	q.totalEnqueued++
	q.cond.Signal()
	return true
}

// Dequeue blocks until an item is available or the queue is closed. After
// close it keeps draining remaining items; ok=false means closed and empty.
func (q *Queue) Dequeue() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*Item), true
}

// TryDequeue pops the best item without blocking.
func (q *Queue) TryDequeue() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*Item), true
}

// Close stops admissions and wakes blocked consumers. Remaining items stay
// dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Stats reports (enqueued, dropped) totals.
func (q *Queue) Stats() (enqueued, dropped int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalEnqueued, q.totalDropped
}
