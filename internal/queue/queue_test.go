package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

func msg(channel, id string) models.MessageEvent {
	return models.MessageEvent{ChannelName: channel, MessageID: id, Timestamp: time.Now().UTC()}
}

func TestPriorityFromReputation(t *testing.T) {
	scores := map[string]float64{"elite": 92.0, "poor": 25.0}
	q := New(10, func(ch string) (float64, bool) { s, ok := scores[ch]; return s, ok })

	assert.Equal(t, 8.0, q.PriorityFor("elite"))
	assert.Equal(t, 75.0, q.PriorityFor("poor"))
	assert.Equal(t, UnknownChannelPriority, q.PriorityFor("stranger"))
}

func TestDequeueOrderByPriorityThenAge(t *testing.T) {
	scores := map[string]float64{"elite": 90.0}
	q := New(10, func(ch string) (float64, bool) { s, ok := scores[ch]; return s, ok })

	// Older unknown message first, then elite: elite must still win.
	require.True(t, q.Enqueue(msg("stranger", "m1")))
	time.Sleep(2 * time.Millisecond)
	require.True(t, q.Enqueue(msg("elite", "m2")))

	it, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "m2", it.Message.MessageID, "higher-reputation channel overtakes")

	it, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "m1", it.Message.MessageID)
}

func TestTiesBrokenByEnqueueTime(t *testing.T) {
	q := New(10, nil)
	require.True(t, q.Enqueue(msg("a", "first")))
	time.Sleep(2 * time.Millisecond)
	require.True(t, q.Enqueue(msg("b", "second")))

	it, _ := q.TryDequeue()
	assert.Equal(t, "first", it.Message.MessageID)
}

func TestFullQueueDropsAndCounts(t *testing.T) {
	q := New(2, nil)
	assert.True(t, q.Enqueue(msg("a", "m1")))
	assert.True(t, q.Enqueue(msg("a", "m2")))
	assert.False(t, q.Enqueue(msg("a", "m3")))

	enq, dropped := q.Stats()
	assert.Equal(t, int64(2), enq)
	assert.Equal(t, int64(1), dropped)
	assert.Equal(t, 2, q.Len())
}

func TestRequeueDemotes(t *testing.T) {
	q := New(10, nil)
	require.True(t, q.Enqueue(msg("a", "failing")))
	failed, _ := q.TryDequeue()

	require.True(t, q.Enqueue(msg("b", "fresh")))
	require.True(t, q.Requeue(failed))
	assert.Equal(t, 1, failed.Attempts)

	it, _ := q.TryDequeue()
	assert.Equal(t, "fresh", it.Message.MessageID, "demoted retry sorts after fresh work")
	it, _ = q.TryDequeue()
	assert.Equal(t, "failing", it.Message.MessageID)
}

func TestConsumerProcessesAll(t *testing.T) {
	q := New(100, nil)
	var mu sync.Mutex
	var seen []string
	handler := func(ctx context.Context, m models.MessageEvent) error {
		mu.Lock()
		seen = append(seen, m.MessageID)
		mu.Unlock()
		return nil
	}

	c := NewConsumer(q, ratelimit.NewGlobal(1000), handler, time.Second)
	c.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(msg("a", string(rune('a'+i)))))
	}
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
}

func TestConsumerRetriesOnceThenDrops(t *testing.T) {
	q := New(100, nil)
	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, m models.MessageEvent) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	}

	c := NewConsumer(q, ratelimit.NewGlobal(1000), handler, time.Second)
	c.Start(context.Background())
	require.True(t, q.Enqueue(msg("a", "m1")))
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts, "original attempt plus exactly one retry")
}

func TestDequeueUnblocksOnClose(t *testing.T) {
	q := New(10, nil)
	done := make(chan struct{})
	go func() {
		_, ok := q.Dequeue()
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock on Close")
	}
}

func TestCloseRejectsNewWork(t *testing.T) {
	q := New(10, nil)
	q.Close()
	assert.False(t, q.Enqueue(msg("a", "late")))
}
