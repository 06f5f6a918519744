package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// Handler processes one dequeued message.
type Handler func(ctx context.Context, msg models.MessageEvent) error

// Consumer drains the queue with a single worker, pacing handler invocations
// through the global rate limiter. A failed message gets exactly one demoted
// retry.
type Consumer struct {
	queue        *Queue
	global       *ratelimit.Global
	handler      Handler
	drainTimeout time.Duration

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// NewConsumer wires a consumer. drainTimeout <= 0 selects 10 seconds.
func NewConsumer(q *Queue, global *ratelimit.Global, handler Handler, drainTimeout time.Duration) *Consumer {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &Consumer{queue: q, global: global, handler: handler, drainTimeout: drainTimeout}
}

// Start launches the consumer loop. It runs until Stop or parent context
// cancellation.
func (c *Consumer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.stop = cancel
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop closes the queue, waits up to the drain timeout for in-flight and
// queued work, then cancels the loop and best-effort drains what is left.
func (c *Consumer) Stop() {
	c.queue.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(c.drainTimeout):
	}

	if c.stop != nil {
		c.stop()
	}
	<-done

	// Whatever survived the timeout gets one bounded last pass without
	// rate-limit pacing.
	deadline := time.Now().Add(c.drainTimeout)
	drainCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	for {
		it, ok := c.queue.TryDequeue()
		if !ok || time.Now().After(deadline) {
			break
		}
		if err := c.handler(drainCtx, it.Message); err != nil {
			log.Warn().Str("message_id", it.Message.MessageID).Err(err).Msg("message dropped during drain")
		}
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		it, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		if c.global != nil {
			if err := c.global.Wait(ctx); err != nil {
				return
			}
		}
		if err := c.handler(ctx, it.Message); err != nil {
			if it.Attempts == 0 {
				log.Warn().
					Str("channel", it.Message.ChannelName).
					Str("message_id", it.Message.MessageID).
					Err(err).
					Msg("handler failed, re-enqueueing demoted")
				c.queue.Requeue(it)
				continue
			}
			log.Warn().
				Str("channel", it.Message.ChannelName).
				Str("message_id", it.Message.MessageID).
				Err(err).
				Msg("handler failed after retry, message dropped")
		}
	}
}
