package sink

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
)

// MessageRow is one processed message as published to append-only sinks.
type MessageRow struct {
	Timestamp      time.Time
	ChannelName    string
	MessageID      string
	Text           string
	Tickers        []string
	Addresses      []string
	Sentiment      string
	SentimentScore float64
	HDRBScore      float64
	Confidence     float64
	PriceUSD       float64
	Symbol         string
}

// Appender receives every processed message.
type Appender interface {
	AppendMessage(ctx context.Context, row MessageRow) error
}

// Publisher receives the periodic full-state republish from the scheduler.
// Implementations upsert on the composite key so republishing is idempotent.
type Publisher interface {
	UpsertOutcomes(ctx context.Context, outcomes []*models.SignalOutcome) error
	UpsertReputations(ctx context.Context, reps []*models.ChannelReputation) error
	UpsertCrossChannel(ctx context.Context, coins []*models.CoinCrossChannel) error
}

// retryDelay is the pause before the single retry every sink write gets.
var retryDelay = 2 * time.Second

// withRetry runs op, and on failure retries exactly once after the delay.
func withRetry(ctx context.Context, name string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	log.Warn().Str("sink", name).Err(err).Msg("sink write failed, retrying once")
	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return op()
}
