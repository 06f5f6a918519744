package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/moonwatch/signalrun/internal/models"
)

// PostgresSink publishes outcomes, reputations, and cross-channel records
// into Postgres. Rows are keyed so the scheduler's full republish is an
// idempotent upsert.
type PostgresSink struct {
	db *sqlx.DB
}

// NewPostgresSink connects and ensures the schema exists.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres sink: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSinkFromDB wraps an existing connection, for tests.
func NewPostgresSinkFromDB(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS signal_outcomes (
    signal_key       TEXT PRIMARY KEY,
    channel_name     TEXT NOT NULL,
    address          TEXT NOT NULL,
    symbol           TEXT NOT NULL DEFAULT '',
    signal_number    INT NOT NULL,
    entry_price      DOUBLE PRECISION NOT NULL,
    entry_timestamp  TIMESTAMPTZ NOT NULL,
    ath_multiplier   DOUBLE PRECISION NOT NULL,
    days_to_ath      DOUBLE PRECISION NOT NULL,
    is_winner        BOOLEAN NOT NULL,
    outcome_category TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    completion_reason TEXT NOT NULL DEFAULT '',
    payload          JSONB NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS channel_reputations (
    channel_name     TEXT PRIMARY KEY,
    total_signals    INT NOT NULL,
    win_rate         DOUBLE PRECISION NOT NULL,
    average_roi      DOUBLE PRECISION NOT NULL,
    sharpe_ratio     DOUBLE PRECISION NOT NULL,
    reputation_score DOUBLE PRECISION NOT NULL,
    reputation_tier  TEXT NOT NULL,
    payload          JSONB NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS coin_cross_channel (
    address            TEXT PRIMARY KEY,
    symbol             TEXT NOT NULL DEFAULT '',
    total_mentions     INT NOT NULL,
    avg_roi            DOUBLE PRECISION NOT NULL,
    consensus_strength DOUBLE PRECISION NOT NULL,
    best_channel       TEXT NOT NULL DEFAULT '',
    payload            JSONB NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure sink schema: %w", err)
	}
	return nil
}

// UpsertOutcomes writes each outcome keyed by address plus admitting message.
func (s *PostgresSink) UpsertOutcomes(ctx context.Context, outcomes []*models.SignalOutcome) error {
	const q = `
INSERT INTO signal_outcomes (
    signal_key, channel_name, address, symbol, signal_number, entry_price,
    entry_timestamp, ath_multiplier, days_to_ath, is_winner, outcome_category,
    status, completion_reason, payload, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
ON CONFLICT (signal_key) DO UPDATE SET
    ath_multiplier = EXCLUDED.ath_multiplier,
    days_to_ath = EXCLUDED.days_to_ath,
    is_winner = EXCLUDED.is_winner,
    outcome_category = EXCLUDED.outcome_category,
    status = EXCLUDED.status,
    completion_reason = EXCLUDED.completion_reason,
    payload = EXCLUDED.payload,
    updated_at = now()`

	return withRetry(ctx, "postgres", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, o := range outcomes {
			payload, err := json.Marshal(o)
			if err != nil {
				return fmt.Errorf("marshal outcome %s: %w", o.MessageID, err)
			}
			if _, err := tx.ExecContext(ctx, q,
				CompositeKey(o.Address, o.MessageID),
				o.ChannelName, NormalizeAddress(o.Address), NormalizeSymbol(o.Symbol),
				o.SignalNumber, o.EntryPrice, o.EntryTimestamp,
				o.ATHMultiplier, o.DaysToATH, o.IsWinner, o.OutcomeCategory,
				string(o.Status), o.CompletionReason, payload,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// UpsertReputations writes the full reputation set keyed by channel.
func (s *PostgresSink) UpsertReputations(ctx context.Context, reps []*models.ChannelReputation) error {
	const q = `
INSERT INTO channel_reputations (
    channel_name, total_signals, win_rate, average_roi, sharpe_ratio,
    reputation_score, reputation_tier, payload, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
ON CONFLICT (channel_name) DO UPDATE SET
    total_signals = EXCLUDED.total_signals,
    win_rate = EXCLUDED.win_rate,
    average_roi = EXCLUDED.average_roi,
    sharpe_ratio = EXCLUDED.sharpe_ratio,
    reputation_score = EXCLUDED.reputation_score,
    reputation_tier = EXCLUDED.reputation_tier,
    payload = EXCLUDED.payload,
    updated_at = now()`

	return withRetry(ctx, "postgres", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, rep := range reps {
			payload, err := json.Marshal(rep)
			if err != nil {
				return fmt.Errorf("marshal reputation %s: %w", rep.ChannelName, err)
			}
			if _, err := tx.ExecContext(ctx, q,
				rep.ChannelName, rep.TotalSignals, rep.WinRate, rep.AverageROI,
				rep.SharpeRatio, rep.ReputationScore, rep.ReputationTier, payload,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// UpsertCrossChannel writes the per-token aggregates keyed by address.
func (s *PostgresSink) UpsertCrossChannel(ctx context.Context, coins []*models.CoinCrossChannel) error {
	const q = `
INSERT INTO coin_cross_channel (
    address, symbol, total_mentions, avg_roi, consensus_strength,
    best_channel, payload, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,now())
ON CONFLICT (address) DO UPDATE SET
    symbol = EXCLUDED.symbol,
    total_mentions = EXCLUDED.total_mentions,
    avg_roi = EXCLUDED.avg_roi,
    consensus_strength = EXCLUDED.consensus_strength,
    best_channel = EXCLUDED.best_channel,
    payload = EXCLUDED.payload,
    updated_at = now()`

	return withRetry(ctx, "postgres", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, coin := range coins {
			payload, err := json.Marshal(coin)
			if err != nil {
				return fmt.Errorf("marshal coin %s: %w", coin.Address, err)
			}
			if _, err := tx.ExecContext(ctx, q,
				NormalizeAddress(coin.Address), NormalizeSymbol(coin.Symbol),
				coin.TotalMentions, coin.AvgROI, coin.ConsensusStrength,
				coin.BestChannel, payload,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
