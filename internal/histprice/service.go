package histprice

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/providers"
)

// Service answers two questions: what did the token cost at message time, and
// what did the 30-day window after the message look like. Provider order:
// daily-bar provider by symbol, then the chain+address historical endpoint.
type Service struct {
	candles *CryptoCompare
	llama   *providers.DefiLlama
	cache   *Cache
	timeout time.Duration
}

// NewService wires the service. Either provider may be nil.
func NewService(candles *CryptoCompare, llama *providers.DefiLlama, cache *Cache, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{candles: candles, llama: llama, cache: cache, timeout: timeout}
}

// lookbackLadder is the nearest-neighbor search order for a point-in-time
// price: exact time, same-day noon, same-day midnight, t-12h, t-24h.
func lookbackLadder(t time.Time) []time.Time {
	t = t.UTC()
	noon := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return []time.Time{t, noon, midnight, t.Add(-12 * time.Hour), t.Add(-24 * time.Hour)}
}

// PriceAtTimestamp returns the historical spot price nearest t, its source
// name, and whether the result came from cache.
func (s *Service) PriceAtTimestamp(ctx context.Context, symbol, address string, chain models.ChainFamily, t time.Time) (float64, string, error) {
	key := SpotKey(symbol, t)
	if s.cache != nil {
		if entry, ok := s.cache.Get(key); ok && entry.PriceAtTimestamp > 0 {
			return entry.PriceAtTimestamp, entry.Source, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// First choice: daily bars around t; take the candle closest to any rung
	// of the lookback ladder.
	if s.candles != nil && symbol != "" {
		bars, err := s.candles.DailyCandles(ctx, symbol, t.Add(24*time.Hour), 3)
		if err != nil {
			log.Debug().Str("symbol", symbol).Err(err).Msg("histoday lookup failed")
		} else if len(bars) > 0 {
			for _, rung := range lookbackLadder(t) {
				if c := closestCandle(bars, rung); c != nil && c.Close > 0 {
					s.cachePut(key, models.HistoricalPriceData{
						Symbol:           symbol,
						PriceAtTimestamp: c.Close,
						Source:           "cryptocompare",
					})
					return c.Close, "cryptocompare", nil
				}
			}
		}
	}

	// Second choice: chain+address historical endpoint.
	if s.llama != nil && address != "" {
		price, sym, err := s.llama.PriceAt(ctx, chain, address, t.Unix())
		if err != nil {
			log.Debug().Str("address", address).Err(err).Msg("historical price endpoint failed")
		} else if price > 0 {
			if symbol == "" {
				symbol = sym
			}
			s.cachePut(key, models.HistoricalPriceData{
				Symbol:           symbol,
				PriceAtTimestamp: price,
				Source:           "defillama",
			})
			return price, "defillama", nil
		}
	}

	return 0, "", fmt.Errorf("no historical price for %s/%s at %s", symbol, address, t.Format(time.RFC3339))
}

// ForwardOHLCWithATH fetches daily candles for [t, t+windowDays] and extracts
// the entry price and the in-window ATH. All-zero windows are rejected as
// unlisted.
func (s *Service) ForwardOHLCWithATH(ctx context.Context, symbol, address string, chain models.ChainFamily, t time.Time, windowDays int) (*models.HistoricalPriceData, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	key := WindowKey(symbol, t, windowDays)
	if s.cache != nil {
		if entry, ok := s.cache.Get(key); ok && len(entry.Candles) > 0 {
			return &entry, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	windowEnd := t.Add(time.Duration(windowDays) * 24 * time.Hour)

	var window []models.Candle
	source := ""
	if s.candles != nil && symbol != "" {
		bars, err := s.candles.DailyCandles(ctx, symbol, windowEnd, windowDays+1)
		if err != nil {
			log.Debug().Str("symbol", symbol).Err(err).Msg("forward OHLC fetch failed")
		} else {
			window = candlesInWindow(bars, t, windowEnd)
			source = "cryptocompare"
		}
	}
	if len(window) == 0 && s.llama != nil && address != "" {
		bars, sym, err := s.llama.Chart(ctx, chain, address, t.Unix(), windowDays)
		if err != nil {
			log.Debug().Str("address", address).Err(err).Msg("chart fallback failed")
		} else {
			window = candlesInWindow(bars, t, windowEnd)
			source = "defillama"
			if symbol == "" {
				symbol = sym
			}
		}
	}

	if len(window) == 0 {
		return nil, fmt.Errorf("no OHLC window for %s/%s from %s", symbol, address, t.Format(time.RFC3339))
	}
	if allZero(window) {
		return nil, fmt.Errorf("token %s unlisted in window starting %s", symbol, t.Format("2006-01-02"))
	}

	entry := window[0].Open
	if entry <= 0 {
		entry = window[0].Close
	}

	athIdx := 0
	for i, c := range window {
		if c.High > window[athIdx].High {
			athIdx = i
		}
	}
	ath := window[athIdx]

	result := models.HistoricalPriceData{
		Symbol:           symbol,
		PriceAtTimestamp: entry,
		ATHInWindow:      ath.High,
		ATHTimestamp:     ath.Timestamp,
		DaysToATH:        ath.Timestamp.Sub(t).Hours() / 24,
		Candles:          window,
		Source:           source,
	}
	if result.DaysToATH < 0 {
		result.DaysToATH = 0
	}
	s.cachePut(key, result)
	return &result, nil
}

func (s *Service) cachePut(key string, data models.HistoricalPriceData) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(key, data); err != nil {
		log.Error().Err(err).Str("key", key).Msg("historical cache write failed")
	}
}

// closestCandle returns the candle nearest to t, or nil when bars is empty.
func closestCandle(bars []models.Candle, t time.Time) *models.Candle {
	var best *models.Candle
	bestDist := time.Duration(math.MaxInt64)
	for i := range bars {
		d := bars[i].Timestamp.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = &bars[i]
		}
	}
	return best
}

func candlesInWindow(bars []models.Candle, from, to time.Time) []models.Candle {
	// Daily bars are stamped at 00:00 UTC, so accept one bar-width of slack
	// before the window start.
	slack := 24 * time.Hour
	out := make([]models.Candle, 0, len(bars))
	for _, c := range bars {
		if c.Timestamp.Before(from.Add(-slack)) || c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func allZero(bars []models.Candle) bool {
	for _, c := range bars {
		if c.Open != 0 || c.High != 0 || c.Low != 0 || c.Close != 0 {
			return false
		}
	}
	return true
}

// BackfillCheckpoints populates every checkpoint whose interval has already
// elapsed for the signal, taking the candle closest to entry+interval.
// Checkpoints whose target time is still in the future are left untouched.
func BackfillCheckpoints(outcome *models.SignalOutcome, hist *models.HistoricalPriceData, now time.Time) {
	if outcome == nil || hist == nil || len(hist.Candles) == 0 || outcome.EntryPrice <= 0 {
		return
	}
	age := now.Sub(outcome.EntryTimestamp)

	for _, name := range models.CheckpointNames {
		interval := models.CheckpointIntervals[name]
		if interval > age {
			continue
		}
		target := outcome.EntryTimestamp.Add(interval)
		candle := closestCandle(hist.Candles, target)
		if candle == nil || candle.Close <= 0 {
			continue
		}
		cp := outcome.Checkpoint(name)
		ts := candle.Timestamp
		cp.Timestamp = &ts
		cp.Price = candle.Close
		cp.ROIMult = candle.Close / outcome.EntryPrice
		cp.ROIPct = (cp.ROIMult - 1) * 100
		cp.Reached = true
	}
}
