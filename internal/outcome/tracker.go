package outcome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/histprice"
	"github.com/moonwatch/signalrun/internal/models"
)

// ErrAlreadyTracked is returned by Admit when the address already has an
// in-flight signal, whichever channel mentioned it. Repeat mentions refresh
// the existing signal instead of opening a second one.
var ErrAlreadyTracked = errors.New("signal already tracked")

// maxFreshAge is how old a message can be and still use the live price as its
// entry. Older messages must anchor on a historical price.
const maxFreshAge = time.Hour

// drawdownFloor terminates tracking early: a token 90% off its tracked ATH is
// treated as dead money.
const drawdownFloor = 0.90

// HistoricalPricer is the slice of the historical price service the tracker
// depends on.
type HistoricalPricer interface {
	PriceAtTimestamp(ctx context.Context, symbol, address string, chain models.ChainFamily, t time.Time) (float64, string, error)
	ForwardOHLCWithATH(ctx context.Context, symbol, address string, chain models.ChainFamily, t time.Time, windowDays int) (*models.HistoricalPriceData, error)
}

// Admission carries everything known about a signal at admission time.
type Admission struct {
	Message models.MessageEvent
	Address models.Address
	Symbol  string

	// Live market view at processing time; may be nil when every provider
	// failed.
	Price *models.PriceData

	Sentiment      string
	SentimentScore float64
	HDRBScore      float64
	Confidence     float64
}

// Tracker drives the signal lifecycle against the store.
type Tracker struct {
	store *Store
	hist  HistoricalPricer
	now   func() time.Time
}

// NewTracker wires a tracker. hist may be nil, in which case stale messages
// fall back to the live price.
func NewTracker(store *Store, hist HistoricalPricer) *Tracker {
	return &Tracker{store: store, hist: hist, now: func() time.Time { return time.Now().UTC() }}
}

// Admit opens tracking for a new signal. Messages older than the tracking
// window are evaluated as a completed historical signal instead of entering
// active tracking. An address already in flight returns ErrAlreadyTracked
// with the existing record, even when a different channel mentions it.
func (t *Tracker) Admit(ctx context.Context, adm Admission) (*models.SignalOutcome, error) {
	if existing, ok := t.store.Active(adm.Address.Raw); ok {
		return existing, ErrAlreadyTracked
	}

	now := t.now()
	age := now.Sub(adm.Message.Timestamp)

	entryPrice, entrySource, err := t.entryPrice(ctx, adm, age)
	if err != nil {
		return nil, err
	}

	o := models.NewSignalOutcome(adm.Message.MessageID, adm.Message.ChannelName, adm.Address.Raw, entryPrice, adm.Message.Timestamp)
	o.Symbol = adm.Symbol
	o.EntrySource = entrySource
	o.EntryConfidence = adm.Confidence
	o.Confidence = adm.Confidence
	o.Sentiment = adm.Sentiment
	o.SentimentScore = adm.SentimentScore
	o.HDRBScore = adm.HDRBScore
	if adm.Price != nil {
		o.MarketTier = adm.Price.MarketTier
		o.RiskLevel = adm.Price.RiskLevel
		o.RiskScore = adm.Price.RiskScore
	}

	// Re-monitoring: a pair seen before starts a fresh window with its own
	// numbering, carrying only the lineage of prior message IDs.
	previous := t.store.CompletedFor(adm.Message.ChannelName, adm.Address.Raw)
	if len(previous) > 0 {
		maxNum := 0
		for _, p := range previous {
			if p.SignalNumber > maxNum {
				maxNum = p.SignalNumber
			}
			o.PreviousSignals = append(o.PreviousSignals, p.MessageID)
		}
		o.SignalNumber = maxNum + 1
	}

	if age >= models.TrackingWindow {
		return o, t.evaluateHistorical(ctx, o, adm, now)
	}

	// A stale-but-active message has already lived through some checkpoints;
	// fill them from the forward window before live tracking takes over.
	if age > models.CheckpointIntervals[models.CheckpointNames[0]] && t.hist != nil {
		hist, err := t.hist.ForwardOHLCWithATH(ctx, adm.Symbol, adm.Address.Raw, adm.Address.Family, adm.Message.Timestamp, 30)
		if err != nil {
			log.Debug().Str("address", adm.Address.Raw).Err(err).Msg("checkpoint backfill skipped")
		} else {
			histprice.BackfillCheckpoints(o, hist, now)
			if hist.ATHInWindow > o.ATHPrice {
				o.ATHPrice = hist.ATHInWindow
				o.ATHMultiplier = hist.ATHInWindow / o.EntryPrice
				ts := hist.ATHTimestamp
				o.ATHTimestamp = &ts
				o.DaysToATH = hist.DaysToATH
			}
		}
	}
	if adm.Price != nil && adm.Price.PriceUSD > 0 {
		o.ObservePrice(adm.Price.PriceUSD, now)
	}

	if err := t.store.PutActive(o); err != nil {
		return nil, err
	}
	log.Info().
		Str("channel", o.ChannelName).
		Str("address", o.Address).
		Str("symbol", o.Symbol).
		Int("signal_number", o.SignalNumber).
		Float64("entry_price", o.EntryPrice).
		Str("entry_source", o.EntrySource).
		Msg("signal admitted")
	return o, nil
}

// entryPrice picks the entry anchor: live price for fresh messages,
// historical price for older ones, live price as last resort.
func (t *Tracker) entryPrice(ctx context.Context, adm Admission, age time.Duration) (float64, string, error) {
	live := 0.0
	if adm.Price != nil {
		live = adm.Price.PriceUSD
	}

	if age <= maxFreshAge {
		if live > 0 {
			return live, models.EntrySourceCurrentPrice, nil
		}
		return 0, "", fmt.Errorf("no live price for fresh signal %s", adm.Address.Raw)
	}

	if t.hist != nil {
		price, source, err := t.hist.PriceAtTimestamp(ctx, adm.Symbol, adm.Address.Raw, adm.Address.Family, adm.Message.Timestamp)
		if err == nil && price > 0 {
			return price, source, nil
		}
		log.Warn().Str("address", adm.Address.Raw).Err(err).
			Msg("historical entry price unavailable, falling back to live price")
	}
	if live > 0 {
		return live, models.EntrySourceCurrentPrice, nil
	}
	return 0, "", fmt.Errorf("no entry price for %s", adm.Address.Raw)
}

// evaluateHistorical runs the whole 30-day window as a one-shot evaluation
// for a message already older than the tracking window, and appends the
// result straight to completed history.
func (t *Tracker) evaluateHistorical(ctx context.Context, o *models.SignalOutcome, adm Admission, now time.Time) error {
	if t.hist == nil {
		o.Status = models.StatusDataUnavailable
		o.Error = "no historical price service"
		return t.store.AppendCompleted(o)
	}

	hist, err := t.hist.ForwardOHLCWithATH(ctx, adm.Symbol, adm.Address.Raw, adm.Address.Family, adm.Message.Timestamp, 30)
	if err != nil {
		o.Status = models.StatusDataUnavailable
		o.Error = err.Error()
		log.Warn().Str("address", adm.Address.Raw).Err(err).Msg("historical evaluation has no window data")
		return t.store.AppendCompleted(o)
	}

	histprice.BackfillCheckpoints(o, hist, now)
	o.ATHPrice = hist.ATHInWindow
	o.ATHMultiplier = hist.ATHInWindow / o.EntryPrice
	ts := hist.ATHTimestamp
	o.ATHTimestamp = &ts
	o.DaysToATH = hist.DaysToATH
	if last := lastCandle(hist.Candles); last != nil {
		o.CurrentPrice = last.Close
		o.CurrentMultiplier = last.Close / o.EntryPrice
	}
	o.Day7Price, o.Day7Multiplier = dayClose(o, hist.Candles, 7)
	o.Day30Price, o.Day30Multiplier = dayClose(o, hist.Candles, 30)

	t.finalize(o, models.ReasonHistorical, now)
	if err := t.store.AppendCompleted(o); err != nil {
		return err
	}
	log.Info().
		Str("channel", o.ChannelName).
		Str("address", o.Address).
		Float64("ath_multiplier", o.ATHMultiplier).
		Str("category", o.OutcomeCategory).
		Msg("historical signal evaluated")
	return nil
}

// ArchiveExpired force-completes a signal whose tracking window has elapsed,
// filling terminal fields from the OHLC window when live tracking never
// populated them. The scheduler drives this for signals the live path missed.
func (t *Tracker) ArchiveExpired(ctx context.Context, o *models.SignalOutcome) error {
	now := t.now()
	if o.Age(now) < models.TrackingWindow {
		return nil
	}

	if o.Day30Price == 0 && t.hist != nil {
		hist, err := t.hist.ForwardOHLCWithATH(ctx, o.Symbol, o.Address, chainOf(o.Address), o.EntryTimestamp, 30)
		if err != nil {
			log.Warn().Str("address", o.Address).Err(err).Msg("terminal OHLC unavailable at archival")
		} else {
			histprice.BackfillCheckpoints(o, hist, now)
			if hist.ATHInWindow > o.ATHPrice {
				o.ATHPrice = hist.ATHInWindow
				o.ATHMultiplier = hist.ATHInWindow / o.EntryPrice
				ts := hist.ATHTimestamp
				o.ATHTimestamp = &ts
				o.DaysToATH = hist.DaysToATH
			}
			o.Day7Price, o.Day7Multiplier = dayClose(o, hist.Candles, 7)
			o.Day30Price, o.Day30Multiplier = dayClose(o, hist.Candles, 30)
			if last := lastCandle(hist.Candles); last != nil && last.Close > 0 {
				o.CurrentPrice = last.Close
				o.CurrentMultiplier = last.Close / o.EntryPrice
			}
		}
	}
	if o.Day30Price == 0 && o.CurrentPrice > 0 {
		o.Day30Price = o.CurrentPrice
		o.Day30Multiplier = o.CurrentMultiplier
	}

	_, err := t.complete(o, models.Reason30dElapsed, now)
	return err
}

// chainOf infers the address family from its shape, for archival lookups
// where the original detection context is gone.
func chainOf(address string) models.ChainFamily {
	if len(address) == 42 && address[0] == '0' && (address[1] == 'x' || address[1] == 'X') {
		return models.ChainEVM
	}
	return models.ChainSolana
}

// UpdateResult reports what Update did with a tracked signal.
type UpdateResult struct {
	Completed bool
	Reason    string
}

// Update folds a fresh price observation into an active signal: marks any
// checkpoints whose interval has elapsed, captures day-7 and day-30 closes,
// and completes the signal when a termination rule fires. zeroVolume should
// be set when the live market view reports no trading activity.
func (t *Tracker) Update(o *models.SignalOutcome, price float64, zeroVolume bool) (UpdateResult, error) {
	now := t.now()
	if price > 0 {
		o.ObservePrice(price, now)
	}
	age := o.Age(now)

	for _, name := range models.CheckpointNames {
		interval := models.CheckpointIntervals[name]
		if interval > age {
			break
		}
		cp := o.Checkpoint(name)
		if cp.Reached {
			continue
		}
		ts := now
		cp.Timestamp = &ts
		cp.Price = o.CurrentPrice
		cp.ROIMult = o.CurrentMultiplier
		cp.ROIPct = (o.CurrentMultiplier - 1) * 100
		cp.Reached = true
	}
	if age >= 7*24*time.Hour && o.Day7Price == 0 {
		o.Day7Price = o.CurrentPrice
		o.Day7Multiplier = o.CurrentMultiplier
	}
	if age >= models.TrackingWindow && o.Day30Price == 0 {
		o.Day30Price = o.CurrentPrice
		o.Day30Multiplier = o.CurrentMultiplier
	}

	switch {
	case age >= models.TrackingWindow:
		return t.complete(o, models.Reason30dElapsed, now)
	case o.DrawdownFromATH() >= drawdownFloor:
		return t.complete(o, models.Reason90PctLoss, now)
	case zeroVolume:
		return t.complete(o, models.ReasonZeroVolume, now)
	}

	return UpdateResult{}, t.store.SaveActive()
}

func (t *Tracker) complete(o *models.SignalOutcome, reason string, now time.Time) (UpdateResult, error) {
	t.finalize(o, reason, now)
	if err := t.store.Archive(o); err != nil {
		return UpdateResult{}, err
	}
	log.Info().
		Str("channel", o.ChannelName).
		Str("address", o.Address).
		Str("reason", reason).
		Float64("ath_multiplier", o.ATHMultiplier).
		Bool("winner", o.IsWinner).
		Msg("signal completed")
	return UpdateResult{Completed: true, Reason: reason}, nil
}

// finalize stamps the terminal classification fields. Winner status is
// tier-aware; the outcome category ladder is global.
func (t *Tracker) finalize(o *models.SignalOutcome, reason string, now time.Time) {
	o.Status = models.StatusCompleted
	o.IsComplete = true
	o.CompletionReason = reason
	o.IsWinner = o.ATHMultiplier >= models.WinnerThreshold(o.MarketTier)
	o.OutcomeCategory = models.CategoryForMultiplier(o.ATHMultiplier)

	if o.Day30Multiplier > 0 {
		if o.ATHMultiplier > o.Day30Multiplier*1.02 || o.Day30Multiplier < o.Day7Multiplier {
			o.Trajectory = models.TrajectoryCrashed
		} else {
			o.Trajectory = models.TrajectoryImproved
		}
	}
	if o.ATHTimestamp != nil {
		if o.DaysToATH <= 7 {
			o.PeakTiming = models.PeakEarly
		} else {
			o.PeakTiming = models.PeakLate
		}
	}
	o.LastUpdated = now
}

// dayClose returns the close and multiplier at entry+N days, zero when the
// window has no candle near that day.
func dayClose(o *models.SignalOutcome, candles []models.Candle, day int) (float64, float64) {
	if len(candles) == 0 || o.EntryPrice <= 0 {
		return 0, 0
	}
	target := o.EntryTimestamp.Add(time.Duration(day) * 24 * time.Hour)
	var best *models.Candle
	bestDist := time.Duration(1<<63 - 1)
	for i := range candles {
		d := candles[i].Timestamp.Sub(target)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = &candles[i]
		}
	}
	if best == nil || bestDist > 36*time.Hour || best.Close <= 0 {
		return 0, 0
	}
	return best.Close, best.Close / o.EntryPrice
}

func lastCandle(candles []models.Candle) *models.Candle {
	if len(candles) == 0 {
		return nil
	}
	return &candles[len(candles)-1]
}
