package models

import (
	"time"
)

// Canonical checkpoint names in elapsed-time order.
var CheckpointNames = []string{"1h", "4h", "24h", "3d", "7d", "30d"}

// CheckpointIntervals maps each checkpoint name to its elapsed-time offset
// from entry.
var CheckpointIntervals = map[string]time.Duration{
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"24h": 24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// TrackingWindow is how long a signal stays active before forced archival.
const TrackingWindow = 30 * 24 * time.Hour

// Checkpoint records ROI at one of the fixed post-entry elapsed times.
type Checkpoint struct {
	Timestamp *time.Time `json:"ts,omitempty"`
	Price     float64    `json:"price"`
	ROIPct    float64    `json:"roi_pct"`
	ROIMult   float64    `json:"roi_mult"`
	Reached   bool       `json:"reached"`
}

// SignalStatus is the lifecycle state of a tracked signal.
type SignalStatus string

const (
	StatusInProgress      SignalStatus = "in_progress"
	StatusCompleted       SignalStatus = "completed"
	StatusDataUnavailable SignalStatus = "data_unavailable"
)

// Completion reasons.
const (
	Reason30dElapsed = "30d_elapsed"
	Reason90PctLoss  = "90%_loss"
	ReasonZeroVolume = "zero_volume"
	ReasonHistorical = "historical"
)

// Entry price sources.
const (
	EntrySourceMessageText   = "message_text"
	EntrySourceCryptoCompare = "cryptocompare"
	EntrySourceDefiLlama     = "defillama"
	EntrySourceDexScreener   = "dexscreener"
	EntrySourceCurrentPrice  = "current_price"
	EntrySourceFallback      = "fallback"
	EntrySourceTimeout       = "timeout"
)

// Trajectory / peak timing labels.
const (
	TrajectoryImproved = "improved"
	TrajectoryCrashed  = "crashed"
	PeakEarly          = "early_peaker"
	PeakLate           = "late_peaker"
)

// Outcome categories keyed off ath_multiplier.
const (
	CategoryMoon      = "moon"
	CategoryGreat     = "great"
	CategoryGood      = "good"
	CategoryModerate  = "moderate"
	CategoryBreakEven = "break_even"
	CategoryLoss      = "loss"
)

// CategoryForMultiplier maps an ATH multiplier onto the global outcome ladder.
func CategoryForMultiplier(mult float64) string {
	switch {
	case mult >= 5.0:
		return CategoryMoon
	case mult >= 3.0:
		return CategoryGreat
	case mult >= 2.0:
		return CategoryGood
	case mult >= 1.5:
		return CategoryModerate
	case mult >= 1.0:
		return CategoryBreakEven
	default:
		return CategoryLoss
	}
}

// SignalOutcome is the full lifecycle record for one tracked (channel, address)
// signal. It is created at admission, mutated under checkpoint updates and
// price refreshes, and archived to the completed store on termination.
type SignalOutcome struct {
	// Identity
	MessageID   string `json:"message_id"`
	ChannelName string `json:"channel_name"`
	Address     string `json:"address"`
	Symbol      string `json:"symbol,omitempty"`

	// Re-monitoring
	SignalNumber    int      `json:"signal_number"`
	PreviousSignals []string `json:"previous_signals"`

	// Entry
	EntryPrice      float64   `json:"entry_price"`
	EntryTimestamp  time.Time `json:"entry_timestamp"`
	EntryConfidence float64   `json:"entry_confidence"`
	EntrySource     string    `json:"entry_source"`

	// Signal quality
	Sentiment      string  `json:"sentiment"`
	SentimentScore float64 `json:"sentiment_score"`
	HDRBScore      float64 `json:"hdrb_score"`
	Confidence     float64 `json:"confidence"`

	// Trajectory
	Checkpoints map[string]*Checkpoint `json:"checkpoints"`

	// Outcome
	ATHPrice          float64    `json:"ath_price"`
	ATHMultiplier     float64    `json:"ath_multiplier"`
	ATHTimestamp      *time.Time `json:"ath_timestamp,omitempty"`
	DaysToATH         float64    `json:"days_to_ath"`
	CurrentPrice      float64    `json:"current_price"`
	CurrentMultiplier float64    `json:"current_multiplier"`
	Day7Price         float64    `json:"day_7_price,omitempty"`
	Day7Multiplier    float64    `json:"day_7_multiplier,omitempty"`
	Day30Price        float64    `json:"day_30_price,omitempty"`
	Day30Multiplier   float64    `json:"day_30_multiplier,omitempty"`
	Trajectory        string     `json:"trajectory,omitempty"`
	PeakTiming        string     `json:"peak_timing,omitempty"`

	// Context
	MarketTier MarketTier `json:"market_tier"`
	RiskLevel  string     `json:"risk_level,omitempty"`
	RiskScore  float64    `json:"risk_score,omitempty"`

	// Status
	Status           SignalStatus `json:"status"`
	IsComplete       bool         `json:"is_complete"`
	CompletionReason string       `json:"completion_reason,omitempty"`
	IsWinner         bool         `json:"is_winner"`
	OutcomeCategory  string       `json:"outcome_category,omitempty"`

	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewSignalOutcome builds a fresh outcome with the fixed checkpoint set
// initialized and multipliers seeded at 1x.
func NewSignalOutcome(messageID, channelName, address string, entryPrice float64, entryTS time.Time) *SignalOutcome {
	cps := make(map[string]*Checkpoint, len(CheckpointNames))
	for _, name := range CheckpointNames {
		cps[name] = &Checkpoint{}
	}
	return &SignalOutcome{
		MessageID:         messageID,
		ChannelName:       channelName,
		Address:           address,
		SignalNumber:      1,
		PreviousSignals:   []string{},
		EntryPrice:        entryPrice,
		EntryTimestamp:    entryTS,
		Checkpoints:       cps,
		ATHPrice:          entryPrice,
		ATHMultiplier:     1.0,
		CurrentPrice:      entryPrice,
		CurrentMultiplier: 1.0,
		MarketTier:        TierMicro,
		Status:            StatusInProgress,
		LastUpdated:       time.Now().UTC(),
	}
}

// Checkpoint returns the named checkpoint, allocating it if a load from an
// older file left it nil.
func (s *SignalOutcome) Checkpoint(name string) *Checkpoint {
	if s.Checkpoints == nil {
		s.Checkpoints = make(map[string]*Checkpoint, len(CheckpointNames))
	}
	cp, ok := s.Checkpoints[name]
	if !ok || cp == nil {
		cp = &Checkpoint{}
		s.Checkpoints[name] = cp
	}
	return cp
}

// ObservePrice folds a new price observation into the outcome: recomputes the
// current multiplier and advances ATH state when a new high is seen.
func (s *SignalOutcome) ObservePrice(price float64, at time.Time) {
	if price <= 0 || s.EntryPrice <= 0 {
		return
	}
	s.CurrentPrice = price
	s.CurrentMultiplier = price / s.EntryPrice
	if price > s.ATHPrice {
		s.ATHPrice = price
		s.ATHMultiplier = price / s.EntryPrice
		ts := at
		s.ATHTimestamp = &ts
		s.DaysToATH = at.Sub(s.EntryTimestamp).Hours() / 24
	}
	s.LastUpdated = time.Now().UTC()
}

// DrawdownFromATH returns the fractional loss from the in-window ATH.
func (s *SignalOutcome) DrawdownFromATH() float64 {
	if s.ATHPrice <= 0 {
		return 0
	}
	return (s.ATHPrice - s.CurrentPrice) / s.ATHPrice
}

// Age returns elapsed time since entry.
func (s *SignalOutcome) Age(now time.Time) time.Duration {
	return now.Sub(s.EntryTimestamp)
}
