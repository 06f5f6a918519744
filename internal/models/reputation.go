package models

import (
	"time"
)

// Reputation tiers by composite score.
const (
	RepTierElite      = "Elite"      // [90, 100]
	RepTierExcellent  = "Excellent"  // [75, 90)
	RepTierGood       = "Good"       // [60, 75)
	RepTierAverage    = "Average"    // [40, 60)
	RepTierPoor       = "Poor"       // [20, 40)
	RepTierUnreliable = "Unreliable" // [0, 20)
	RepTierUnproven   = "Unproven"   // fewer than MinSignalsForTier signals
)

// MinSignalsForTier is the sample floor below which a channel stays Unproven
// regardless of score.
const MinSignalsForTier = 10

// RepTierForScore maps a composite score onto a named tier. The Unproven
// floor is applied by the caller, which knows the signal count.
func RepTierForScore(score float64) string {
	switch {
	case score >= 90:
		return RepTierElite
	case score >= 75:
		return RepTierExcellent
	case score >= 60:
		return RepTierGood
	case score >= 40:
		return RepTierAverage
	case score >= 20:
		return RepTierPoor
	default:
		return RepTierUnreliable
	}
}

// TierPerformance holds per-market-cap-tier sub-statistics of a channel.
type TierPerformance struct {
	TotalCalls   int     `json:"total_calls"`
	WinningCalls int     `json:"winning_calls"`
	WinRate      float64 `json:"win_rate"`
	AvgROI       float64 `json:"avg_roi"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
}

// ChannelReputation aggregates a channel's completed outcomes into the score
// that feeds back into queue admission priority.
type ChannelReputation struct {
	ChannelName    string `json:"channel_name"`
	TotalSignals   int    `json:"total_signals"`
	WinningSignals int    `json:"winning_signals"`
	LosingSignals  int    `json:"losing_signals"`
	NeutralSignals int    `json:"neutral_signals"`

	WinRate         float64 `json:"win_rate"`
	AverageROI      float64 `json:"average_roi"`
	MedianROI       float64 `json:"median_roi"`
	BestROI         float64 `json:"best_roi"`
	WorstROI        float64 `json:"worst_roi"`
	ROIStdDev       float64 `json:"roi_std_dev"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	RiskAdjustedROI float64 `json:"risk_adjusted_roi"`

	AvgTimeToATH float64 `json:"avg_time_to_ath"`
	AvgTimeTo2x  float64 `json:"avg_time_to_2x"`
	SpeedScore   float64 `json:"speed_score"`

	AvgConfidence float64 `json:"avg_confidence"`
	AvgHDRBScore  float64 `json:"avg_hdrb_score"`

	TierPerformance map[MarketTier]*TierPerformance `json:"tier_performance"`

	ReputationScore float64 `json:"reputation_score"`
	ReputationTier  string  `json:"reputation_tier"`

	ExpectedROI            float64   `json:"expected_roi"`
	PredictionErrorHistory []float64 `json:"prediction_error_history"`

	FirstSignalDate time.Time `json:"first_signal_date"`
	LastSignalDate  time.Time `json:"last_signal_date"`
	LastUpdated     time.Time `json:"last_updated"`
}

// NewChannelReputation builds an empty reputation with the tier map
// initialized for every market tier.
func NewChannelReputation(channel string) *ChannelReputation {
	tiers := make(map[MarketTier]*TierPerformance, len(AllTiers))
	for _, t := range AllTiers {
		tiers[t] = &TierPerformance{}
	}
	return &ChannelReputation{
		ChannelName:            channel,
		TierPerformance:        tiers,
		ReputationTier:         RepTierUnproven,
		PredictionErrorHistory: []float64{},
	}
}

// ChannelCoinStats is one channel's record on one coin.
type ChannelCoinStats struct {
	ChannelName   string    `json:"channel_name"`
	Mentions      int       `json:"mentions"`
	AvgROI        float64   `json:"avg_roi"`
	BestROI       float64   `json:"best_roi"`
	WorstROI      float64   `json:"worst_roi"`
	WinRate       float64   `json:"win_rate"`
	LastMentioned time.Time `json:"last_mentioned"`
}

// CoinCrossChannel aggregates per-channel performance on a single token.
// ConsensusStrength is max(0, 1 - std(roi)/mean(roi)) over channel averages.
type CoinCrossChannel struct {
	Address           string                       `json:"address"`
	Symbol            string                       `json:"symbol,omitempty"`
	Channels          map[string]*ChannelCoinStats `json:"channels"`
	TotalMentions     int                          `json:"total_mentions"`
	AvgROI            float64                      `json:"avg_roi"`
	BestROI           float64                      `json:"best_roi"`
	WorstROI          float64                      `json:"worst_roi"`
	ConsensusStrength float64                      `json:"consensus_strength"`
	BestChannel       string                       `json:"best_channel,omitempty"`
	WorstChannel      string                       `json:"worst_channel,omitempty"`
	LastUpdated       time.Time                    `json:"last_updated"`
}

// DeadToken is one advisory blacklist entry.
type DeadToken struct {
	Chain       ChainFamily `json:"chain"`
	Reason      string      `json:"reason"`
	DetectedAt  time.Time   `json:"detected_at"`
	TotalSupply *float64    `json:"total_supply,omitempty"`
	Holders     *int        `json:"holders,omitempty"`
	Transfers   *int        `json:"transfers,omitempty"`
}
