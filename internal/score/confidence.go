package score

import (
	"math"

	"github.com/moonwatch/signalrun/internal/models"
)

// ConfidenceInputs is everything the composite confidence depends on.
type ConfidenceInputs struct {
	HDRBScore      float64 // normalized, [0, 100]
	HasMentions    bool    // at least one ticker or address detected
	SentimentScore float64 // [-1, 1]
	TextLength     int     // runes in the message body
}

// ConfidenceScorer combines signal-quality inputs into a confidence on
// [0, 1] and classifies it against a single threshold.
type ConfidenceScorer struct {
	highThreshold float64
}

// DefaultHighThreshold splits HIGH from LOW confidence.
const DefaultHighThreshold = 0.7

// NewConfidenceScorer builds a scorer; threshold <= 0 selects the default.
func NewConfidenceScorer(highThreshold float64) *ConfidenceScorer {
	if highThreshold <= 0 {
		highThreshold = DefaultHighThreshold
	}
	return &ConfidenceScorer{highThreshold: highThreshold}
}

// Base computes the unadjusted composite confidence. Weights: 0.40 salience,
// 0.30 mention presence, 0.20 sentiment magnitude, 0.10 text length saturated
// at 200 chars.
func (c *ConfidenceScorer) Base(in ConfidenceInputs) float64 {
	mention := 0.0
	if in.HasMentions {
		mention = 1.0
	}
	lengthTerm := math.Min(1.0, float64(in.TextLength)/200.0)

	conf := 0.40*(in.HDRBScore/100.0) +
		0.30*mention +
		0.20*math.Abs(in.SentimentScore) +
		0.10*lengthTerm
	return clamp01(conf)
}

// Adjusted scales the base confidence by the channel's track record. A nil or
// Unproven reputation leaves the base untouched.
func (c *ConfidenceScorer) Adjusted(in ConfidenceInputs, rep *models.ChannelReputation) float64 {
	base := c.Base(in)
	if rep == nil || rep.TotalSignals < models.MinSignalsForTier {
		return base
	}
	return clamp01(base * sharpeFactor(rep.SharpeRatio))
}

// IsHigh reports whether the confidence clears the HIGH threshold.
func (c *ConfidenceScorer) IsHigh(confidence float64) bool {
	return confidence >= c.highThreshold
}

// sharpeFactor is the reputation multiplier ladder keyed on risk-adjusted
// performance.
func sharpeFactor(sharpe float64) float64 {
	switch {
	case sharpe > 1.5:
		return 1.25
	case sharpe >= 1.0:
		return 1.20
	case sharpe >= 0.5:
		return 1.10
	case sharpe >= 0.0:
		return 1.00
	default:
		return 0.90
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
