package score

import (
	"strings"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SentimentAnalyzer is the pluggable sentiment capability. A model-backed
// implementation can sit behind the same contract.
type SentimentAnalyzer interface {
	Analyze(text string) (label string, score float64)
}

// PatternSentiment is the stateless pattern-based analyzer. Scores land in
// [-1, 1].
type PatternSentiment struct {
	positive map[string]float64
	negative map[string]float64
}

// NewPatternSentiment builds the analyzer with the default crypto-slang
// vocabulary. Extra patterns extend (and can override) the defaults.
func NewPatternSentiment(extraPositive, extraNegative map[string]float64) *PatternSentiment {
	pos := map[string]float64{
		"moon": 0.9, "bullish": 0.8, "pump": 0.7, "gem": 0.7, "lfg": 0.6,
		"100x": 0.9, "10x": 0.7, "ape": 0.5, "buy": 0.5, "send it": 0.6,
		"breakout": 0.5, "rocket": 0.6, "winner": 0.6, "huge": 0.4, "early": 0.4,
	}
	neg := map[string]float64{
		"rug": 0.9, "scam": 0.9, "dump": 0.7, "bearish": 0.7, "rekt": 0.7,
		"avoid": 0.6, "honeypot": 0.9, "sell": 0.5, "dead": 0.6, "exit": 0.4,
		"crash": 0.6, "warning": 0.5,
	}
	for k, v := range extraPositive {
		pos[strings.ToLower(k)] = v
	}
	for k, v := range extraNegative {
		neg[strings.ToLower(k)] = v
	}
	return &PatternSentiment{positive: pos, negative: neg}
}

// Analyze matches vocabulary against the lowercased text and nets the hits
// into a label and score.
func (p *PatternSentiment) Analyze(text string) (string, float64) {
	if text == "" {
		return SentimentNeutral, 0
	}
	lower := strings.ToLower(text)

	var posSum, negSum float64
	var hits int
	for pattern, weight := range p.positive {
		if strings.Contains(lower, pattern) {
			posSum += weight
			hits++
		}
	}
	for pattern, weight := range p.negative {
		if strings.Contains(lower, pattern) {
			negSum += weight
			hits++
		}
	}
	if hits == 0 {
		return SentimentNeutral, 0
	}

	score := (posSum - negSum) / float64(hits)
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	switch {
	case score > 0.1:
		return SentimentPositive, score
	case score < -0.1:
		return SentimentNegative, score
	default:
		return SentimentNeutral, score
	}
}
