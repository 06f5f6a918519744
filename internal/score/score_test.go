package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moonwatch/signalrun/internal/models"
)

func TestHDRBZeroEngagement(t *testing.T) {
	s := NewHDRBScorer(0)
	raw, norm := s.CalculateScore(Engagement{})
	assert.Equal(t, 0.0, raw)
	assert.Equal(t, 0.0, norm)
}

func TestHDRBForwardsDominate(t *testing.T) {
	s := NewHDRBScorer(0)
	_, fwd := s.CalculateScore(Engagement{Forwards: 50})
	_, views := s.CalculateScore(Engagement{Views: 50})
	assert.Greater(t, fwd, views, "50 forwards must outscore 50 views")
}

func TestHDRBNormalizationClamps(t *testing.T) {
	s := NewHDRBScorer(5.0)
	raw, norm := s.CalculateScore(Engagement{Forwards: 10000, Reactions: 10000, Replies: 10000, Views: 1000000})
	assert.Greater(t, raw, 5.0)
	assert.Equal(t, 100.0, norm)
}

func TestHDRBMonotonicInEngagement(t *testing.T) {
	s := NewHDRBScorer(0)
	_, low := s.CalculateScore(Engagement{Forwards: 1, Reactions: 2, Views: 100})
	_, high := s.CalculateScore(Engagement{Forwards: 10, Reactions: 20, Views: 1000})
	assert.Greater(t, high, low)
}

func TestSentimentLabels(t *testing.T) {
	p := NewPatternSentiment(nil, nil)

	label, s := p.Analyze("this gem is going to moon, 100x easy")
	assert.Equal(t, SentimentPositive, label)
	assert.Greater(t, s, 0.1)

	label, s = p.Analyze("obvious rug, total scam, avoid")
	assert.Equal(t, SentimentNegative, label)
	assert.Less(t, s, -0.1)

	label, s = p.Analyze("contract deployed on mainnet yesterday")
	assert.Equal(t, SentimentNeutral, label)
	assert.Equal(t, 0.0, s)
}

func TestSentimentMixedNetsOut(t *testing.T) {
	p := NewPatternSentiment(nil, nil)
	// "moon" (+0.9) vs "rug" (-0.9) cancel out.
	label, s := p.Analyze("moon or rug, who knows")
	assert.Equal(t, SentimentNeutral, label)
	assert.InDelta(t, 0.0, s, 1e-9)
}

func TestSentimentEmptyText(t *testing.T) {
	p := NewPatternSentiment(nil, nil)
	label, s := p.Analyze("")
	assert.Equal(t, SentimentNeutral, label)
	assert.Equal(t, 0.0, s)
}

func TestSentimentExtraPatternsOverride(t *testing.T) {
	p := NewPatternSentiment(map[string]float64{"wagmi": 0.8}, nil)
	label, _ := p.Analyze("wagmi frens")
	assert.Equal(t, SentimentPositive, label)
}

func TestConfidenceBaseWeights(t *testing.T) {
	c := NewConfidenceScorer(0)

	// Everything maxed: 0.40 + 0.30 + 0.20 + 0.10 = 1.0.
	full := c.Base(ConfidenceInputs{HDRBScore: 100, HasMentions: true, SentimentScore: 1.0, TextLength: 200})
	assert.InDelta(t, 1.0, full, 1e-9)

	// Mentions alone contribute 0.30.
	mentionOnly := c.Base(ConfidenceInputs{HasMentions: true})
	assert.InDelta(t, 0.30, mentionOnly, 1e-9)

	// Negative sentiment counts by magnitude.
	negSent := c.Base(ConfidenceInputs{SentimentScore: -1.0})
	assert.InDelta(t, 0.20, negSent, 1e-9)

	// Text length saturates at 200 chars.
	long := c.Base(ConfidenceInputs{TextLength: 5000})
	assert.InDelta(t, 0.10, long, 1e-9)
}

func TestConfidenceAdjustedByReputation(t *testing.T) {
	c := NewConfidenceScorer(0)
	in := ConfidenceInputs{HDRBScore: 100, HasMentions: true, TextLength: 200}
	base := c.Base(in) // 0.80

	elite := models.NewChannelReputation("alpha")
	elite.TotalSignals = 25
	elite.SharpeRatio = 2.0
	assert.InDelta(t, base*1.25, c.Adjusted(in, elite), 1e-9)

	shaky := models.NewChannelReputation("beta")
	shaky.TotalSignals = 25
	shaky.SharpeRatio = -0.3
	assert.InDelta(t, base*0.90, c.Adjusted(in, shaky), 1e-9)
}

func TestConfidenceUnprovenChannelNotAdjusted(t *testing.T) {
	c := NewConfidenceScorer(0)
	in := ConfidenceInputs{HDRBScore: 50, HasMentions: true}

	young := models.NewChannelReputation("newcomer")
	young.TotalSignals = 5
	young.SharpeRatio = 3.0
	assert.Equal(t, c.Base(in), c.Adjusted(in, young))
	assert.Equal(t, c.Base(in), c.Adjusted(in, nil))
}

func TestConfidenceAdjustedClampsAtOne(t *testing.T) {
	c := NewConfidenceScorer(0)
	in := ConfidenceInputs{HDRBScore: 100, HasMentions: true, SentimentScore: 1.0, TextLength: 400}

	elite := models.NewChannelReputation("alpha")
	elite.TotalSignals = 50
	elite.SharpeRatio = 2.5
	assert.Equal(t, 1.0, c.Adjusted(in, elite))
}

func TestConfidenceHighThreshold(t *testing.T) {
	c := NewConfidenceScorer(0)
	assert.True(t, c.IsHigh(0.7))
	assert.False(t, c.IsHigh(0.69))

	custom := NewConfidenceScorer(0.5)
	assert.True(t, custom.IsHigh(0.55))
}
