package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestTierForMarketCap(t *testing.T) {
	assert.Equal(t, TierMicro, TierForMarketCap(nil))
	assert.Equal(t, TierMicro, TierForMarketCap(fptr(9_999_999)))
	assert.Equal(t, TierSmall, TierForMarketCap(fptr(10_000_000)))
	assert.Equal(t, TierMid, TierForMarketCap(fptr(100_000_000)))
	assert.Equal(t, TierLarge, TierForMarketCap(fptr(1_000_000_000)))
}

func TestWinnerThreshold(t *testing.T) {
	assert.Equal(t, 1.2, WinnerThreshold(TierLarge))
	assert.Equal(t, 1.5, WinnerThreshold(TierMid))
	assert.Equal(t, 2.0, WinnerThreshold(TierSmall))
	assert.Equal(t, 2.0, WinnerThreshold(TierMicro))
}

func TestCategoryForMultiplier(t *testing.T) {
	cases := []struct {
		mult float64
		want string
	}{
		{5.0, CategoryMoon},
		{3.2, CategoryGreat},
		{2.0, CategoryGood},
		{1.5, CategoryModerate},
		{1.0, CategoryBreakEven},
		{0.4, CategoryLoss},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CategoryForMultiplier(c.mult), "mult=%v", c.mult)
	}
}

func TestObservePriceAdvancesATH(t *testing.T) {
	entry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSignalOutcome("msg1", "alpha_calls", "0xabc", 1.00, entry)

	s.ObservePrice(1.52, entry.Add(time.Hour))
	s.ObservePrice(4.78, entry.Add(24*time.Hour))
	s.ObservePrice(2.10, entry.Add(48*time.Hour))

	assert.InDelta(t, 4.78, s.ATHMultiplier, 1e-9)
	assert.InDelta(t, 1.0, s.DaysToATH, 1e-9)
	require.NotNil(t, s.ATHTimestamp)
	assert.Equal(t, entry.Add(24*time.Hour), *s.ATHTimestamp)
	assert.InDelta(t, 2.10, s.CurrentMultiplier, 1e-9)

	// ATH must dominate every observed point.
	assert.GreaterOrEqual(t, s.ATHMultiplier, s.CurrentMultiplier)
}

func TestObservePriceIgnoresGarbage(t *testing.T) {
	entry := time.Now().UTC()
	s := NewSignalOutcome("m", "c", "0xabc", 1.0, entry)
	s.ObservePrice(0, entry)
	s.ObservePrice(-1, entry)
	assert.Equal(t, 1.0, s.CurrentMultiplier)
}

func TestDrawdownFromATH(t *testing.T) {
	entry := time.Now().UTC()
	s := NewSignalOutcome("m", "c", "0xabc", 1.0, entry)
	s.ObservePrice(10.0, entry.Add(time.Hour))
	s.ObservePrice(0.9, entry.Add(2*time.Hour))
	assert.InDelta(t, 0.91, s.DrawdownFromATH(), 1e-9)
}

func TestRepTierForScore(t *testing.T) {
	assert.Equal(t, RepTierElite, RepTierForScore(90))
	assert.Equal(t, RepTierExcellent, RepTierForScore(75))
	assert.Equal(t, RepTierGood, RepTierForScore(60))
	assert.Equal(t, RepTierAverage, RepTierForScore(40))
	assert.Equal(t, RepTierPoor, RepTierForScore(20))
	assert.Equal(t, RepTierUnreliable, RepTierForScore(19.9))
}

func TestCheckpointLazyAllocation(t *testing.T) {
	s := &SignalOutcome{} // as if loaded from a truncated file
	cp := s.Checkpoint("24h")
	require.NotNil(t, cp)
	cp.Reached = true
	assert.True(t, s.Checkpoints["24h"].Reached)
}
