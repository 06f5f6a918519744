package reputation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwatch/signalrun/internal/models"
)

func completedSignal(channel, address string, num int, athMult float64, tier models.MarketTier, daysToATH float64) *models.SignalOutcome {
	entry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(num) * 24 * time.Hour)
	o := models.NewSignalOutcome("m"+address+"-"+channel, channel, address, 1.0, entry)
	o.ATHMultiplier = athMult
	o.ATHPrice = athMult
	o.DaysToATH = daysToATH
	o.MarketTier = tier
	o.IsWinner = athMult >= models.WinnerThreshold(tier)
	o.IsComplete = true
	o.Status = models.StatusCompleted
	o.Confidence = 0.6
	o.HDRBScore = 40
	return o
}

func newTestEngine(t *testing.T, tdUpdate bool) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "channels.json"), tdUpdate)
	require.NoError(t, err)
	return e
}

func TestTierBoundaryTenSignals(t *testing.T) {
	mults := []float64{3.25, 0.93, 2.15, 4.50, 0.75, 2.80, 1.50, 3.10, 0.85, 2.40}
	outcomes := make([]*models.SignalOutcome, len(mults))
	for i, m := range mults {
		outcomes[i] = completedSignal("alpha", "0xabc", i, m, models.TierSmall, 3.0)
	}

	e := newTestEngine(t, false)
	rep, err := e.Recompute("alpha", outcomes)
	require.NoError(t, err)

	assert.Equal(t, 10, rep.TotalSignals)
	assert.Equal(t, 6, rep.WinningSignals)
	assert.InDelta(t, 60.0, rep.WinRate, 1e-9)
	assert.InDelta(t, 2.223, rep.AverageROI, 1e-9)
	assert.Contains(t, []string{models.RepTierGood, models.RepTierAverage}, rep.ReputationTier)
	assert.Greater(t, rep.SharpeRatio, 0.0)
	assert.InDelta(t, 100-(3.0-1)*3.33, rep.SpeedScore, 1e-9)

	tp := rep.TierPerformance[models.TierSmall]
	assert.Equal(t, 10, tp.TotalCalls)
	assert.Equal(t, 6, tp.WinningCalls)
}

func TestFewerThanTenSignalsStaysUnproven(t *testing.T) {
	e := newTestEngine(t, false)
	outcomes := []*models.SignalOutcome{
		completedSignal("beta", "0x1", 0, 5.0, models.TierMicro, 2),
		completedSignal("beta", "0x2", 1, 4.0, models.TierMicro, 2),
		completedSignal("beta", "0x3", 2, 6.0, models.TierMicro, 2),
	}
	rep, err := e.Recompute("beta", outcomes)
	require.NoError(t, err)
	assert.Equal(t, models.RepTierUnproven, rep.ReputationTier)
	assert.Greater(t, rep.ReputationScore, 0.0, "score is still computed, only the tier is floored")
}

func TestSharpeZeroBelowTwoOutcomes(t *testing.T) {
	e := newTestEngine(t, false)
	rep, err := e.Recompute("gamma", []*models.SignalOutcome{
		completedSignal("gamma", "0x1", 0, 3.0, models.TierMicro, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.SharpeRatio)
	assert.Equal(t, 0.0, rep.ROIStdDev)
}

func TestExpectedROIInitialization(t *testing.T) {
	e := newTestEngine(t, false)
	outcomes := []*models.SignalOutcome{
		completedSignal("delta", "0x1", 0, 2.0, models.TierMicro, 2),
		completedSignal("delta", "0x2", 1, 4.0, models.TierMicro, 2),
	}
	rep, err := e.Recompute("delta", outcomes)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, rep.ExpectedROI, 1e-9)
	assert.Empty(t, rep.PredictionErrorHistory, "TD disabled: no error history")

	// Recompute keeps the initialized value rather than re-deriving it.
	outcomes = append(outcomes, completedSignal("delta", "0x3", 2, 10.0, models.TierMicro, 2))
	rep, err = e.Recompute("delta", outcomes)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, rep.ExpectedROI, 1e-9)
}

func TestExpectedROITemporalDifferenceUpdate(t *testing.T) {
	e := newTestEngine(t, true)
	outcomes := []*models.SignalOutcome{
		completedSignal("delta", "0x1", 0, 2.0, models.TierMicro, 2),
		completedSignal("delta", "0x2", 1, 4.0, models.TierMicro, 2),
	}
	rep, err := e.Recompute("delta", outcomes)
	require.NoError(t, err)
	first := rep.ExpectedROI

	outcomes = append(outcomes, completedSignal("delta", "0x3", 2, 10.0, models.TierMicro, 2))
	rep, err = e.Recompute("delta", outcomes)
	require.NoError(t, err)
	// expected += 0.1 * (10 - expected)
	assert.InDelta(t, first+0.1*(10.0-first), rep.ExpectedROI, 1e-9)
	assert.Len(t, rep.PredictionErrorHistory, 1)
}

func TestEngineSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	e, err := NewEngine(path, false)
	require.NoError(t, err)

	_, err = e.Recompute("alpha", []*models.SignalOutcome{
		completedSignal("alpha", "0x1", 0, 3.0, models.TierMicro, 2),
		completedSignal("alpha", "0x2", 1, 2.5, models.TierMicro, 2),
	})
	require.NoError(t, err)

	reloaded, err := NewEngine(path, false)
	require.NoError(t, err)
	rep, ok := reloaded.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, 2, rep.TotalSignals)

	score, ok := reloaded.Score("alpha")
	assert.True(t, ok)
	assert.Greater(t, score, 0.0)
}

func TestCrossChannelRebuild(t *testing.T) {
	cc, err := NewCrossChannel(filepath.Join(t.TempDir(), "coins_cross_channel.json"))
	require.NoError(t, err)

	completed := []*models.SignalOutcome{
		completedSignal("alpha", "0xtoken", 0, 3.0, models.TierMicro, 2),
		completedSignal("alpha", "0xtoken", 1, 2.0, models.TierMicro, 2),
		completedSignal("beta", "0xtoken", 2, 0.5, models.TierMicro, 2),
	}
	require.NoError(t, cc.Rebuild(completed))

	coin, ok := cc.Get("0xtoken")
	require.True(t, ok)
	assert.Equal(t, 3, coin.TotalMentions)
	assert.Len(t, coin.Channels, 2)

	alpha := coin.Channels["alpha"]
	assert.Equal(t, 2, alpha.Mentions)
	assert.InDelta(t, 2.5, alpha.AvgROI, 1e-9)
	assert.InDelta(t, 100.0, alpha.WinRate, 1e-9)

	// Mention-weighted: (2.5*2 + 0.5*1) / 3.
	assert.InDelta(t, 5.5/3, coin.AvgROI, 1e-9)
	assert.Equal(t, "alpha", coin.BestChannel)
	assert.Equal(t, "beta", coin.WorstChannel)
	assert.InDelta(t, 3.0, coin.BestROI, 1e-9)
	assert.InDelta(t, 0.5, coin.WorstROI, 1e-9)
	assert.Greater(t, coin.ConsensusStrength, 0.0)
	assert.Less(t, coin.ConsensusStrength, 1.0)
}

func TestConsensusZeroWhenMeanNonPositive(t *testing.T) {
	assert.Equal(t, 0.0, consensus([]float64{0, 0}))
	assert.Equal(t, 0.0, consensus(nil))
}
