// Package reputation turns completed signal outcomes into per-channel
// reputation records and per-token cross-channel aggregates. The composite
// score feeds back into queue admission priority.
package reputation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/atomicio"
	"github.com/moonwatch/signalrun/internal/models"
)

// tdAlpha is the temporal-difference learning rate for the expected-ROI
// update.
const tdAlpha = 0.1

// Engine computes and persists channel reputations. Recomputation is
// serialized per engine.
type Engine struct {
	mu       sync.Mutex
	path     string
	tdUpdate bool
	channels map[string]*models.ChannelReputation
}

// NewEngine loads (or creates) the channel reputation store at path. When
// tdUpdate is set, expected ROI is refined with a TD step per newly completed
// outcome instead of staying at its initialization value.
func NewEngine(path string, tdUpdate bool) (*Engine, error) {
	e := &Engine{
		path:     path,
		tdUpdate: tdUpdate,
		channels: make(map[string]*models.ChannelReputation),
	}
	if _, err := atomicio.ReadJSON(path, &e.channels); err != nil {
		return nil, err
	}
	if e.channels == nil {
		e.channels = make(map[string]*models.ChannelReputation)
	}
	return e, nil
}

// Get returns the stored reputation for a channel, if any.
func (e *Engine) Get(channel string) (*models.ChannelReputation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep, ok := e.channels[channel]
	return rep, ok
}

// Score returns the channel's composite score and whether the channel is
// known. Queue priority derives from this.
func (e *Engine) Score(channel string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep, ok := e.channels[channel]
	if !ok {
		return 0, false
	}
	return rep.ReputationScore, true
}

// All returns a snapshot of every stored reputation.
func (e *Engine) All() []*models.ChannelReputation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.ChannelReputation, 0, len(e.channels))
	for _, rep := range e.channels {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelName < out[j].ChannelName })
	return out
}

// Recompute rebuilds the channel's reputation from its full set of completed
// outcomes, stores it, and persists the file.
func (e *Engine) Recompute(channel string, completed []*models.SignalOutcome) (*models.ChannelReputation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.channels[channel]
	rep := e.compute(channel, completed, prev)
	e.channels[channel] = rep

	if err := atomicio.WriteJSONAtomic(e.path, e.channels); err != nil {
		return nil, err
	}
	log.Info().
		Str("channel", channel).
		Int("signals", rep.TotalSignals).
		Float64("score", rep.ReputationScore).
		Str("tier", rep.ReputationTier).
		Msg("reputation recomputed")
	return rep, nil
}

func (e *Engine) compute(channel string, completed []*models.SignalOutcome, prev *models.ChannelReputation) *models.ChannelReputation {
	rep := models.NewChannelReputation(channel)
	rep.LastUpdated = time.Now().UTC()
	if len(completed) == 0 {
		return rep
	}

	sorted := make([]*models.SignalOutcome, len(completed))
	copy(sorted, completed)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EntryTimestamp.Before(sorted[j].EntryTimestamp)
	})

	rois := make([]float64, 0, len(sorted))
	var ttaSum, tta2xSum, confSum, hdrbSum float64
	var tta2xCount int
	for _, o := range sorted {
		rois = append(rois, o.ATHMultiplier)
		switch {
		case o.IsWinner:
			rep.WinningSignals++
		case o.ATHMultiplier < 1.0:
			rep.LosingSignals++
		default:
			rep.NeutralSignals++
		}
		ttaSum += o.DaysToATH
		if o.IsWinner {
			tta2xSum += o.DaysToATH
			tta2xCount++
		}
		confSum += o.Confidence
		hdrbSum += o.HDRBScore

		tp := rep.TierPerformance[o.MarketTier]
		tp.TotalCalls++
		if o.IsWinner {
			tp.WinningCalls++
		}
	}

	n := float64(len(sorted))
	rep.TotalSignals = len(sorted)
	rep.WinRate = float64(rep.WinningSignals) / n * 100
	rep.AverageROI = mean(rois)
	rep.MedianROI = median(rois)
	rep.BestROI = maxOf(rois)
	rep.WorstROI = minOf(rois)
	rep.ROIStdDev = stddev(rois)
	rep.SharpeRatio = sharpe(rois)
	rep.RiskAdjustedROI = rep.AverageROI / (1 + rep.ROIStdDev)
	rep.AvgTimeToATH = ttaSum / n
	if tta2xCount > 0 {
		rep.AvgTimeTo2x = tta2xSum / float64(tta2xCount)
	}
	rep.SpeedScore = clamp(100-(rep.AvgTimeToATH-1)*3.33, 0, 100)
	rep.AvgConfidence = confSum / n
	rep.AvgHDRBScore = hdrbSum / n

	for tier, tp := range rep.TierPerformance {
		if tp.TotalCalls == 0 {
			continue
		}
		var tierROIs []float64
		for _, o := range sorted {
			if o.MarketTier == tier {
				tierROIs = append(tierROIs, o.ATHMultiplier)
			}
		}
		tp.WinRate = float64(tp.WinningCalls) / float64(tp.TotalCalls) * 100
		tp.AvgROI = mean(tierROIs)
		tp.SharpeRatio = sharpe(tierROIs)
	}

	rep.ReputationScore = clamp(
		0.30*rep.WinRate+
			0.25*math.Min(100, (rep.AverageROI-1)*50)+
			0.20*math.Min(100, rep.SharpeRatio*50)+
			0.15*rep.SpeedScore+
			0.10*(rep.AvgConfidence*100),
		0, 100)
	if rep.TotalSignals >= models.MinSignalsForTier {
		rep.ReputationTier = models.RepTierForScore(rep.ReputationScore)
	}

	rep.FirstSignalDate = sorted[0].EntryTimestamp
	rep.LastSignalDate = sorted[len(sorted)-1].EntryTimestamp

	e.applyExpectedROI(rep, prev, sorted)
	return rep
}

// applyExpectedROI initializes expected ROI on the first computation with a
// positive average, then optionally refines it with a TD step for each
// outcome completed since the previous run.
func (e *Engine) applyExpectedROI(rep *models.ChannelReputation, prev *models.ChannelReputation, sorted []*models.SignalOutcome) {
	seen := 0
	if prev != nil {
		rep.ExpectedROI = prev.ExpectedROI
		rep.PredictionErrorHistory = append(rep.PredictionErrorHistory, prev.PredictionErrorHistory...)
		seen = prev.TotalSignals
	}
	if rep.ExpectedROI == 0 && rep.AverageROI > 0 {
		// Initialization consumes the current outcome set; TD steps apply
		// only to completions after this point.
		rep.ExpectedROI = rep.AverageROI
		seen = len(sorted)
	}
	if !e.tdUpdate || seen >= len(sorted) {
		return
	}
	for _, o := range sorted[seen:] {
		err := o.ATHMultiplier - rep.ExpectedROI
		rep.PredictionErrorHistory = append(rep.PredictionErrorHistory, err)
		rep.ExpectedROI += tdAlpha * err
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// sharpe is (avg_roi - 1) / stdev, pinned to 0 below two samples or with zero
// dispersion.
func sharpe(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := stddev(xs)
	if sd == 0 {
		return 0
	}
	return (mean(xs) - 1) / sd
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	best := xs[0]
	for _, x := range xs[1:] {
		if x > best {
			best = x
		}
	}
	return best
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	worst := xs[0]
	for _, x := range xs[1:] {
		if x < worst {
			worst = x
		}
	}
	return worst
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
