package reputation

import (
	"math"
	"sync"
	"time"

	"github.com/moonwatch/signalrun/internal/atomicio"
	"github.com/moonwatch/signalrun/internal/models"
)

// CrossChannel maintains the per-token view of how every channel has
// performed on it, persisted as one JSON map keyed by address.
type CrossChannel struct {
	mu    sync.Mutex
	path  string
	coins map[string]*models.CoinCrossChannel
}

// NewCrossChannel loads (or creates) the cross-channel store at path.
func NewCrossChannel(path string) (*CrossChannel, error) {
	c := &CrossChannel{
		path:  path,
		coins: make(map[string]*models.CoinCrossChannel),
	}
	if _, err := atomicio.ReadJSON(path, &c.coins); err != nil {
		return nil, err
	}
	if c.coins == nil {
		c.coins = make(map[string]*models.CoinCrossChannel)
	}
	return c, nil
}

// Get returns the record for one token address.
func (c *CrossChannel) Get(address string) (*models.CoinCrossChannel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coin, ok := c.coins[address]
	return coin, ok
}

// All returns a snapshot of every coin record.
func (c *CrossChannel) All() []*models.CoinCrossChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.CoinCrossChannel, 0, len(c.coins))
	for _, coin := range c.coins {
		out = append(out, coin)
	}
	return out
}

// Rebuild recomputes every coin record from the full completed-outcome set
// and persists the store.
func (c *CrossChannel) Rebuild(completed []*models.SignalOutcome) error {
	byAddress := make(map[string][]*models.SignalOutcome)
	for _, o := range completed {
		if o.Address == "" {
			continue
		}
		byAddress[o.Address] = append(byAddress[o.Address], o)
	}

	coins := make(map[string]*models.CoinCrossChannel, len(byAddress))
	for addr, outcomes := range byAddress {
		coins[addr] = buildCoin(addr, outcomes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.coins = coins
	return atomicio.WriteJSONAtomic(c.path, c.coins)
}

func buildCoin(address string, outcomes []*models.SignalOutcome) *models.CoinCrossChannel {
	coin := &models.CoinCrossChannel{
		Address:     address,
		Channels:    make(map[string]*models.ChannelCoinStats),
		LastUpdated: time.Now().UTC(),
	}

	byChannel := make(map[string][]*models.SignalOutcome)
	for _, o := range outcomes {
		byChannel[o.ChannelName] = append(byChannel[o.ChannelName], o)
		if coin.Symbol == "" {
			coin.Symbol = o.Symbol
		}
	}

	for channel, sigs := range byChannel {
		stats := &models.ChannelCoinStats{ChannelName: channel, Mentions: len(sigs)}
		var roiSum float64
		var winners int
		stats.BestROI = sigs[0].ATHMultiplier
		stats.WorstROI = sigs[0].ATHMultiplier
		for _, o := range sigs {
			roiSum += o.ATHMultiplier
			if o.ATHMultiplier > stats.BestROI {
				stats.BestROI = o.ATHMultiplier
			}
			if o.ATHMultiplier < stats.WorstROI {
				stats.WorstROI = o.ATHMultiplier
			}
			if o.IsWinner {
				winners++
			}
			if o.EntryTimestamp.After(stats.LastMentioned) {
				stats.LastMentioned = o.EntryTimestamp
			}
		}
		stats.AvgROI = roiSum / float64(len(sigs))
		stats.WinRate = float64(winners) / float64(len(sigs)) * 100
		coin.Channels[channel] = stats
	}

	// Coin aggregates are mention-weighted over channel averages.
	var weightedSum float64
	var channelAvgs []float64
	first := true
	for channel, stats := range coin.Channels {
		coin.TotalMentions += stats.Mentions
		weightedSum += stats.AvgROI * float64(stats.Mentions)
		channelAvgs = append(channelAvgs, stats.AvgROI)
		if first || stats.BestROI > coin.BestROI {
			coin.BestROI = stats.BestROI
		}
		if first || stats.WorstROI < coin.WorstROI {
			coin.WorstROI = stats.WorstROI
		}
		if first || stats.AvgROI > coin.Channels[coin.BestChannel].AvgROI {
			coin.BestChannel = channel
		}
		if first || stats.AvgROI < coin.Channels[coin.WorstChannel].AvgROI {
			coin.WorstChannel = channel
		}
		first = false
	}
	if coin.TotalMentions > 0 {
		coin.AvgROI = weightedSum / float64(coin.TotalMentions)
	}
	coin.ConsensusStrength = consensus(channelAvgs)
	return coin
}

// consensus is max(0, 1 - std/mean) over the per-channel average ROIs, zero
// when the mean is not positive.
func consensus(avgs []float64) float64 {
	m := mean(avgs)
	if m <= 0 {
		return 0
	}
	sd := stddev(avgs)
	return math.Max(0, 1-sd/m)
}
