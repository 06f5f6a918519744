package providers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
)

// Engine is the multi-source price fan-out. The primary provider is asked
// first; when it returns an incomplete record the secondaries are queried in
// parallel and merged in preference order. Fields are never overwritten once
// set and Source accumulates every contributor joined by "+".
type Engine struct {
	primary  Provider
	fanout   []Provider // parallel secondaries, in merge-preference order
	explorer *Explorer
	security *SecurityProvider
	onchain  *OnChain
	gecko    *CoinGecko
}

// EngineDeps wires the adapters into the engine. Any nil adapter is skipped
// at its step.
type EngineDeps struct {
	DexScreener *DexScreener
	CoinGecko   *CoinGecko
	DefiLlama   *DefiLlama
	Explorer    *Explorer
	Security    *SecurityProvider
	OnChain     *OnChain
}

// NewEngine assembles the canonical provider order: DEX aggregator primary,
// then cap/metadata provider, then the keyless meta-aggregator in the fan-out.
func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		explorer: deps.Explorer,
		security: deps.Security,
		onchain:  deps.OnChain,
		gecko:    deps.CoinGecko,
	}
	if deps.DexScreener != nil {
		e.primary = deps.DexScreener
	}
	if deps.CoinGecko != nil {
		e.fanout = append(e.fanout, deps.CoinGecko)
	}
	if deps.DefiLlama != nil {
		e.fanout = append(e.fanout, deps.DefiLlama)
	}
	return e
}

// BreakerStates reports each wired adapter's circuit breaker state for the
// monitor's /status endpoint.
func (e *Engine) BreakerStates() map[string]string {
	states := make(map[string]string)
	add := func(p Provider) {
		if p == nil {
			return
		}
		if c, ok := p.(interface{ Client() *Client }); ok {
			states[p.Name()] = c.Client().BreakerState()
		}
	}
	add(e.primary)
	for _, p := range e.fanout {
		add(p)
	}
	if e.explorer != nil {
		add(e.explorer)
	}
	if e.security != nil {
		add(e.security)
	}
	if e.onchain != nil {
		add(e.onchain)
	}
	return states
}

// GetPrice returns a best-effort merged record, or nil when every provider
// failed or returned nothing. Per-provider errors never propagate.
func (e *Engine) GetPrice(ctx context.Context, address string, chain models.ChainFamily) *models.PriceData {
	q := TokenQuery{Address: address, Chain: chain}

	merged := e.tryFetch(ctx, e.primary, q)
	if isComplete(merged) {
		finalize(merged)
		return merged
	}

	for _, pd := range e.fanoutFetch(ctx, q) {
		merged = merge(merged, pd)
	}

	merged = e.enrich(ctx, q, merged)

	if merged == nil || merged.PriceUSD <= 0 {
		return nil
	}
	finalize(merged)
	return merged
}

// enrich fills still-missing fields from the slower sources: explorer for
// EVM market data, on-chain symbol() read, the security provider, and finally
// the cap/metadata provider's ATH history.
func (e *Engine) enrich(ctx context.Context, q TokenQuery, merged *models.PriceData) *models.PriceData {
	if merged != nil && merged.Symbol != "" {
		q.Symbol = merged.Symbol
	}

	if missingCore(merged) && e.explorer != nil && e.explorer.Supports(q.Chain) {
		merged = merge(merged, e.tryFetch(ctx, e.explorer, q))
	}

	if (merged == nil || merged.Symbol == "") && e.onchain != nil && e.onchain.Supports(q.Chain) {
		merged = merge(merged, e.tryFetch(ctx, e.onchain, q))
	}

	if missingCore(merged) && e.security != nil && e.security.Supports(q.Chain) {
		merged = merge(merged, e.tryFetch(ctx, e.security, q))
	}

	if merged != nil && merged.ATH == nil && e.gecko != nil && e.gecko.Supports(q.Chain) {
		ath, err := e.gecko.FetchATH(ctx, q)
		if err != nil {
			logProviderErr(e.gecko.Name(), err)
		} else {
			merged = merge(merged, ath)
		}
	}
	return merged
}

func (e *Engine) tryFetch(ctx context.Context, p Provider, q TokenQuery) *models.PriceData {
	if p == nil || !p.Supports(q.Chain) {
		return nil
	}
	pd, err := p.Fetch(ctx, q)
	if err != nil {
		logProviderErr(p.Name(), err)
		return nil
	}
	return pd
}

// fanoutFetch queries the secondaries in parallel, returning results in the
// configured preference order so merging stays deterministic.
func (e *Engine) fanoutFetch(ctx context.Context, q TokenQuery) []*models.PriceData {
	results := make([]*models.PriceData, len(e.fanout))
	var wg sync.WaitGroup
	for i, p := range e.fanout {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			results[i] = e.tryFetch(ctx, p, q)
		}(i, p)
	}
	wg.Wait()
	return results
}

func logProviderErr(name string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Debug().Str("provider", name).Err(err).Msg("provider fetch failed")
}

// isComplete reports whether a record needs no further providers.
func isComplete(pd *models.PriceData) bool {
	return pd != nil && pd.PriceUSD > 0 && pd.Symbol != "" &&
		pd.MarketCap != nil && pd.Volume24h != nil
}

// missingCore reports whether any of symbol / market cap / volume is absent.
func missingCore(pd *models.PriceData) bool {
	return pd == nil || pd.Symbol == "" || pd.MarketCap == nil || pd.Volume24h == nil
}

// merge folds src into dst without overwriting populated fields.
func merge(dst, src *models.PriceData) *models.PriceData {
	if src == nil {
		return dst
	}
	if dst == nil {
		cp := *src
		return &cp
	}

	if dst.PriceUSD <= 0 && src.PriceUSD > 0 {
		dst.PriceUSD = src.PriceUSD
	}
	if dst.Symbol == "" {
		dst.Symbol = src.Symbol
	}
	if dst.MarketCap == nil {
		dst.MarketCap = src.MarketCap
	}
	if dst.Volume24h == nil {
		dst.Volume24h = src.Volume24h
	}
	if dst.PriceChange24h == nil {
		dst.PriceChange24h = src.PriceChange24h
	}
	if dst.LiquidityUSD == nil {
		dst.LiquidityUSD = src.LiquidityUSD
	}
	if dst.PairCreatedAt == nil {
		dst.PairCreatedAt = src.PairCreatedAt
	}
	if dst.ATH == nil {
		dst.ATH = src.ATH
		dst.ATHDate = src.ATHDate
		dst.ATHChangePct = src.ATHChangePct
	}
	if dst.TotalSupply == nil {
		dst.TotalSupply = src.TotalSupply
	}
	if dst.Holders == nil {
		dst.Holders = src.Holders
	}
	if src.Source != "" && !strings.Contains("+"+dst.Source+"+", "+"+src.Source+"+") {
		if dst.Source == "" {
			dst.Source = src.Source
		} else {
			dst.Source = dst.Source + "+" + src.Source
		}
	}
	return dst
}

// finalize derives completeness, market tier, liquidity/volume ratios and the
// coarse risk classification on the merged record.
func finalize(pd *models.PriceData) {
	if pd == nil {
		return
	}

	fields := 0
	present := 0
	check := func(ok bool) {
		fields++
		if ok {
			present++
		}
	}
	check(pd.PriceUSD > 0)
	check(pd.Symbol != "")
	check(pd.MarketCap != nil)
	check(pd.Volume24h != nil)
	check(pd.LiquidityUSD != nil)
	check(pd.ATH != nil)
	pd.DataCompleteness = float64(present) / float64(fields)

	pd.MarketTier = models.TierForMarketCap(pd.MarketCap)

	if pd.MarketCap != nil && *pd.MarketCap > 0 {
		if pd.LiquidityUSD != nil {
			pd.LiquidityRatio = floatPtr(*pd.LiquidityUSD / *pd.MarketCap)
		}
		if pd.Volume24h != nil {
			pd.VolumeRatio = floatPtr(*pd.Volume24h / *pd.MarketCap)
		}
	}

	pd.RiskScore, pd.RiskLevel = riskOf(pd)
}

// riskOf scores 0-100 (higher = riskier) from tier, completeness and
// liquidity depth.
func riskOf(pd *models.PriceData) (float64, string) {
	score := 50.0
	switch pd.MarketTier {
	case models.TierLarge:
		score -= 30
	case models.TierMid:
		score -= 15
	case models.TierSmall:
		score += 5
	case models.TierMicro:
		score += 20
	}
	if pd.LiquidityRatio != nil && *pd.LiquidityRatio >= 0.05 {
		score -= 10
	}
	if pd.DataCompleteness < 0.5 {
		score += 15
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	level := "medium"
	switch {
	case score >= 70:
		level = "high"
	case score < 40:
		level = "low"
	}
	return score, level
}
