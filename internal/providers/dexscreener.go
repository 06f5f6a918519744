package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// DexScreener is the primary keyless DEX aggregator: price, symbol, market
// cap, volume, liquidity and pair creation time in one call. It also serves
// the pair endpoint used by the address resolver.
type DexScreener struct {
	baseURL string
	client  *Client
}

// NewDexScreener builds the adapter. baseURL defaults to the public API.
func NewDexScreener(baseURL string, limits *ratelimit.Manager, opts ...ClientOption) *DexScreener {
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com/latest/dex"
	}
	return &DexScreener{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewClient("dexscreener", limits, opts...),
	}
}

func (d *DexScreener) Name() string { return "dexscreener" }

func (d *DexScreener) Supports(chain models.ChainFamily) bool {
	return chain == models.ChainEVM || chain == models.ChainSolana
}

// Client exposes the underlying client for breaker status reporting.
func (d *DexScreener) Client() *Client { return d.client }

type dexPair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	PriceUSD  string `json:"priceUsd"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // unix millis
	PairAddress   string  `json:"pairAddress"`
}

type dexTokenResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPairResponse struct {
	Pair  *dexPair  `json:"pair"`
	Pairs []dexPair `json:"pairs"`
}

func dexChainID(chain models.ChainFamily) string {
	switch chain {
	case models.ChainSolana:
		return "solana"
	default:
		return "ethereum"
	}
}

// Fetch queries the tokens endpoint and folds the deepest pair into PriceData.
func (d *DexScreener) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	url := fmt.Sprintf("%s/tokens/%s/%s", d.baseURL, dexChainID(q.Chain), q.Address)
	var resp dexTokenResponse
	if err := d.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Pairs) == 0 {
		return nil, nil
	}

	best := resp.Pairs[0]
	for _, p := range resp.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	price := parsePrice(best.PriceUSD)
	if price <= 0 {
		return nil, nil
	}

	pd := &models.PriceData{
		PriceUSD: price,
		Symbol:   strings.ToUpper(best.BaseToken.Symbol),
		Source:   d.Name(),
	}
	if best.MarketCap > 0 {
		mc := best.MarketCap
		pd.MarketCap = &mc
	} else if best.FDV > 0 {
		fdv := best.FDV
		pd.MarketCap = &fdv
	}
	if best.Volume.H24 > 0 {
		v := best.Volume.H24
		pd.Volume24h = &v
	}
	pc := best.PriceChange.H24
	pd.PriceChange24h = &pc
	if best.Liquidity.USD > 0 {
		l := best.Liquidity.USD
		pd.LiquidityUSD = &l
	}
	if best.PairCreatedAt > 0 {
		created := time.UnixMilli(best.PairCreatedAt).UTC()
		pd.PairCreatedAt = &created
	}
	return pd, nil
}

// PairInfo is the resolver-facing view of the pairs endpoint.
type PairInfo struct {
	IsPair           bool
	BaseTokenAddress string
	BaseTokenSymbol  string
	DexID            string
}

// LookupPair asks whether address is a liquidity pair contract and, if so,
// which base token backs it.
func (d *DexScreener) LookupPair(ctx context.Context, chain models.ChainFamily, address string) (*PairInfo, error) {
	url := fmt.Sprintf("%s/pairs/%s/%s", d.baseURL, dexChainID(chain), address)
	var resp dexPairResponse
	if err := d.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	pair := resp.Pair
	if pair == nil && len(resp.Pairs) > 0 {
		pair = &resp.Pairs[0]
	}
	if pair == nil || pair.BaseToken.Address == "" {
		return &PairInfo{IsPair: false}, nil
	}
	// The pairs endpoint echoes back whatever address you give it inside the
	// matching pair; only treat it as a pair when the pair address itself
	// matches the query.
	if !strings.EqualFold(pair.PairAddress, address) {
		return &PairInfo{IsPair: false}, nil
	}
	return &PairInfo{
		IsPair:           true,
		BaseTokenAddress: pair.BaseToken.Address,
		BaseTokenSymbol:  strings.ToUpper(pair.BaseToken.Symbol),
		DexID:            pair.DexID,
	}, nil
}
