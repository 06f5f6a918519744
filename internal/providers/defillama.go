package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// DefiLlama is the keyless DeFi meta-aggregator: spot price and symbol for
// almost any chain:address pair, plus the historical endpoints consumed by
// the historical price service.
type DefiLlama struct {
	baseURL string
	client  *Client
}

// NewDefiLlama builds the adapter against coins.llama.fi by default.
func NewDefiLlama(baseURL string, limits *ratelimit.Manager, opts ...ClientOption) *DefiLlama {
	if baseURL == "" {
		baseURL = "https://coins.llama.fi"
	}
	return &DefiLlama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewClient("defillama", limits, opts...),
	}
}

func (l *DefiLlama) Name() string { return "defillama" }

func (l *DefiLlama) Supports(chain models.ChainFamily) bool {
	return chain == models.ChainEVM || chain == models.ChainSolana
}

// Client exposes the underlying client for breaker status reporting.
func (l *DefiLlama) Client() *Client { return l.client }

func llamaKey(chain models.ChainFamily, address string) string {
	switch chain {
	case models.ChainSolana:
		return "solana:" + address
	default:
		return "ethereum:" + strings.ToLower(address)
	}
}

type llamaCoin struct {
	Price      float64 `json:"price"`
	Symbol     string  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

type llamaPricesResponse struct {
	Coins map[string]llamaCoin `json:"coins"`
}

// Fetch returns the current spot price and symbol.
func (l *DefiLlama) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	key := llamaKey(q.Chain, q.Address)
	url := fmt.Sprintf("%s/prices/current/%s", l.baseURL, key)
	var resp llamaPricesResponse
	if err := l.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	coin, ok := resp.Coins[key]
	if !ok || coin.Price <= 0 {
		return nil, nil
	}
	return &models.PriceData{
		PriceUSD: coin.Price,
		Symbol:   strings.ToUpper(coin.Symbol),
		Source:   l.Name(),
	}, nil
}

// PriceAt returns the historical spot price nearest the given unix timestamp,
// or 0 when unknown.
func (l *DefiLlama) PriceAt(ctx context.Context, chain models.ChainFamily, address string, unixTS int64) (float64, string, error) {
	key := llamaKey(chain, address)
	url := fmt.Sprintf("%s/prices/historical/%d/%s", l.baseURL, unixTS, key)
	var resp llamaPricesResponse
	if err := l.client.GetJSON(ctx, url, &resp); err != nil {
		return 0, "", err
	}
	coin, ok := resp.Coins[key]
	if !ok {
		return 0, "", nil
	}
	return coin.Price, strings.ToUpper(coin.Symbol), nil
}

type llamaChartPoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

type llamaChartResponse struct {
	Coins map[string]struct {
		Symbol string            `json:"symbol"`
		Prices []llamaChartPoint `json:"prices"`
	} `json:"coins"`
}

// Chart returns daily price points for [start, start+spanDays]. DefiLlama has
// no OHLC, so each point becomes a flat candle; good enough as the free
// last-resort source for window ATH extraction.
func (l *DefiLlama) Chart(ctx context.Context, chain models.ChainFamily, address string, startUnix int64, spanDays int) ([]models.Candle, string, error) {
	key := llamaKey(chain, address)
	url := fmt.Sprintf("%s/chart/%s?start=%d&span=%d&period=1d", l.baseURL, key, startUnix, spanDays)
	var resp llamaChartResponse
	if err := l.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, "", err
	}

	coin, ok := resp.Coins[key]
	if !ok || len(coin.Prices) == 0 {
		return nil, "", nil
	}

	candles := make([]models.Candle, 0, len(coin.Prices))
	for _, p := range coin.Prices {
		candles = append(candles, models.Candle{
			Timestamp: unixUTC(p.Timestamp),
			Open:      p.Price,
			High:      p.Price,
			Low:       p.Price,
			Close:     p.Price,
		})
	}
	return candles, strings.ToUpper(coin.Symbol), nil
}
