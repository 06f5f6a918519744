package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// CoinGecko is the keyed cap/metadata provider: price, market cap, volume,
// symbol, and the only source of all-time-high history.
type CoinGecko struct {
	baseURL string
	client  *Client
}

// NewCoinGecko builds the adapter. An apiKey is attached as the demo-tier
// header when non-empty.
func NewCoinGecko(baseURL, apiKey string, limits *ratelimit.Manager, opts ...ClientOption) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if apiKey != "" {
		opts = append(opts, WithHeaders(map[string]string{"x-cg-demo-api-key": apiKey}))
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewClient("coingecko", limits, opts...),
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Supports(chain models.ChainFamily) bool {
	return chain == models.ChainEVM || chain == models.ChainSolana
}

// Client exposes the underlying client for breaker status reporting.
func (c *CoinGecko) Client() *Client { return c.client }

func geckoPlatform(chain models.ChainFamily) string {
	switch chain {
	case models.ChainSolana:
		return "solana"
	default:
		return "ethereum"
	}
}

type usdField struct {
	USD float64 `json:"usd"`
}

type usdDateField struct {
	USD string `json:"usd"`
}

type geckoContractResponse struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData struct {
		CurrentPrice usdField     `json:"current_price"`
		MarketCap    usdField     `json:"market_cap"`
		TotalVolume  usdField     `json:"total_volume"`
		ATH          usdField     `json:"ath"`
		ATHDate      usdDateField `json:"ath_date"`
		ATHChangePct usdField     `json:"ath_change_percentage"`
	} `json:"market_data"`
}

// Fetch queries the contract endpoint for price, cap, volume and ATH.
func (c *CoinGecko) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	url := fmt.Sprintf("%s/coins/%s/contract/%s", c.baseURL, geckoPlatform(q.Chain), strings.ToLower(q.Address))
	var resp geckoContractResponse
	if err := c.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	md := resp.MarketData
	if md.CurrentPrice.USD <= 0 && resp.Symbol == "" {
		return nil, nil
	}

	pd := &models.PriceData{
		PriceUSD: md.CurrentPrice.USD,
		Symbol:   strings.ToUpper(resp.Symbol),
		Source:   c.Name(),
	}
	if md.MarketCap.USD > 0 {
		pd.MarketCap = floatPtr(md.MarketCap.USD)
	}
	if md.TotalVolume.USD > 0 {
		pd.Volume24h = floatPtr(md.TotalVolume.USD)
	}
	if md.ATH.USD > 0 {
		pd.ATH = floatPtr(md.ATH.USD)
		pd.ATHChangePct = floatPtr(md.ATHChangePct.USD)
		if ts, err := time.Parse(time.RFC3339, md.ATHDate.USD); err == nil {
			utc := ts.UTC()
			pd.ATHDate = &utc
		}
	}
	return pd, nil
}

// FetchATH returns just the ATH fields, used by the enrichment pass when the
// merged record is missing all-time-high data.
func (c *CoinGecko) FetchATH(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	pd, err := c.Fetch(ctx, q)
	if err != nil || pd == nil || pd.ATH == nil {
		return nil, err
	}
	return &models.PriceData{
		ATH:          pd.ATH,
		ATHDate:      pd.ATHDate,
		ATHChangePct: pd.ATHChangePct,
		Source:       c.Name(),
	}, nil
}
