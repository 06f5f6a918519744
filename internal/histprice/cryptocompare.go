// Package histprice resolves point-in-time entry prices and forward OHLC
// windows with ATH extraction, caching results on disk. It also owns smart
// checkpoint backfilling for aged messages.
package histprice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/providers"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// CryptoCompare is the keyed daily-candle provider, the primary OHLC source.
type CryptoCompare struct {
	baseURL string
	client  *providers.Client
}

// NewCryptoCompare builds the adapter. An apiKey is attached as the authorization
// header when non-empty.
func NewCryptoCompare(baseURL, apiKey string, limits *ratelimit.Manager, opts ...providers.ClientOption) *CryptoCompare {
	if baseURL == "" {
		baseURL = "https://min-api.cryptocompare.com"
	}
	if apiKey != "" {
		opts = append(opts, providers.WithHeaders(map[string]string{
			"authorization": "Apikey " + apiKey,
		}))
	}
	return &CryptoCompare{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  providers.NewClient("cryptocompare", limits, opts...),
	}
}

// Client exposes the underlying client for breaker status reporting.
func (c *CryptoCompare) Client() *providers.Client { return c.client }

type histoDayResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time     int64   `json:"time"`
			Open     float64 `json:"open"`
			High     float64 `json:"high"`
			Low      float64 `json:"low"`
			Close    float64 `json:"close"`
			VolumeTo float64 `json:"volumeto"`
		} `json:"Data"`
	} `json:"Data"`
}

// DailyCandles fetches up to `days` daily bars ending at toTs.
func (c *CryptoCompare) DailyCandles(ctx context.Context, symbol string, toTs time.Time, days int) ([]models.Candle, error) {
	if symbol == "" {
		return nil, fmt.Errorf("cryptocompare: empty symbol")
	}
	url := fmt.Sprintf("%s/data/v2/histoday?fsym=%s&tsym=USD&limit=%d&toTs=%d",
		c.baseURL, strings.ToUpper(symbol), days, toTs.Unix())

	var resp histoDayResponse
	if err := c.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Response != "" && resp.Response != "Success" {
		return nil, fmt.Errorf("cryptocompare: %s", resp.Message)
	}

	candles := make([]models.Candle, 0, len(resp.Data.Data))
	for _, d := range resp.Data.Data {
		vol := d.VolumeTo
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(d.Time, 0).UTC(),
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    &vol,
		})
	}
	return candles, nil
}
