package providers

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// Explorer is the keyed block-explorer adapter (Etherscan v2 API shape). It
// contributes symbol and supply data for EVM tokens and serves the dead-token
// detector's on-chain state probes.
type Explorer struct {
	baseURL string
	apiKey  string
	chainID int
	client  *Client
}

// NewExplorer builds the adapter. chainID selects the network on the unified
// v2 endpoint (1 = Ethereum mainnet).
func NewExplorer(baseURL, apiKey string, chainID int, limits *ratelimit.Manager, opts ...ClientOption) *Explorer {
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/v2/api"
	}
	if chainID == 0 {
		chainID = 1
	}
	return &Explorer{
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		client:  NewClient("explorer", limits, opts...),
	}
}

func (e *Explorer) Name() string { return "explorer" }

func (e *Explorer) Supports(chain models.ChainFamily) bool {
	return chain == models.ChainEVM
}

// Client exposes the underlying client for breaker status reporting.
func (e *Explorer) Client() *Client { return e.client }

func (e *Explorer) endpoint(params map[string]string) string {
	q := url.Values{}
	q.Set("chainid", fmt.Sprintf("%d", e.chainID))
	if e.apiKey != "" {
		q.Set("apikey", e.apiKey)
	}
	for k, v := range params {
		q.Set(k, v)
	}
	return e.baseURL + "?" + q.Encode()
}

type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

type explorerListResponse struct {
	Status string           `json:"status"`
	Result []map[string]any `json:"result"`
}

// TokenSupply returns the raw token supply in base units (wei-scale).
func (e *Explorer) TokenSupply(ctx context.Context, address string) (*big.Int, error) {
	var resp explorerResponse
	err := e.client.GetJSON(ctx, e.endpoint(map[string]string{
		"module":          "stats",
		"action":          "tokensupply",
		"contractaddress": address,
	}), &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		return nil, fmt.Errorf("explorer: tokensupply for %s: %s", address, resp.Message)
	}
	supply, ok := new(big.Int).SetString(resp.Result, 10)
	if !ok {
		return nil, fmt.Errorf("explorer: unparseable supply %q", resp.Result)
	}
	return supply, nil
}

// TransferCount returns how many token transfer events the explorer has
// indexed for the contract, capped at one page.
func (e *Explorer) TransferCount(ctx context.Context, address string) (int, error) {
	var resp explorerListResponse
	err := e.client.GetJSON(ctx, e.endpoint(map[string]string{
		"module":          "account",
		"action":          "tokentx",
		"contractaddress": address,
		"page":            "1",
		"offset":          "100",
		"sort":            "asc",
	}), &resp)
	if err != nil {
		return 0, err
	}
	return len(resp.Result), nil
}

// ContractCreatedAt returns the creation timestamp of the contract when the
// explorer exposes it, or the zero time.
func (e *Explorer) ContractCreatedAt(ctx context.Context, address string) (time.Time, error) {
	var resp explorerListResponse
	err := e.client.GetJSON(ctx, e.endpoint(map[string]string{
		"module":            "contract",
		"action":            "getcontractcreation",
		"contractaddresses": address,
	}), &resp)
	if err != nil {
		return time.Time{}, err
	}
	if len(resp.Result) == 0 {
		return time.Time{}, nil
	}
	if ts, ok := resp.Result[0]["timestamp"].(string); ok {
		if v := parsePrice(ts); v > 0 {
			return unixUTC(int64(v)), nil
		}
	}
	return time.Time{}, nil
}

// Fetch contributes supply-derived fields for EVM tokens. The explorer has no
// USD price, so the engine only consults it during enrichment.
func (e *Explorer) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	supply, err := e.TokenSupply(ctx, q.Address)
	if err != nil {
		return nil, err
	}
	f, _ := new(big.Float).SetInt(supply).Float64()
	pd := &models.PriceData{
		Symbol:      strings.ToUpper(q.Symbol),
		TotalSupply: &f,
		Source:      e.Name(),
	}
	return pd, nil
}
