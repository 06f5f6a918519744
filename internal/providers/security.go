package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// SecurityProvider is the keyless token-security/metadata source (GoPlus API
// shape): symbol, holder count, supply and LP liquidity for EVM tokens.
type SecurityProvider struct {
	baseURL string
	chainID string
	client  *Client
}

// NewSecurityProvider builds the adapter. chainID is the EVM network id as a
// string ("1" = Ethereum mainnet).
func NewSecurityProvider(baseURL, chainID string, limits *ratelimit.Manager, opts ...ClientOption) *SecurityProvider {
	if baseURL == "" {
		baseURL = "https://api.gopluslabs.io/api/v1"
	}
	if chainID == "" {
		chainID = "1"
	}
	return &SecurityProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: chainID,
		client:  NewClient("security", limits, opts...),
	}
}

func (s *SecurityProvider) Name() string { return "security" }

func (s *SecurityProvider) Supports(chain models.ChainFamily) bool {
	return chain == models.ChainEVM
}

// Client exposes the underlying client for breaker status reporting.
func (s *SecurityProvider) Client() *Client { return s.client }

type securityTokenInfo struct {
	TokenSymbol string `json:"token_symbol"`
	HolderCount string `json:"holder_count"`
	TotalSupply string `json:"total_supply"`
	DexInfo     []struct {
		Liquidity string `json:"liquidity"`
	} `json:"dex"`
}

type securityResponse struct {
	Code   int                          `json:"code"`
	Result map[string]securityTokenInfo `json:"result"`
}

// Fetch contributes symbol, holders, supply and summed DEX liquidity.
func (s *SecurityProvider) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	addr := strings.ToLower(q.Address)
	url := fmt.Sprintf("%s/token_security/%s?contract_addresses=%s", s.baseURL, s.chainID, addr)
	var resp securityResponse
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	info, ok := resp.Result[addr]
	if !ok {
		return nil, nil
	}

	pd := &models.PriceData{
		Symbol: strings.ToUpper(info.TokenSymbol),
		Source: s.Name(),
	}
	if v := parsePrice(info.TotalSupply); v > 0 {
		pd.TotalSupply = floatPtr(v)
	}
	if v := parsePrice(info.HolderCount); v > 0 {
		pd.Holders = intPtr(int(v))
	}
	var liq float64
	for _, d := range info.DexInfo {
		liq += parsePrice(d.Liquidity)
	}
	if liq > 0 {
		pd.LiquidityUSD = &liq
	}
	if pd.Symbol == "" && pd.TotalSupply == nil && pd.Holders == nil && pd.LiquidityUSD == nil {
		return nil, nil
	}
	return pd, nil
}
