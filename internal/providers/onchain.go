package providers

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/ratelimit"
)

// Function selectors used by the EVM read path.
const (
	selectorSymbol = "0x95d89b41" // symbol()
	selectorToken0 = "0x0dfe1681" // token0()
	selectorToken1 = "0xd21220a7" // token1()
)

// OnChain is the EVM JSON-RPC adapter: symbol() reads as the last-resort
// symbol source, and token0()/token1() reads for Uniswap-V2 pool detection.
type OnChain struct {
	rpcURL string
	client *Client
}

// NewOnChain builds the adapter against the given JSON-RPC endpoint.
func NewOnChain(rpcURL string, limits *ratelimit.Manager, opts ...ClientOption) *OnChain {
	if rpcURL == "" {
		rpcURL = "https://eth.llamarpc.com"
	}
	return &OnChain{
		rpcURL: rpcURL,
		client: NewClient("onchain", limits, opts...),
	}
}

func (o *OnChain) Name() string { return "onchain" }

func (o *OnChain) Supports(chain models.ChainFamily) bool {
	return chain == models.ChainEVM
}

// Client exposes the underlying client for breaker status reporting.
func (o *OnChain) Client() *Client { return o.client }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ethCall performs eth_call with the given selector against the contract and
// returns the raw return data.
func (o *OnChain) ethCall(ctx context.Context, contract, selector string) ([]byte, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []any{
			map[string]string{"to": contract, "data": selector},
			"latest",
		},
		ID: 1,
	}
	var resp rpcResponse
	if err := o.client.PostJSON(ctx, o.rpcURL, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("onchain: eth_call: %s", resp.Error.Message)
	}
	raw := strings.TrimPrefix(resp.Result, "0x")
	if raw == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("onchain: decode return data: %w", err)
	}
	return data, nil
}

// Symbol reads symbol() and decodes either ABI string or bytes32 encodings.
func (o *OnChain) Symbol(ctx context.Context, contract string) (string, error) {
	data, err := o.ethCall(ctx, contract, selectorSymbol)
	if err != nil {
		return "", err
	}
	return decodeSymbolReturn(data), nil
}

// TokenAt reads token0() or token1() (slot 0 or 1) and returns the address
// packed in the 32-byte word, or "" when the call reverts or returns nothing
// address-shaped.
func (o *OnChain) TokenAt(ctx context.Context, contract string, slot int) (string, error) {
	selector := selectorToken0
	if slot == 1 {
		selector = selectorToken1
	}
	data, err := o.ethCall(ctx, contract, selector)
	if err != nil {
		return "", err
	}
	return decodeAddressWord(data), nil
}

// Fetch contributes only the on-chain symbol; it carries no price.
func (o *OnChain) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	sym, err := o.Symbol(ctx, q.Address)
	if err != nil || sym == "" {
		return nil, err
	}
	return &models.PriceData{Symbol: sym, Source: o.Name()}, nil
}

// decodeSymbolReturn handles both ABI-encoded dynamic strings
// (offset + length + data) and legacy bytes32 symbols.
func decodeSymbolReturn(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) >= 96 {
		// Dynamic string: word0 = offset (usually 0x20), word1 = length.
		length := beUint(data[32:64])
		if length > 0 && 64+length <= uint64(len(data)) {
			return sanitizeSymbol(string(data[64 : 64+length]))
		}
	}
	if len(data) == 32 {
		// bytes32: right-padded with zeros.
		return sanitizeSymbol(string(trimZeroes(data)))
	}
	return ""
}

// decodeAddressWord interprets a 32-byte return word as an address. The first
// 12 bytes must be zero for the word to be address-shaped.
func decodeAddressWord(data []byte) string {
	if len(data) != 32 {
		return ""
	}
	for _, b := range data[:12] {
		if b != 0 {
			return ""
		}
	}
	addr := data[12:]
	allZero := true
	for _, b := range addr {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ""
	}
	return "0x" + hex.EncodeToString(addr)
}

func beUint(word []byte) uint64 {
	var v uint64
	for _, b := range word[len(word)-8:] {
		v = v<<8 | uint64(b)
	}
	return v
}

func trimZeroes(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}

func sanitizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return ""
		}
	}
	return strings.ToUpper(s)
}
