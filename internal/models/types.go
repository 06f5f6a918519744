package models

import (
	"time"
)

// ChainFamily classifies which address family a mention belongs to.
type ChainFamily string

const (
	ChainEVM     ChainFamily = "evm"
	ChainSolana  ChainFamily = "solana"
	ChainUnknown ChainFamily = "unknown"
)

// Address is a detected on-chain address mention. Detection only shape-checks;
// Valid means the candidate passed the family's structural validation, not
// that the contract exists.
type Address struct {
	Raw           string      `json:"raw"`
	Family        ChainFamily `json:"family"`
	Valid         bool        `json:"valid"`
	Ticker        string      `json:"ticker,omitempty"`
	ChainSpecific string      `json:"chain_specific,omitempty"`
	IsPool        bool        `json:"is_pool"`
	ResolvedFrom  string      `json:"resolved_from,omitempty"`
}

// MarketTier buckets tokens by market capitalization.
type MarketTier string

const (
	TierMicro MarketTier = "micro" // < $10M
	TierSmall MarketTier = "small" // $10M - $100M
	TierMid   MarketTier = "mid"   // $100M - $1B
	TierLarge MarketTier = "large" // > $1B
)

// AllTiers in ascending cap order.
var AllTiers = []MarketTier{TierMicro, TierSmall, TierMid, TierLarge}

// TierForMarketCap maps a USD market cap onto a tier. Unknown caps default to micro.
func TierForMarketCap(marketCap *float64) MarketTier {
	if marketCap == nil {
		return TierMicro
	}
	switch {
	case *marketCap >= 1_000_000_000:
		return TierLarge
	case *marketCap >= 100_000_000:
		return TierMid
	case *marketCap >= 10_000_000:
		return TierSmall
	default:
		return TierMicro
	}
}

// WinnerThreshold returns the tier-aware ATH multiplier a signal must reach
// to be classified a winner. Large caps move less, so the bar is lower.
func WinnerThreshold(tier MarketTier) float64 {
	switch tier {
	case TierLarge:
		return 1.2
	case TierMid:
		return 1.5
	default:
		return 2.0
	}
}

// PriceData is the merged best-effort view of a token assembled by the price
// engine. Optional fields are pointers: nil means no provider supplied the
// field, which is distinct from an observed zero.
type PriceData struct {
	PriceUSD         float64    `json:"price_usd"`
	Symbol           string     `json:"symbol,omitempty"`
	MarketCap        *float64   `json:"market_cap,omitempty"`
	Volume24h        *float64   `json:"volume_24h,omitempty"`
	PriceChange24h   *float64   `json:"price_change_24h,omitempty"`
	LiquidityUSD     *float64   `json:"liquidity_usd,omitempty"`
	PairCreatedAt    *time.Time `json:"pair_created_at,omitempty"`
	ATH              *float64   `json:"ath,omitempty"`
	ATHDate          *time.Time `json:"ath_date,omitempty"`
	ATHChangePct     *float64   `json:"ath_change_percentage,omitempty"`
	TotalSupply      *float64   `json:"total_supply,omitempty"`
	Holders          *int       `json:"holders,omitempty"`
	MarketTier       MarketTier `json:"market_tier,omitempty"`
	RiskLevel        string     `json:"risk_level,omitempty"`
	RiskScore        float64    `json:"risk_score,omitempty"`
	LiquidityRatio   *float64   `json:"liquidity_ratio,omitempty"`
	VolumeRatio      *float64   `json:"volume_ratio,omitempty"`
	DataCompleteness float64    `json:"data_completeness"`
	Source           string     `json:"source"`
}

// Candle is one daily OHLC bar.
type Candle struct {
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    *float64  `json:"volume,omitempty"`
}

// HistoricalPriceData is the result of a forward OHLC window fetch with ATH
// extraction, or a point-in-time lookup (Candles empty in that case).
type HistoricalPriceData struct {
	Symbol           string    `json:"symbol"`
	PriceAtTimestamp float64   `json:"price_at_timestamp"`
	ATHInWindow      float64   `json:"ath_in_window"`
	ATHTimestamp     time.Time `json:"ath_timestamp"`
	DaysToATH        float64   `json:"days_to_ath"`
	Candles          []Candle  `json:"candles,omitempty"`
	Source           string    `json:"source"`
	Cached           bool      `json:"cached"`
}

// MessageEvent is the chat transport contract. The transport client itself is
// external; everything the pipeline needs rides on this struct.
type MessageEvent struct {
	ChannelID   int64     `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	MessageID   string    `json:"message_id"`
	Text        string    `json:"message_text"`
	Timestamp   time.Time `json:"timestamp"`
	SenderID    string    `json:"sender_id,omitempty"`
	Forwards    int       `json:"forwards"`
	Reactions   int       `json:"reactions"`
	Replies     int       `json:"replies"`
	Views       int       `json:"views"`
}

// ChannelInfo describes a chat channel as reported by the transport.
type ChannelInfo struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Username          string `json:"username,omitempty"`
	ParticipantsCount int    `json:"participants_count"`
	IsBroadcast       bool   `json:"is_broadcast"`
}
