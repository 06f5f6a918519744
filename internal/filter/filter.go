// Package filter decides whether a detected (symbol, address) candidate is
// admitted to tracking: canonical-address whitelisting for major tokens,
// minimum price and market-cap thresholds, and market-commentary suppression.
// Rejections are verdicts, not errors.
package filter

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
)

// MajorToken pins a well-known symbol to its canonical contract per chain and
// a sanity band on price and cap. A mismatched address on a major symbol is a
// scam clone.
type MajorToken struct {
	Canonical    map[models.ChainFamily]string `yaml:"canonical"`
	MinPrice     float64                       `yaml:"min_price"`
	MaxPrice     float64                       `yaml:"max_price"`
	MinMarketCap float64                       `yaml:"min_market_cap"`
}

// DefaultMajors covers the symbols most often cloned by scam deployments.
func DefaultMajors() map[string]MajorToken {
	return map[string]MajorToken{
		"ETH": {
			Canonical: map[models.ChainFamily]string{
				models.ChainEVM: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", // WETH
			},
			MinPrice: 500, MaxPrice: 100_000, MinMarketCap: 10_000_000_000,
		},
		"BTC": {
			Canonical: map[models.ChainFamily]string{
				models.ChainEVM: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", // WBTC
			},
			MinPrice: 10_000, MaxPrice: 2_000_000, MinMarketCap: 100_000_000_000,
		},
		"USDT": {
			Canonical: map[models.ChainFamily]string{
				models.ChainEVM:    "0xdac17f958d2ee523a2206206994597c13d831ec7",
				models.ChainSolana: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
			},
			MinPrice: 0.9, MaxPrice: 1.1, MinMarketCap: 1_000_000_000,
		},
		"USDC": {
			Canonical: map[models.ChainFamily]string{
				models.ChainEVM:    "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
				models.ChainSolana: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			},
			MinPrice: 0.9, MaxPrice: 1.1, MinMarketCap: 1_000_000_000,
		},
		"SOL": {
			Canonical: map[models.ChainFamily]string{
				models.ChainSolana: "So11111111111111111111111111111111111111112",
			},
			MinPrice: 5, MaxPrice: 10_000, MinMarketCap: 1_000_000_000,
		},
	}
}

// Config carries the filter thresholds.
type Config struct {
	MinPrice              float64               `yaml:"min_price"`
	MinMarketCap          float64               `yaml:"min_market_cap"`
	AllowMissingMarketCap bool                  `yaml:"allow_missing_market_cap"`
	Majors                map[string]MajorToken `yaml:"majors"`
}

// DefaultConfig returns the canonical thresholds.
func DefaultConfig() Config {
	return Config{
		MinPrice:              1e-6,
		MinMarketCap:          10_000,
		AllowMissingMarketCap: true,
		Majors:                DefaultMajors(),
	}
}

// Candidate is one (symbol, address) pair with whatever market data the price
// engine produced. Pointers distinguish missing from zero.
type Candidate struct {
	Symbol      string
	Address     string
	Chain       models.ChainFamily
	Price       *float64
	MarketCap   *float64
	Supply      *float64
	MessageText string
	HasAddress  bool
}

// Verdict is the filter's decision. Rejections carry a reason for logging and
// the verification report.
type Verdict struct {
	Admit  bool
	Reason string
}

func reject(format string, args ...any) Verdict {
	return Verdict{Admit: false, Reason: fmt.Sprintf(format, args...)}
}

// Filter applies admission rules.
type Filter struct {
	cfg Config
}

// New builds a filter, falling back to defaults for zero thresholds.
func New(cfg Config) *Filter {
	d := DefaultConfig()
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = d.MinPrice
	}
	if cfg.MinMarketCap <= 0 {
		cfg.MinMarketCap = d.MinMarketCap
	}
	if cfg.Majors == nil {
		cfg.Majors = d.Majors
	}
	return &Filter{cfg: cfg}
}

// Check returns the admission verdict for a candidate.
func (f *Filter) Check(c Candidate) Verdict {
	symbol := strings.ToUpper(c.Symbol)

	if major, ok := f.cfg.Majors[symbol]; ok {
		return f.checkMajor(symbol, major, c)
	}

	if c.Price != nil && *c.Price < f.cfg.MinPrice {
		return reject("price %.12f below minimum %.12f", *c.Price, f.cfg.MinPrice)
	}
	if c.MarketCap == nil {
		if !f.cfg.AllowMissingMarketCap {
			return reject("market cap unknown and missing caps not allowed")
		}
	} else if *c.MarketCap < f.cfg.MinMarketCap {
		return reject("market cap %.0f below minimum %.0f", *c.MarketCap, f.cfg.MinMarketCap)
	}
	if c.Supply != nil && *c.Supply == 0 {
		return reject("token supply is zero")
	}

	return Verdict{Admit: true}
}

func (f *Filter) checkMajor(symbol string, major MajorToken, c Candidate) Verdict {
	if c.HasAddress {
		canonical, ok := major.Canonical[c.Chain]
		if !ok {
			return reject("%s has no canonical address on chain %s", symbol, c.Chain)
		}
		if !strings.EqualFold(c.Address, canonical) {
			log.Info().Str("symbol", symbol).Str("address", c.Address).
				Msg("major token address not canonical, rejecting as scam")
			return reject("address %s is not canonical for %s", c.Address, symbol)
		}
	} else if IsMarketCommentary(c.MessageText, symbol) {
		return reject("market commentary about %s without address", symbol)
	}

	if c.Price != nil {
		if *c.Price < major.MinPrice {
			return reject("price %.6f too low for %s (min %.2f)", *c.Price, symbol, major.MinPrice)
		}
		if major.MaxPrice > 0 && *c.Price > major.MaxPrice {
			return reject("price %.2f too high for %s (max %.2f)", *c.Price, symbol, major.MaxPrice)
		}
	}
	if c.MarketCap != nil && *c.MarketCap < major.MinMarketCap {
		return reject("market cap %.0f too low for %s", *c.MarketCap, symbol)
	}

	return Verdict{Admit: true}
}

// Commentary phrasing that marks a message as market talk rather than a call.
var commentaryPhrases = []string{
	"rally", "pump incoming", "breakout", "looking bullish", "looking bearish",
	"to the moon", "dip incoming", "correction", "support level", "resistance",
	"ath soon", "chart looks", "ta update", "market update",
}

// IsMarketCommentary reports whether the text reads as commentary about a
// major symbol: the symbol appears together with commentary phrasing. A
// message that carries an actual contract address is never commentary.
func IsMarketCommentary(text, symbol string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, strings.ToLower(symbol)) {
		return false
	}
	for _, phrase := range commentaryPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
