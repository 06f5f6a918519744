// Package detect extracts crypto mentions from raw message text: configured
// ticker symbols by whole-word match and address-shaped substrings by the two
// canonical patterns. Detection never validates cryptographically.
package detect

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
)

var (
	evmAddressRe    = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	solanaAddressRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
	wordRe          = regexp.MustCompile(`[A-Za-z0-9]+`)
)

// Mentions is the detector output: an ordered, deduplicated list of ticker
// symbols plus validated address candidates.
type Mentions struct {
	Tickers   []string
	Addresses []models.Address
}

// Empty reports whether nothing crypto-shaped was found.
func (m Mentions) Empty() bool {
	return len(m.Tickers) == 0 && len(m.Addresses) == 0
}

// Detector holds the configured ticker set and relevance keywords. Both are
// loaded once at startup; an empty set makes the detector non-functional but
// never fails the pipeline.
type Detector struct {
	tickers    map[string]struct{}
	keywords   []string
	functional bool
}

// NewDetector flattens the category -> symbols mapping into one deduplicated
// ticker set. Keywords drive the lightweight crypto-relevance check.
func NewDetector(tickersByCategory map[string][]string, keywords []string) *Detector {
	set := make(map[string]struct{})
	for _, symbols := range tickersByCategory {
		for _, s := range symbols {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				set[s] = struct{}{}
			}
		}
	}

	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kws = append(kws, k)
		}
	}

	functional := len(set) > 0 || len(kws) > 0
	if !functional {
		log.Warn().Msg("detector has empty ticker set and empty keyword set, marking non-functional")
	}

	return &Detector{tickers: set, keywords: kws, functional: functional}
}

// Functional reports whether the detector loaded any vocabulary.
func (d *Detector) Functional() bool { return d.functional }

// TickerCount returns the size of the loaded ticker set.
func (d *Detector) TickerCount() int { return len(d.tickers) }

// Detect extracts ticker and address mentions from text, preserving first-seen
// order and deduplicating.
func (d *Detector) Detect(text string) Mentions {
	var out Mentions
	if text == "" {
		return out
	}

	seenTickers := make(map[string]struct{})
	for _, word := range wordRe.FindAllString(text, -1) {
		upper := strings.ToUpper(word)
		if _, ok := d.tickers[upper]; !ok {
			continue
		}
		if _, dup := seenTickers[upper]; dup {
			continue
		}
		seenTickers[upper] = struct{}{}
		out.Tickers = append(out.Tickers, upper)
	}

	seenAddrs := make(map[string]struct{})
	for _, raw := range evmAddressRe.FindAllString(text, -1) {
		key := strings.ToLower(raw)
		if _, dup := seenAddrs[key]; dup {
			continue
		}
		seenAddrs[key] = struct{}{}
		out.Addresses = append(out.Addresses, models.Address{
			Raw:    raw,
			Family: models.ChainEVM,
			Valid:  true, // shape check only, EIP-55 checksums are not enforced
		})
	}

	for _, raw := range solanaAddressRe.FindAllString(text, -1) {
		if _, dup := seenAddrs[raw]; dup {
			continue
		}
		if !validSolana(raw) {
			continue
		}
		seenAddrs[raw] = struct{}{}
		out.Addresses = append(out.Addresses, models.Address{
			Raw:    raw,
			Family: models.ChainSolana,
			Valid:  true,
		})
	}

	return out
}

// validSolana requires the base58 payload to decode to exactly 32 bytes.
func validSolana(raw string) bool {
	decoded := base58.Decode(raw)
	return len(decoded) == 32
}

// IsCryptoRelevant reports whether the message mentions anything crypto:
// a detected ticker/address or any configured keyword.
func (d *Detector) IsCryptoRelevant(text string, mentions Mentions) bool {
	if !mentions.Empty() {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
