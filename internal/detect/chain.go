package detect

import (
	"strings"

	"github.com/moonwatch/signalrun/internal/models"
)

// Platform names that bias chain classification when a message has no address.
var (
	evmHints    = []string{"uniswap", "etherscan", "pancakeswap", "base chain", "arbitrum", "0x"}
	solanaHints = []string{"raydium", "pump.fun", "pumpfun", "jupiter", "solscan", "phantom", "sol "}
)

// ClassifyChain inspects a message for DEX/platform names and address shapes
// to bias later resolver and provider calls. Addresses win over text hints.
func ClassifyChain(text string, mentions Mentions) models.ChainFamily {
	for _, a := range mentions.Addresses {
		if a.Family != models.ChainUnknown {
			return a.Family
		}
	}

	lower := strings.ToLower(text)
	for _, h := range solanaHints {
		if strings.Contains(lower, h) {
			return models.ChainSolana
		}
	}
	for _, h := range evmHints {
		if strings.Contains(lower, h) {
			return models.ChainEVM
		}
	}
	return models.ChainUnknown
}
