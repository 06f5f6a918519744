// Package providers contains the price provider adapters and the multi-source
// fan-out engine that merges their partial responses into one PriceData.
//
// Adapter ground rules: every adapter owns a rate-limit budget and a circuit
// breaker, swallows its own errors (the fan-out is the retry), and never
// overwrites a field another provider already filled.
package providers

import (
	"context"
	"errors"

	"github.com/moonwatch/signalrun/internal/models"
)

// TokenQuery identifies the token a provider should look up.
type TokenQuery struct {
	Address string
	Chain   models.ChainFamily
	Symbol  string // optional hint from detection
}

// Provider is one upstream price source.
type Provider interface {
	// Name is the short provider id used in rate-limit policies and the
	// accumulated PriceData.Source list.
	Name() string

	// Supports reports whether the provider can serve the given chain family.
	Supports(chain models.ChainFamily) bool

	// Fetch returns a partial PriceData. A nil result with nil error means
	// the provider had nothing for this token.
	Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error)
}

// Sentinel errors surfaced by the shared HTTP client.
var (
	// ErrRateLimited means the provider's local budget was exhausted or the
	// upstream answered 429. The engine skips the provider for this request.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrNotFound means the upstream answered but knows nothing about the
	// token.
	ErrNotFound = errors.New("token not found")
)
