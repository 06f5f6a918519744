// Package ratelimit provides per-provider token buckets. Each price or
// candle provider gets its own bucket sized by provider policy; a second
// global bucket throttles the queue consumer's handler rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy sizes one provider's token bucket.
type Policy struct {
	Provider string  `yaml:"provider"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

// DefaultPolicies carries the canonical per-provider budgets. Providers not
// listed here get the conservative default of 1 rps.
var DefaultPolicies = map[string]Policy{
	"dexscreener":   {Provider: "dexscreener", RPS: 30, Burst: 10},
	"coingecko":     {Provider: "coingecko", RPS: 0.8, Burst: 2},
	"defillama":     {Provider: "defillama", RPS: 10, Burst: 5},
	"explorer":      {Provider: "explorer", RPS: 5, Burst: 2},
	"security":      {Provider: "security", RPS: 5, Burst: 2},
	"onchain":       {Provider: "onchain", RPS: 10, Burst: 5},
	"cryptocompare": {Provider: "cryptocompare", RPS: 10, Burst: 5},
	"sheets":        {Provider: "sheets", RPS: 1, Burst: 1},
}

// Manager holds one bucket per provider name.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	policies map[string]Policy
}

// NewManager builds a manager pre-seeded with the given policies. Pass
// DefaultPolicies for the canonical budgets.
func NewManager(policies map[string]Policy) *Manager {
	m := &Manager{
		limiters: make(map[string]*rate.Limiter),
		policies: make(map[string]Policy, len(policies)),
	}
	for name, p := range policies {
		m.policies[name] = p
		m.limiters[name] = rate.NewLimiter(rate.Limit(p.RPS), maxInt(p.Burst, 1))
	}
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (m *Manager) limiter(provider string) *rate.Limiter {
	m.mu.RLock()
	lim, ok := m.limiters[provider]
	m.mu.RUnlock()
	if ok {
		return lim
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[provider]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(1), 1)
	m.limiters[provider] = lim
	return lim
}

// Allow reports whether the provider has budget right now, consuming a token
// when it does. The price engine uses Allow so an exhausted provider is
// skipped for the current request instead of stalling the fan-out.
func (m *Manager) Allow(provider string) bool {
	return m.limiter(provider).Allow()
}

// Wait blocks until the provider has budget or the context is cancelled.
func (m *Manager) Wait(ctx context.Context, provider string) error {
	return m.limiter(provider).Wait(ctx)
}

// SetPolicy installs or replaces a provider's bucket.
func (m *Manager) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.Provider] = p
	m.limiters[p.Provider] = rate.NewLimiter(rate.Limit(p.RPS), maxInt(p.Burst, 1))
}

// Tokens returns the provider's currently available tokens, for /status.
func (m *Manager) Tokens(provider string) float64 {
	return m.limiter(provider).Tokens()
}

// Global is the single bucket between the queue consumer and the message
// handler.
type Global struct {
	lim *rate.Limiter
}

// NewGlobal builds the global messages-per-second bucket.
func NewGlobal(mps float64) *Global {
	if mps <= 0 {
		mps = 2.0
	}
	return &Global{lim: rate.NewLimiter(rate.Limit(mps), 1)}
}

// Wait blocks for the next handler slot.
func (g *Global) Wait(ctx context.Context) error {
	return g.lim.Wait(ctx)
}

// Delay reports how long the next caller would wait, without consuming.
func (g *Global) Delay() time.Duration {
	r := g.lim.Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}
