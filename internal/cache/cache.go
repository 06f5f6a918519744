// Package cache provides the short-lived price cache sitting in front of the
// provider fan-out. Two backends share one contract: an in-process TTL map
// for single-node runs and Redis for deployments where several pipelines
// share a budget of provider calls.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/moonwatch/signalrun/internal/models"
)

// PriceCache is the backend contract. Misses and backend failures both
// report ok=false; the caller falls through to the providers either way.
type PriceCache interface {
	Get(ctx context.Context, key string) (*models.PriceData, bool)
	Set(ctx context.Context, key string, pd *models.PriceData, ttl time.Duration)
}

// Key builds the canonical cache key for a token.
func Key(chain models.ChainFamily, address string) string {
	if chain == models.ChainEVM {
		address = strings.ToLower(address)
	}
	return "price:" + string(chain) + ":" + address
}

type memoryEntry struct {
	data      models.PriceData
	expiresAt time.Time
}

// Memory is the in-process TTL cache. Expired entries are dropped lazily on
// read and swept opportunistically on write.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory builds an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Get(_ context.Context, key string) (*models.PriceData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	data := entry.data
	return &data, true
}

func (m *Memory) Set(_ context.Context, key string, pd *models.PriceData, ttl time.Duration) {
	if pd == nil || ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	// Sweep a handful of expired entries so the map does not grow unbounded
	// between reads.
	swept := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			if swept++; swept >= 16 {
				break
			}
		}
	}
	m.entries[key] = memoryEntry{data: *pd, expiresAt: now.Add(ttl)}
}

// Len reports live entries, counting expired-but-unswept ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
