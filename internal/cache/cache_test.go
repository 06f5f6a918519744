package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moonwatch/signalrun/internal/models"
)

func TestKeyNormalizesEVMCase(t *testing.T) {
	assert.Equal(t, "price:evm:0xabcdef", Key(models.ChainEVM, "0xAbCdEf"))
	// Solana addresses are case-sensitive base58 and must not be folded.
	assert.Equal(t, "price:solana:DezX5", Key(models.ChainSolana, "DezX5"))
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok := m.Get(ctx, "price:evm:0xabc")
	assert.False(t, ok)

	m.Set(ctx, "price:evm:0xabc", &models.PriceData{PriceUSD: 1.5, Symbol: "TKN"}, time.Minute)
	got, ok := m.Get(ctx, "price:evm:0xabc")
	assert.True(t, ok)
	assert.Equal(t, 1.5, got.PriceUSD)

	// The cache hands out copies: mutating the result must not poison it.
	got.PriceUSD = 99
	again, _ := m.Get(ctx, "price:evm:0xabc")
	assert.Equal(t, 1.5, again.PriceUSD)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set(ctx, "k", &models.PriceData{PriceUSD: 1}, time.Minute)
	_, ok := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len(), "expired entry dropped on read")
}

func TestMemoryIgnoresNilAndZeroTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Set(ctx, "k", nil, time.Minute)
	m.Set(ctx, "k", &models.PriceData{PriceUSD: 1}, 0)
	assert.Equal(t, 0, m.Len())
}

func TestMemorySweepsExpiredOnWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		m.Set(ctx, k, &models.PriceData{PriceUSD: 1}, time.Second)
	}
	now = now.Add(time.Minute)
	m.Set(ctx, "fresh", &models.PriceData{PriceUSD: 2}, time.Minute)
	assert.Equal(t, 1, m.Len())
}
