package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurst(t *testing.T) {
	m := NewManager(map[string]Policy{
		"explorer": {Provider: "explorer", RPS: 0.0001, Burst: 2},
	})

	assert.True(t, m.Allow("explorer"))
	assert.True(t, m.Allow("explorer"))
	assert.False(t, m.Allow("explorer"), "third request exceeds burst")
}

func TestUnknownProviderGetsDefaultBucket(t *testing.T) {
	m := NewManager(nil)
	assert.True(t, m.Allow("mystery"))
	assert.False(t, m.Allow("mystery"), "default is 1 rps, burst 1")
}

func TestWaitHonorsCancellation(t *testing.T) {
	m := NewManager(map[string]Policy{
		"slow": {Provider: "slow", RPS: 0.001, Burst: 1},
	})
	require.True(t, m.Allow("slow")) // drain the bucket

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Wait(ctx, "slow")
	assert.Error(t, err)
}

func TestGlobalDefaultsOnInvalidRate(t *testing.T) {
	g := NewGlobal(-1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
}
