package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwatch/signalrun/internal/models"
)

// fakeProvider is a canned Provider used to exercise the engine without HTTP.
type fakeProvider struct {
	name   string
	chains []models.ChainFamily
	result *models.PriceData
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(chain models.ChainFamily) bool {
	for _, c := range f.chains {
		if c == chain {
			return true
		}
	}
	return false
}

func (f *fakeProvider) Fetch(ctx context.Context, q TokenQuery) (*models.PriceData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return nil, nil
	}
	cp := *f.result
	return &cp, nil
}

func allChains() []models.ChainFamily {
	return []models.ChainFamily{models.ChainEVM, models.ChainSolana}
}

func TestMergeNeverOverwrites(t *testing.T) {
	dst := &models.PriceData{PriceUSD: 1.5, Symbol: "ABC", Source: "dexscreener"}
	src := &models.PriceData{
		PriceUSD:  2.0,
		Symbol:    "XYZ",
		MarketCap: floatPtr(5_000_000),
		Source:    "coingecko",
	}

	out := merge(dst, src)
	assert.Equal(t, 1.5, out.PriceUSD)
	assert.Equal(t, "ABC", out.Symbol)
	require.NotNil(t, out.MarketCap)
	assert.Equal(t, 5_000_000.0, *out.MarketCap)
	assert.Equal(t, "dexscreener+coingecko", out.Source)
}

func TestMergeSourceDeduplicates(t *testing.T) {
	dst := &models.PriceData{PriceUSD: 1, Source: "dexscreener+coingecko"}
	out := merge(dst, &models.PriceData{Symbol: "A", Source: "coingecko"})
	assert.Equal(t, "dexscreener+coingecko", out.Source)
}

func TestEnginePrimaryCompleteSkipsFanout(t *testing.T) {
	primary := &fakeProvider{
		name:   "dexscreener",
		chains: allChains(),
		result: &models.PriceData{
			PriceUSD:  0.5,
			Symbol:    "PEPE",
			MarketCap: floatPtr(50_000_000),
			Volume24h: floatPtr(1_000_000),
			Source:    "dexscreener",
		},
	}
	secondary := &fakeProvider{name: "coingecko", chains: allChains()}

	e := &Engine{primary: primary, fanout: []Provider{secondary}}
	pd := e.GetPrice(context.Background(), "0xabc", models.ChainEVM)

	require.NotNil(t, pd)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls, "complete primary record must short-circuit the fan-out")
	assert.Equal(t, models.TierSmall, pd.MarketTier)
}

func TestEngineFanoutMergesPartials(t *testing.T) {
	primary := &fakeProvider{
		name:   "dexscreener",
		chains: allChains(),
		result: &models.PriceData{PriceUSD: 0.002, Source: "dexscreener"},
	}
	gecko := &fakeProvider{
		name:   "coingecko",
		chains: allChains(),
		result: &models.PriceData{Symbol: "WIF", MarketCap: floatPtr(2_000_000), Source: "coingecko"},
	}
	llama := &fakeProvider{
		name:   "defillama",
		chains: allChains(),
		result: &models.PriceData{PriceUSD: 0.0021, Volume24h: floatPtr(40_000), Source: "defillama"},
	}

	e := &Engine{primary: primary, fanout: []Provider{gecko, llama}}
	pd := e.GetPrice(context.Background(), "So1anaAddr", models.ChainSolana)

	require.NotNil(t, pd)
	assert.Equal(t, 0.002, pd.PriceUSD, "primary price wins")
	assert.Equal(t, "WIF", pd.Symbol)
	assert.Equal(t, "dexscreener+coingecko+defillama", pd.Source)
	assert.Equal(t, models.TierMicro, pd.MarketTier)
	assert.Greater(t, pd.DataCompleteness, 0.0)
}

func TestEngineProviderErrorsDoNotPropagate(t *testing.T) {
	primary := &fakeProvider{name: "dexscreener", chains: allChains(), err: errors.New("boom")}
	gecko := &fakeProvider{
		name:   "coingecko",
		chains: allChains(),
		result: &models.PriceData{PriceUSD: 3.0, Symbol: "OK", Source: "coingecko"},
	}

	e := &Engine{primary: primary, fanout: []Provider{gecko}}
	pd := e.GetPrice(context.Background(), "0xabc", models.ChainEVM)

	require.NotNil(t, pd)
	assert.Equal(t, 3.0, pd.PriceUSD)
}

func TestEngineAllProvidersFailReturnsNil(t *testing.T) {
	e := &Engine{
		primary: &fakeProvider{name: "dexscreener", chains: allChains(), err: errors.New("down")},
		fanout: []Provider{
			&fakeProvider{name: "coingecko", chains: allChains(), err: ErrRateLimited},
		},
	}
	assert.Nil(t, e.GetPrice(context.Background(), "0xabc", models.ChainEVM))
}

func TestEngineSkipsUnsupportedChain(t *testing.T) {
	evmOnly := &fakeProvider{
		name:   "explorer-ish",
		chains: []models.ChainFamily{models.ChainEVM},
		result: &models.PriceData{PriceUSD: 9, Symbol: "NOPE", Source: "explorer"},
	}
	e := &Engine{primary: evmOnly}
	assert.Nil(t, e.GetPrice(context.Background(), "So1ana", models.ChainSolana))
	assert.Equal(t, 0, evmOnly.calls)
}

func TestRiskClassification(t *testing.T) {
	large := &models.PriceData{
		PriceUSD:     100,
		Symbol:       "BIG",
		MarketCap:    floatPtr(5_000_000_000),
		Volume24h:    floatPtr(1_000_000_000),
		LiquidityUSD: floatPtr(400_000_000),
		ATH:          floatPtr(150),
	}
	finalize(large)
	assert.Equal(t, "low", large.RiskLevel)

	micro := &models.PriceData{PriceUSD: 0.0001}
	finalize(micro)
	assert.Equal(t, "high", micro.RiskLevel)
}
