// Package resolve rewrites liquidity-pool contract addresses to the
// underlying base token so downstream tracking always keys on the token
// itself. Resolution failures never fail the pipeline: the original address
// is kept.
package resolve

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
	"github.com/moonwatch/signalrun/internal/providers"
)

// PairLookup is the DEX aggregator's pair endpoint.
type PairLookup interface {
	LookupPair(ctx context.Context, chain models.ChainFamily, address string) (*providers.PairInfo, error)
}

// PoolReader is the EVM read-call fallback for Uniswap-V2-compatible pools.
type PoolReader interface {
	TokenAt(ctx context.Context, contract string, slot int) (string, error)
}

// Resolver performs the two-step pool resolution.
type Resolver struct {
	pairs PairLookup
	pools PoolReader
}

// NewResolver builds a resolver. Either dependency may be nil; the
// corresponding step is skipped.
func NewResolver(pairs PairLookup, pools PoolReader) *Resolver {
	return &Resolver{pairs: pairs, pools: pools}
}

// Resolve returns the canonical token address for a detected mention. When
// the address turns out to be a pool, the returned Address carries the
// underlying token with IsPool set and ResolvedFrom pointing at the pool.
func (r *Resolver) Resolve(ctx context.Context, addr models.Address) models.Address {
	if !addr.Valid {
		return addr
	}

	// Step 1: ask the DEX aggregator whether this is a pair contract.
	if r.pairs != nil {
		info, err := r.pairs.LookupPair(ctx, addr.Family, addr.Raw)
		if err != nil {
			log.Debug().Str("address", addr.Raw).Err(err).Msg("pair lookup failed, treating as token")
		} else if info != nil && info.IsPair && info.BaseTokenAddress != "" {
			log.Info().
				Str("pool", addr.Raw).
				Str("token", info.BaseTokenAddress).
				Str("symbol", info.BaseTokenSymbol).
				Str("dex", info.DexID).
				Msg("resolved pool to base token")
			return models.Address{
				Raw:          info.BaseTokenAddress,
				Family:       addr.Family,
				Valid:        true,
				Ticker:       info.BaseTokenSymbol,
				IsPool:       true,
				ResolvedFrom: addr.Raw,
			}
		}
	}

	// Step 2: EVM-only fallback: a contract answering both token0() and
	// token1() with address words is a Uniswap-V2-compatible pool.
	if addr.Family == models.ChainEVM && r.pools != nil {
		token0, err0 := r.pools.TokenAt(ctx, addr.Raw, 0)
		if err0 != nil || token0 == "" {
			return addr
		}
		token1, err1 := r.pools.TokenAt(ctx, addr.Raw, 1)
		if err1 != nil || token1 == "" {
			return addr
		}
		log.Info().
			Str("pool", addr.Raw).
			Str("token0", token0).
			Str("token1", token1).
			Msg("resolved V2 pool via on-chain reads")
		return models.Address{
			Raw:          token0,
			Family:       models.ChainEVM,
			Valid:        true,
			IsPool:       true,
			ResolvedFrom: addr.Raw,
		}
	}

	return addr
}
