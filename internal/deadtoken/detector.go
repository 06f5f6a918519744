// Package deadtoken flags tokens whose on-chain state marks them as dead and
// keeps the persistent advisory blacklist. The blacklist suppresses repeated
// price fetches only; blacklisted tokens that still get admitted are tracked
// as expected-failure signals, and a later live price never removes an entry.
package deadtoken

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/atomicio"
	"github.com/moonwatch/signalrun/internal/models"
)

// Detection thresholds.
var (
	minTokenSupply = big.NewInt(1000)  // base units
	minPoolSupply  = big.NewInt(10000) // base units, V2 pool LP supply
)

// minAgeForNoTransfers is how old a contract must be before zero transfers
// counts as dead rather than just new.
const minAgeForNoTransfers = 7 * 24 * time.Hour

// ChainProber is the slice of the explorer adapter the detector needs.
type ChainProber interface {
	TokenSupply(ctx context.Context, address string) (*big.Int, error)
	TransferCount(ctx context.Context, address string) (int, error)
	ContractCreatedAt(ctx context.Context, address string) (time.Time, error)
}

// Blacklist is the persistent advisory dead-token set, keyed by address.
type Blacklist struct {
	mu      sync.Mutex
	path    string
	entries map[string]*models.DeadToken
}

// NewBlacklist loads (or creates) the blacklist file.
func NewBlacklist(path string) (*Blacklist, error) {
	b := &Blacklist{
		path:    path,
		entries: make(map[string]*models.DeadToken),
	}
	if _, err := atomicio.ReadJSON(path, &b.entries); err != nil {
		return nil, err
	}
	if b.entries == nil {
		b.entries = make(map[string]*models.DeadToken)
	}
	return b, nil
}

// Contains reports whether the address is blacklisted.
func (b *Blacklist) Contains(address string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[address]
	return ok
}

// Reason returns the recorded detection reason for a blacklisted address.
func (b *Blacklist) Reason(address string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[address]
	if !ok {
		return "", false
	}
	return entry.Reason, true
}

// Add records a dead token and persists the file. An existing entry is kept
// as is; the first detection wins.
func (b *Blacklist) Add(address string, entry *models.DeadToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[address]; ok {
		return nil
	}
	b.entries[address] = entry
	return atomicio.WriteJSONAtomic(b.path, b.entries)
}

// Len reports the number of blacklisted tokens.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Detector runs the dead-token heuristics against on-chain state.
type Detector struct {
	prober    ChainProber
	blacklist *Blacklist
	now       func() time.Time
}

// NewDetector wires a detector. prober may be nil for chains without an
// explorer, in which case Check never flags anything.
func NewDetector(prober ChainProber, blacklist *Blacklist) *Detector {
	return &Detector{
		prober:    prober,
		blacklist: blacklist,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Blacklist exposes the underlying set for admission checks.
func (d *Detector) Blacklist() *Blacklist { return d.blacklist }

// Check probes the token's on-chain state when no price was found and
// blacklists it if a heuristic fires. Returns the reason, or "" when the
// token looks alive (or could not be probed).
func (d *Detector) Check(ctx context.Context, addr models.Address, isPool bool) (string, error) {
	if d.prober == nil || addr.Family != models.ChainEVM {
		return "", nil
	}
	if reason, ok := d.blacklist.Reason(addr.Raw); ok {
		return reason, nil
	}

	supply, err := d.prober.TokenSupply(ctx, addr.Raw)
	if err != nil {
		return "", fmt.Errorf("dead-token probe %s: %w", addr.Raw, err)
	}

	if reason := d.classify(ctx, addr.Raw, supply, isPool); reason != "" {
		supplyF, _ := new(big.Float).SetInt(supply).Float64()
		entry := &models.DeadToken{
			Chain:       addr.Family,
			Reason:      reason,
			DetectedAt:  d.now(),
			TotalSupply: &supplyF,
		}
		if err := d.blacklist.Add(addr.Raw, entry); err != nil {
			return reason, err
		}
		log.Warn().
			Str("address", addr.Raw).
			Str("reason", reason).
			Msg("token blacklisted as dead")
		return reason, nil
	}
	return "", nil
}

func (d *Detector) classify(ctx context.Context, address string, supply *big.Int, isPool bool) string {
	if isPool {
		if supply.Cmp(minPoolSupply) < 0 {
			return fmt.Sprintf("v2 pool supply %s below %s", supply, minPoolSupply)
		}
		return ""
	}
	if supply.Cmp(minTokenSupply) < 0 {
		return fmt.Sprintf("supply %s below %s", supply, minTokenSupply)
	}

	transfers, err := d.prober.TransferCount(ctx, address)
	if err != nil {
		log.Debug().Str("address", address).Err(err).Msg("transfer count probe failed")
		return ""
	}
	if transfers > 0 {
		return ""
	}
	createdAt, err := d.prober.ContractCreatedAt(ctx, address)
	if err != nil || createdAt.IsZero() {
		return ""
	}
	if d.now().Sub(createdAt) > minAgeForNoTransfers {
		return fmt.Sprintf("zero transfers, contract %d days old",
			int(d.now().Sub(createdAt).Hours()/24))
	}
	return ""
}
