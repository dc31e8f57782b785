package node

import (
	"time"

	"github.com/aced-network/aced/internal/types"
)

// Config is the full node configuration, normally built from flags in
// cmd/aced.
type Config struct {
	// Addr is our TCP listen address; for side nodes it must appear in
	// SideNodes.
	Addr string

	// SideNodes is the proposer ring, in slot order. Identical on every
	// node.
	SideNodes []string

	// ScaleNodes are the scale-node addresses (for broadcasts).
	ScaleNodes []string

	// ScaleID is our 1-based scale id, or 0 for a non-scale node.
	ScaleID uint64

	// NumScale is the total number of scale nodes.
	NumScale uint64

	// SideNode controls whether the slot scheduler runs.
	SideNode bool

	// SlotTime is the slot duration.
	SlotTime time.Duration

	// EpochSec/EpochMillis give the epoch start on the wall clock.
	EpochSec    int64
	EpochMillis int64

	// DataDir holds the sample store and key material.
	DataDir string

	// CodeDir holds the per-layer parity-check tables.
	CodeDir string

	// KSet is the per-layer systematic symbol count, base layer first.
	KSet []int

	// BaseSymbolSize overrides the base symbol size; zero means the
	// protocol default.
	BaseSymbolSize int

	// BLSKeyFile is the scale node's signing key; created on first use.
	BLSKeyFile string

	// Anchor-contract connection. MockContract replaces the host chain
	// with an in-process contract for single-machine runs.
	ContractRPC     string
	ContractAddr    string
	AccountKeyFile  string
	ContractChainID int64
	MockContract    bool

	// APIAddr serves the admin REST API and /metrics; empty disables it.
	APIAddr string

	// GeneratorRate is the transaction generator's txs/sec when started.
	GeneratorRate int
}

// Epoch returns the epoch start as a time.Time.
func (c *Config) Epoch() time.Time {
	return time.Unix(c.EpochSec, c.EpochMillis*int64(time.Millisecond))
}

// EffectiveBaseSymbolSize applies the protocol default.
func (c *Config) EffectiveBaseSymbolSize() int {
	if c.BaseSymbolSize > 0 {
		return c.BaseSymbolSize
	}
	return types.BaseSymbolSize
}

// AllPeers returns every known node address.
func (c *Config) AllPeers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, addr := range append(append([]string{}, c.SideNodes...), c.ScaleNodes...) {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
