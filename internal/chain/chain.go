package chain

import (
	"sync"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/types"
)

// Chain tracks the locally confirmed prefix of anchored contract states.
// Appends happen only when the collector has the decoded block in hand,
// so the chain never runs ahead of available data.
type Chain struct {
	mu     sync.Mutex
	states []types.ContractState
	logger *zap.Logger
}

// New creates a chain seeded with the genesis state.
func New(logger *zap.Logger) *Chain {
	return &Chain{
		states: []types.ContractState{types.GenesisState()},
		logger: logger,
	}
}

// Latest returns the tip state.
func (c *Chain) Latest() types.ContractState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[len(c.states)-1]
}

// Height returns the tip block id.
func (c *Chain) Height() uint64 {
	return c.Latest().BlockID
}

// Append extends the chain with the next anchored state. Out-of-order
// appends are rejected; the collector retries once the gap fills.
func (c *Chain) Append(state types.ContractState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.states[len(c.states)-1]
	if state.BlockID != tip.BlockID+1 {
		return false
	}
	c.states = append(c.states, state)
	metrics.ChainHeight.Set(float64(state.BlockID))
	c.logger.Info("chain advanced", zap.Uint64("block_id", state.BlockID))
	return true
}

// Replace swaps the whole chain for a synced history (admin sync-chain).
func (c *Chain) Replace(states []types.ContractState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(states) == 0 {
		states = []types.ContractState{types.GenesisState()}
	}
	c.states = states
	metrics.ChainHeight.Set(float64(states[len(states)-1].BlockID))
}

// Has reports whether a block id is already part of the chain.
func (c *Chain) Has(blockID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return blockID <= c.states[len(c.states)-1].BlockID
}

// States returns a copy of the chain.
func (c *Chain) States() []types.ContractState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ContractState, len(c.states))
	copy(out, c.states)
	return out
}
