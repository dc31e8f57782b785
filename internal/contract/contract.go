// Package contract talks to the anchoring smart contract on the host
// chain. The rest of the node sees only the Client interface; the eth
// implementation and the in-memory mock both satisfy it.
package contract

import (
	"context"

	"github.com/aced-network/aced/internal/types"
)

// Vote is an aggregated availability vote: the header being attested,
// the aggregate BLS signature coordinates, and the bitset of
// contributing scale ids.
type Vote struct {
	HeaderHex string
	SID       uint64
	BlockID   uint64
	SigX      string
	SigY      string
	Bitset    uint64
}

// Client is the anchor-contract interface. All methods take a context;
// the contract thread serializes actual RPC traffic.
type Client interface {
	// GetCurrState returns the contract's current (hash, block id) pair.
	GetCurrState(ctx context.Context) (types.ContractState, error)

	// SubmitVote submits an aggregated availability vote.
	SubmitVote(ctx context.Context, vote Vote) error

	// GetAll returns the anchored states in [start, end]; end == 0 means
	// up to the current tip.
	GetAll(ctx context.Context, start, end uint64) ([]types.ContractState, error)

	// CountScaleNodes returns the number of registered scale nodes.
	CountScaleNodes(ctx context.Context) (int, error)

	// GetScaleNodes returns the registered scale-node account addresses.
	GetScaleNodes(ctx context.Context) ([]string, error)

	// AddScaleNode registers a scale node account with its network
	// address and BLS public key coordinates.
	AddScaleNode(ctx context.Context, account, netAddr string, pubkey [4]string) error

	// ResetChain resets the contract to genesis (test deployments only).
	ResetChain(ctx context.Context) error
}
