package contract

import (
	"context"
	"fmt"
	"sync"

	"github.com/aced-network/aced/internal/types"
	"github.com/aced-network/aced/pkg/util"
)

// Mock is an in-memory anchor contract for tests and single-machine
// deployments. It mirrors the contract's chaining rule: each accepted
// vote advances the state to hash(currHash || headerHash).
type Mock struct {
	mu         sync.Mutex
	states     []types.ContractState
	votes      []Vote
	scaleNodes []string

	// FailSubmits makes the next N SubmitVote calls fail, for exercising
	// the submitter's retry path.
	FailSubmits int
}

// NewMock creates a mock contract at genesis.
func NewMock() *Mock {
	return &Mock{states: []types.ContractState{types.GenesisState()}}
}

func (m *Mock) GetCurrState(ctx context.Context) (types.ContractState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[len(m.states)-1], nil
}

func (m *Mock) SubmitVote(ctx context.Context, vote Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSubmits > 0 {
		m.FailSubmits--
		return fmt.Errorf("mock: transient rpc failure")
	}

	header, err := util.HexToBytes(vote.HeaderHex)
	if err != nil {
		return fmt.Errorf("mock: bad header hex: %w", err)
	}
	tip := m.states[len(m.states)-1]
	if vote.BlockID <= tip.BlockID {
		// Late duplicate for an already-anchored block.
		return nil
	}

	headerHash := util.DoubleSHA256(header)
	next := types.ContractState{BlockID: vote.BlockID}
	next.CurrHash = util.DoubleSHA256(append(tip.CurrHash[:], headerHash[:]...))

	m.states = append(m.states, next)
	m.votes = append(m.votes, vote)
	return nil
}

func (m *Mock) GetAll(ctx context.Context, start, end uint64) ([]types.ContractState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.ContractState
	for _, s := range m.states {
		if s.BlockID < start {
			continue
		}
		if end != 0 && s.BlockID > end {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Mock) CountScaleNodes(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scaleNodes), nil
}

func (m *Mock) GetScaleNodes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.scaleNodes...), nil
}

func (m *Mock) AddScaleNode(ctx context.Context, account, netAddr string, pubkey [4]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scaleNodes = append(m.scaleNodes, account)
	return nil
}

func (m *Mock) ResetChain(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = []types.ContractState{types.GenesisState()}
	m.votes = nil
	return nil
}

// Votes returns the accepted votes, oldest first.
func (m *Mock) Votes() []Vote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Vote(nil), m.votes...)
}
