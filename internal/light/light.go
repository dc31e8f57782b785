// Package light implements the light-node availability check: sample a
// small number of random base-layer symbols per round and verify each
// against the header's coded Merkle roots. A proposer withholding data
// fails the fetch with high probability; a proposer forging data fails
// the path verification.
package light

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/types"
)

// FetchFunc retrieves one base-layer symbol and its Merkle path from
// whatever node is serving samples.
type FetchFunc func(index uint64) (cmt.Symbol, []cmt.Symbol, error)

// Sampler checks availability of one block.
type Sampler struct {
	roots  [][32]byte
	baseK  int
	baseN  int
	rng    *rand.Rand
	logger *zap.Logger
}

// NewSampler builds a sampler for a header's roots over a base layer of
// k systematic symbols. The seed makes sampling reproducible in tests;
// production callers seed from crypto randomness.
func NewSampler(roots [][32]byte, baseK int, seed int64, logger *zap.Logger) *Sampler {
	return &Sampler{
		roots:  roots,
		baseK:  baseK,
		baseN:  int(float64(baseK) / types.Rate),
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Draw picks SampleComplexity distinct base-layer indices.
func (s *Sampler) Draw() []uint64 {
	count := types.SampleComplexity
	if count > s.baseN {
		count = s.baseN
	}
	perm := s.rng.Perm(s.baseN)
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		out[i] = uint64(perm[i])
	}
	return out
}

// Check runs NumberIteration sampling rounds. It returns nil only if
// every sampled symbol was served and authenticated, which convinces
// the light node the block data is retrievable.
func (s *Sampler) Check(fetch FetchFunc) error {
	for round := 0; round < types.NumberIteration; round++ {
		for _, idx := range s.Draw() {
			sym, path, err := fetch(idx)
			if err != nil {
				return fmt.Errorf("round %d: symbol %d unavailable: %w", round, idx, err)
			}
			if !cmt.VerifyMerklePath(int(idx), s.baseK, &sym, path, s.roots) {
				return fmt.Errorf("round %d: symbol %d failed authentication", round, idx)
			}
		}
		s.logger.Debug("sampling round passed", zap.Int("round", round))
	}
	return nil
}
