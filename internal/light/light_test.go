package light

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/testutil"
)

func treeFetcher(tree *cmt.Tree) FetchFunc {
	return func(index uint64) (cmt.Symbol, []cmt.Symbol, error) {
		if int(index) >= len(tree.Layers[0]) {
			return cmt.Symbol{}, nil, fmt.Errorf("index out of range")
		}
		return tree.Layers[0][index].Clone(), tree.MerklePath(int(index)), nil
	}
}

func TestSampler_AcceptsHonestTree(t *testing.T) {
	tree, header, err := testutil.EncodeTestBlock(5)
	require.NoError(t, err)

	sampler := NewSampler(header.Roots(), testutil.TestKSet()[0], 1, zap.NewNop())
	require.NoError(t, sampler.Check(treeFetcher(tree)))
}

func TestSampler_RejectsForgedSymbol(t *testing.T) {
	tree, header, err := testutil.EncodeTestBlock(5)
	require.NoError(t, err)

	honest := treeFetcher(tree)
	forging := func(index uint64) (cmt.Symbol, []cmt.Symbol, error) {
		sym, path, err := honest(index)
		if err == nil {
			sym.Data[0] ^= 0xff
		}
		return sym, path, err
	}

	sampler := NewSampler(header.Roots(), testutil.TestKSet()[0], 1, zap.NewNop())
	require.Error(t, sampler.Check(forging))
}

func TestSampler_RejectsWithheldSymbol(t *testing.T) {
	tree, header, err := testutil.EncodeTestBlock(5)
	require.NoError(t, err)

	// A proposer serving only one symbol: a round of 30 distinct draws
	// must hit a withheld index.
	honest := treeFetcher(tree)
	withholding := func(index uint64) (cmt.Symbol, []cmt.Symbol, error) {
		if index != 0 {
			return cmt.Symbol{}, nil, fmt.Errorf("withheld")
		}
		return honest(index)
	}

	sampler := NewSampler(header.Roots(), testutil.TestKSet()[0], 1, zap.NewNop())
	require.Error(t, sampler.Check(withholding))
}

func TestSampler_DrawDistinct(t *testing.T) {
	_, header, err := testutil.EncodeTestBlock(2)
	require.NoError(t, err)

	sampler := NewSampler(header.Roots(), testutil.TestKSet()[0], 42, zap.NewNop())
	drawn := sampler.Draw()
	require.Len(t, drawn, 30)

	seen := make(map[uint64]struct{})
	for _, idx := range drawn {
		require.Less(t, idx, uint64(64))
		_, dup := seen[idx]
		require.False(t, dup, "index %d drawn twice", idx)
		seen[idx] = struct{}{}
	}
}
