package cmt

import "github.com/aced-network/aced/internal/types"

// reduceFactor is the number of systematic hash slots per upper symbol:
// Aggregate * Rate. Systematic-child hashes occupy slots [0, reduceFactor)
// of their parent symbol, parity-child hashes the remaining slots, so a
// Merkle path always resolves an unambiguous sibling.
const reduceFactor = int(types.Aggregate * types.Rate)

// parentIndexOf returns the index of the parent symbol (on the layer
// above) that carries the hash of the symbol at index on a layer with k
// systematic symbols. The two branches are exhaustive: systematic indices
// are < k and parity indices are >= k by construction.
func parentIndexOf(index, k int) int {
	if index < k {
		return index / reduceFactor
	}
	return (index - k) / (types.Aggregate - reduceFactor)
}

// childSlot returns the hash slot within the parent symbol occupied by
// the child at index on a layer with k systematic symbols.
func childSlot(index, k int) int {
	if index < k {
		return index % reduceFactor
	}
	return (index-k)%(types.Aggregate-reduceFactor) + reduceFactor
}
