package cmt

import (
	"github.com/aced-network/aced/internal/types"
)

// Test fixtures: a rate-1/4 "copy" code — n = 4k, 3k parity equations,
// equation j pairing systematic symbol j mod k with parity symbol k+j, so
// every parity symbol is a copy of a systematic one. Structurally trivial
// but it exercises every code path: peeling encode, degree bookkeeping,
// hash gating, stopping sets, and the interleaved hash aggregation. The
// k-set [16, 8, 4] satisfies k' = 4k/8 per layer and tops out at 16
// symbols, matching the header root count.

const testBaseSymbolSize = 512

func testKSet() []int { return []int{16, 8, 4} }

func copyCode(k int) *Code {
	n := 4 * k
	parities := make([][]int, 3*k)
	for j := 0; j < 3*k; j++ {
		parities[j] = []int{j % k, k + j}
	}
	code, err := NewCode(k, parities, n)
	if err != nil {
		panic(err)
	}
	return code
}

func testCodes() []*Code {
	var codes []*Code
	for _, k := range testKSet() {
		codes = append(codes, copyCode(k))
	}
	return codes
}

// testPayload builds count serialized transactions with deterministic
// fields, concatenated.
func testPayload(count int) []byte {
	var out []byte
	for i := 0; i < count; i++ {
		tx := &types.Transaction{Nonce: uint64(i), Value: uint64(i) * 10}
		tx.From[0] = byte(i)
		out = append(out, tx.Serialize()...)
	}
	return out
}

// fullSamples returns every symbol of every layer of a tree.
func fullSamples(tree *Tree) (symbols [][]Symbol, indices [][]uint64) {
	for _, layer := range tree.Layers {
		syms := make([]Symbol, len(layer))
		idx := make([]uint64, len(layer))
		for i := range layer {
			syms[i] = layer[i].Clone()
			idx[i] = uint64(i)
		}
		symbols = append(symbols, syms)
		indices = append(indices, idx)
	}
	return symbols, indices
}

// dropBase removes the base-layer entries whose index satisfies drop.
func dropBase(symbols [][]Symbol, indices [][]uint64, drop func(uint64) bool) ([][]Symbol, [][]uint64) {
	var keptSyms []Symbol
	var keptIdx []uint64
	for i, idx := range indices[0] {
		if drop(idx) {
			continue
		}
		keptSyms = append(keptSyms, symbols[0][i])
		keptIdx = append(keptIdx, idx)
	}
	symbols[0] = keptSyms
	indices[0] = keptIdx
	return symbols, indices
}

// rebuildUppers recomputes every layer above the base from the (possibly
// mutated) base layer, keeping the tree self-consistent the way a
// malicious proposer would after altering a symbol.
func rebuildUppers(tree *Tree, codes []*Code) error {
	for level := 0; level+1 < len(codes); level++ {
		next, err := aggregateHashes(tree.Layers[level], codes[level].K, codes[level+1].K)
		if err != nil {
			return err
		}
		layer, err := encodeLayer(level+1, codes[level+1], next, testBaseSymbolSize)
		if err != nil {
			return err
		}
		tree.Layers[level+1] = layer
	}
	return nil
}
