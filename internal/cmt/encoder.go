package cmt

import (
	"fmt"

	"github.com/aced-network/aced/internal/types"
)

// Tree is a fully constructed coded Merkle tree: every layer's n coded
// symbols, base layer first.
type Tree struct {
	Layers [][]Symbol
	kSet   []int
}

// Encode builds the coded Merkle tree for a block payload. The payload is
// padded with zeros to the base layer's systematic capacity
// (codes[0].K * baseSymbolSize bytes); longer payloads are an error.
// Each layer's parities are derived by peeling over the layer's encode
// matrix; hashes of a layer's n symbols become the systematic symbols of
// the layer above, interleaved so systematic and parity digests occupy
// disjoint slot ranges of each upper symbol.
//
// Given identical code tables and identical padded input, the tree is
// byte-exact.
func Encode(payload []byte, codes []*Code, baseSymbolSize int) (*Tree, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no codes")
	}
	k0 := codes[0].K
	capacity := k0 * baseSymbolSize
	if len(payload) > capacity {
		return nil, fmt.Errorf("payload is %d bytes, capacity %d", len(payload), capacity)
	}

	padded := make([]byte, capacity)
	copy(padded, payload)

	systematic := make([]Symbol, k0)
	for i := 0; i < k0; i++ {
		sym := NewBaseSymbol(baseSymbolSize)
		copy(sym.Data, padded[i*baseSymbolSize:(i+1)*baseSymbolSize])
		systematic[i] = sym
	}

	tree := &Tree{}
	for level, code := range codes {
		if len(systematic) != code.K {
			return nil, fmt.Errorf("layer %d: %d systematic symbols, code wants %d", level, len(systematic), code.K)
		}
		layer, err := encodeLayer(level, code, systematic, baseSymbolSize)
		if err != nil {
			return nil, err
		}
		tree.Layers = append(tree.Layers, layer)
		tree.kSet = append(tree.kSet, code.K)

		if level+1 < len(codes) {
			next, err := aggregateHashes(layer, code.K, codes[level+1].K)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", level, err)
			}
			systematic = next
		}
	}
	return tree, nil
}

// encodeLayer derives a layer's n-k parity symbols from its k systematic
// ones by running the ungated peeling process over the encode matrix:
// every symbol is trusted by construction here, so there is no hash gate.
func encodeLayer(level int, code *Code, systematic []Symbol, baseSymbolSize int) ([]Symbol, error) {
	d := newLayerDecoder(level, code, baseSymbolSize)

	indices := make([]int, code.K)
	for i := range indices {
		indices[i] = i
	}
	fresh, freshIdx, done := d.ingest(systematic, indices)
	progress := d.parityUpdate(fresh, freshIdx)

	for !done {
		if !progress {
			return nil, fmt.Errorf("layer %d: encode matrix is not peelable (%d of %d symbols solved)", level, d.decoded, d.n)
		}
		fresh, freshIdx, done, _ = d.peel(false, nil)
		progress = d.parityUpdate(fresh, freshIdx)
	}
	return d.symbols, nil
}

// aggregateHashes hashes a layer's n symbols and packs the digests into
// the next layer's kNext systematic upper symbols. Child c lands in slot
// childSlot(c, k) of parent parentIndexOf(c, k).
func aggregateHashes(layer []Symbol, k, kNext int) ([]Symbol, error) {
	n := len(layer)
	if n != kNext*types.Aggregate {
		return nil, fmt.Errorf("%d symbols cannot aggregate into %d groups of %d", n, kNext, types.Aggregate)
	}
	next := make([]Symbol, kNext)
	for i := range next {
		next[i] = NewUpperSymbol()
	}
	for c := 0; c < n; c++ {
		h := layer[c].Hash()
		parent := parentIndexOf(c, k)
		slot := childSlot(c, k)
		copy(next[parent].Data[slot*32:(slot+1)*32], h[:])
	}
	return next, nil
}

// Height is the number of layers.
func (t *Tree) Height() int {
	return len(t.Layers)
}

// Roots returns the hashes of the top layer's coded symbols, the values
// anchored in the block header.
func (t *Tree) Roots() [][32]byte {
	top := t.Layers[len(t.Layers)-1]
	roots := make([][32]byte, len(top))
	for i := range top {
		roots[i] = top[i].Hash()
	}
	return roots
}

// HeaderRoots returns the top-layer hashes as the fixed-size header
// field; the top layer must have exactly HeaderSize symbols.
func (t *Tree) HeaderRoots() ([types.HeaderSize][32]byte, error) {
	var out [types.HeaderSize][32]byte
	roots := t.Roots()
	if len(roots) != types.HeaderSize {
		return out, fmt.Errorf("top layer has %d symbols, header carries %d", len(roots), types.HeaderSize)
	}
	copy(out[:], roots)
	return out, nil
}

// Shard extracts the sample set for one scale node: its base-layer
// indices plus, per upper layer, the deduplicated ancestors of those
// indices. The union of all shards covers every base-layer symbol and,
// on each upper layer, the systematic symbols only.
func (t *Tree) Shard(header []byte, baseIndices []uint64) *Samples {
	s := &Samples{Header: header}

	indices := baseIndices
	for level, layer := range t.Layers {
		syms := make([]Symbol, 0, len(indices))
		for _, idx := range indices {
			syms = append(syms, layer[idx].Clone())
		}
		s.Symbols = append(s.Symbols, syms)
		s.Indices = append(s.Indices, indices)

		if level+1 < len(t.Layers) {
			// A shard's next-layer content is the ancestors of what it
			// already holds. The union over all shards covers the whole
			// systematic range above, from which peeling re-derives the
			// upper parities under the hash gate.
			k := t.kSet[level]
			seen := make(map[uint64]struct{}, len(indices))
			var parents []uint64
			for _, idx := range indices {
				p := uint64(parentIndexOf(int(idx), k))
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				parents = append(parents, p)
			}
			indices = parents
		}
	}
	return s
}

// MerklePath returns the authenticating path for a base-layer symbol:
// the containing parent symbol at every layer above, bottom-up. Serving
// nodes attach these to light-node sample responses.
func (t *Tree) MerklePath(index int) []Symbol {
	var path []Symbol
	idx := index
	for level := 0; level+1 < len(t.Layers); level++ {
		idx = parentIndexOf(idx, t.kSet[level])
		path = append(path, t.Layers[level+1][idx].Clone())
	}
	return path
}

// SampleIndices returns the contiguous base-layer index range owned by a
// 1-based scale id when numSymbols symbols are split across numNodes.
func SampleIndices(scaleID, numSymbols, numNodes uint64) []uint64 {
	per := (numSymbols + numNodes - 1) / numNodes
	start := (scaleID - 1) * per
	stop := scaleID * per
	if stop > numSymbols {
		stop = numSymbols
	}
	var out []uint64
	for i := start; i < stop; i++ {
		out = append(out, i)
	}
	return out
}
