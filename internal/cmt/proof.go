package cmt

import (
	"bytes"
	"fmt"

	"github.com/aced-network/aced/internal/types"
)

// ProofKind is the incorrect-coding condition a proof witnesses.
type ProofKind uint8

const (
	// ProofNotZero: a fully-resolved parity equation does not sum to zero.
	ProofNotZero ProofKind = iota + 1
	// ProofNotHash: a peeled symbol does not match its expected hash.
	ProofNotHash
	// ProofStopped: the received sample pattern hit a stopping set.
	ProofStopped
)

func (k ProofKind) String() string {
	switch k {
	case ProofNotZero:
		return "NotZero"
	case ProofNotHash:
		return "NotHash"
	case ProofStopped:
		return "Stopped"
	}
	return "Unknown"
}

// CodingProof is a compact witness that a block's coded Merkle tree was
// constructed inconsistently with the code (or that the published coding
// is undecodable). It doubles as the decoder's error value: decoding a
// block either yields its transactions or one of these.
type CodingProof struct {
	Kind        ProofKind `cbor:"1,keyasint"`
	Layer       int       `cbor:"2,keyasint"`
	ParityIndex uint64    `cbor:"3,keyasint"`
	Indices     []uint64  `cbor:"4,keyasint,omitempty"`
	Symbols     []Symbol  `cbor:"5,keyasint,omitempty"`
	// MerklePaths[t] authenticates Symbols[t] up to the header roots:
	// the containing parent symbol at each layer above, in order.
	MerklePaths [][]Symbol `cbor:"6,keyasint,omitempty"`

	StoppingSet   []uint64 `cbor:"7,keyasint,omitempty"`
	StoppingRatio float64  `cbor:"8,keyasint,omitempty"`
}

// Error lets a CodingProof propagate up the tree-decoder loop as an error
// without losing the witness.
func (p *CodingProof) Error() string {
	switch p.Kind {
	case ProofStopped:
		return fmt.Sprintf("%s coding proof: layer %d, stopping ratio %.3f", p.Kind, p.Layer, p.StoppingRatio)
	default:
		return fmt.Sprintf("%s coding proof: layer %d, parity equation %d", p.Kind, p.Layer, p.ParityIndex)
	}
}

// verifyMerklePath checks that symHash is carried, slot by slot, through
// the parent symbols in path up to one of the header roots. k is the
// systematic count of the symbol's own layer.
func verifyMerklePath(index int, k int, symHash [32]byte, path []Symbol, roots [][32]byte) bool {
	cur := symHash
	idx := index
	for _, parent := range path {
		if parent.Kind != KindUpper || len(parent.Data) != UpperSymbolSize {
			return false
		}
		slot := childSlot(idx, k)
		if !bytes.Equal(parent.Data[slot*32:(slot+1)*32], cur[:]) {
			return false
		}
		idx = parentIndexOf(idx, k)
		k /= reduceFactor
		cur = parent.Hash()
	}
	if idx >= len(roots) {
		return false
	}
	return cur == roots[idx]
}

// VerifyMerklePath checks that a symbol at index on a layer with k
// systematic symbols is authenticated by path up to the header roots.
// Light nodes use this to validate sampled symbols.
func VerifyMerklePath(index, k int, sym *Symbol, path []Symbol, roots [][32]byte) bool {
	if sym.IsEmpty() {
		return false
	}
	return verifyMerklePath(index, k, sym.Hash(), path, roots)
}

// Verify checks a coding proof against a header's root hashes and the
// code set the block claims to be encoded with. Any node can run this;
// it needs no block data beyond the proof itself.
func (p *CodingProof) Verify(roots [][32]byte, codes []*Code) bool {
	if p.Layer < 0 || p.Layer >= len(codes) {
		return false
	}
	code := codes[p.Layer]

	switch p.Kind {
	case ProofStopped:
		n := float64(code.N())
		if len(p.StoppingSet) == 0 || float64(len(p.StoppingSet))/n < p.StoppingRatio {
			return false
		}
		return p.StoppingRatio >= 1.0-types.UndecodableRatio

	case ProofNotZero, ProofNotHash:
		if int(p.ParityIndex) >= code.P() {
			return false
		}
		if len(p.Indices) != len(code.Parities[p.ParityIndex]) {
			return false
		}
		if len(p.Symbols) < len(p.Indices)-1 || len(p.MerklePaths) < len(p.Symbols) {
			return false
		}

		// Authenticate every carried symbol against the roots, XORing
		// the values as we go.
		var xor Symbol
		for t, sym := range p.Symbols {
			if !verifyMerklePath(int(p.Indices[t]), code.K, sym.Hash(), p.MerklePaths[t], roots) {
				return false
			}
			if t == 0 {
				xor = sym.Clone()
			} else {
				if len(sym.Data) != len(xor.Data) {
					return false
				}
				xor.XorInto(sym.Data)
			}
		}

		if p.Kind == ProofNotZero {
			// All participants carried; incorrect iff they do not cancel.
			return !xor.IsZero()
		}

		// NotHash: the unmatched symbol is the last index and is implied
		// by the XOR of its siblings. The proof stands iff the implied
		// value fails its authenticated hash slot.
		bad := int(p.Indices[len(p.Indices)-1])
		badPath := p.MerklePaths[len(p.MerklePaths)-1]
		if len(badPath) == 0 {
			// Top layer: the expected hash is the header root itself.
			if bad >= len(roots) {
				return false
			}
			implied := xor.Hash()
			return implied != roots[bad]
		}
		parent := badPath[0]
		if parent.Kind != KindUpper || len(parent.Data) != UpperSymbolSize {
			return false
		}
		slot := childSlot(bad, code.K)
		implied := xor.Hash()
		if bytes.Equal(parent.Data[slot*32:(slot+1)*32], implied[:]) {
			return false
		}
		// The claimed expected hash must itself be authentic.
		return verifyMerklePath(parentIndexOf(bad, code.K), code.K/reduceFactor, parent.Hash(), badPath[1:], roots)
	}
	return false
}
