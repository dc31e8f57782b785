package cmt

import (
	"github.com/aced-network/aced/internal/types"
	"github.com/aced-network/aced/pkg/util"
)

// SymbolKind discriminates the three symbol variants.
type SymbolKind uint8

const (
	// KindEmpty is a placeholder for a symbol not yet known to the decoder.
	KindEmpty SymbolKind = iota
	// KindBase is a payload-carrying base-layer symbol.
	KindBase
	// KindUpper is an upper-layer symbol: Aggregate concatenated digests.
	KindUpper
)

// UpperSymbolSize is the byte size of every upper-layer symbol.
const UpperSymbolSize = 32 * types.Aggregate

// Symbol is one coded symbol of a CMT layer. The buffer is allocated once
// when the symbol is created and mutated in place; the peeling decoder's
// hot path is XOR accumulation and must not allocate per step.
type Symbol struct {
	Kind SymbolKind `cbor:"1,keyasint"`
	Data []byte     `cbor:"2,keyasint,omitempty"`
}

// EmptySymbol returns the not-yet-known placeholder.
func EmptySymbol() Symbol {
	return Symbol{Kind: KindEmpty}
}

// NewBaseSymbol returns a zeroed base symbol of the given size.
func NewBaseSymbol(size int) Symbol {
	return Symbol{Kind: KindBase, Data: make([]byte, size)}
}

// NewUpperSymbol returns a zeroed upper symbol.
func NewUpperSymbol() Symbol {
	return Symbol{Kind: KindUpper, Data: make([]byte, UpperSymbolSize)}
}

// IsEmpty reports whether the symbol value is still unknown.
func (s *Symbol) IsEmpty() bool {
	return s.Kind == KindEmpty
}

// XorInto XORs src into the symbol's buffer in place. Calling it on an
// Empty symbol or with a mismatched length is a programmer error.
func (s *Symbol) XorInto(src []byte) {
	if s.Kind == KindEmpty || len(src) != len(s.Data) {
		panic("cmt: xor into empty or mismatched symbol")
	}
	for i, b := range src {
		s.Data[i] ^= b
	}
}

// IsZero reports whether every byte of the symbol is zero. Callers must
// not invoke it on Empty symbols.
func (s *Symbol) IsZero() bool {
	if s.Kind == KindEmpty {
		return false
	}
	for _, b := range s.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hash returns the double-SHA256 digest of the symbol payload.
func (s *Symbol) Hash() [32]byte {
	return util.DoubleSHA256(s.Data)
}

// Clone returns a deep copy. Decoder state keeps sole ownership of its
// buffers; anything handed outward is cloned.
func (s *Symbol) Clone() Symbol {
	if s.Kind == KindEmpty {
		return EmptySymbol()
	}
	data := make([]byte, len(s.Data))
	copy(data, s.Data)
	return Symbol{Kind: s.Kind, Data: data}
}
