package cmt

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
)

// Samples is one node's view of a block's coded symbols: per layer, the
// sampled symbols and their indices (outer index is layer). Indices
// within a layer are unique; order is irrelevant.
type Samples struct {
	Header  []byte     `cbor:"1,keyasint"`
	Symbols [][]Symbol `cbor:"2,keyasint"`
	Indices [][]uint64 `cbor:"3,keyasint"`
}

// NumBase returns the number of base-layer symbols held, the quantity
// availability thresholds are measured against.
func (s *Samples) NumBase() int {
	if len(s.Indices) == 0 {
		return 0
	}
	return len(s.Indices[0])
}

// Merge folds another sample set for the same block into this one,
// deduplicating by index per layer. It returns false without mutating
// anything if the sets disagree on header or layer count.
func (s *Samples) Merge(other *Samples) bool {
	if !bytes.Equal(s.Header, other.Header) {
		return false
	}
	if len(other.Symbols) != len(s.Symbols) || len(other.Indices) != len(s.Indices) {
		return false
	}
	for layer := range s.Indices {
		seen := make(map[uint64]struct{}, len(s.Indices[layer]))
		for _, idx := range s.Indices[layer] {
			seen[idx] = struct{}{}
		}
		for j, idx := range other.Indices[layer] {
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			s.Indices[layer] = append(s.Indices[layer], idx)
			s.Symbols[layer] = append(s.Symbols[layer], other.Symbols[layer][j])
		}
	}
	return true
}

// EncodeSamples serializes a sample set for the wire or the store.
func EncodeSamples(s *Samples) ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeSamples is the inverse of EncodeSamples.
func DecodeSamples(data []byte) (*Samples, error) {
	var s Samples
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
