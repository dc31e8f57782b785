package cmt

import (
	"fmt"

	"github.com/aced-network/aced/internal/types"
)

// TreeDecoder reconstructs a block from sampled coded symbols, layer by
// layer from the top of the coded Merkle tree down. Expected hashes for
// the top layer come from the block header; each decoded layer's
// systematic symbols yield the expected hashes for the layer below.
type TreeDecoder struct {
	height   int
	decoders []*layerDecoder
	hashes   [][][32]byte
}

// NewTreeDecoder builds a decoder for the given per-layer codes (base
// layer first) anchored at the header's top-layer root hashes.
func NewTreeDecoder(codes []*Code, roots [][32]byte, baseSymbolSize int) (*TreeDecoder, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no codes")
	}
	top := codes[len(codes)-1]
	if len(roots) < top.N() {
		return nil, fmt.Errorf("got %d root hashes, top layer has %d symbols", len(roots), top.N())
	}

	t := &TreeDecoder{height: len(codes)}
	for level, code := range codes {
		t.decoders = append(t.decoders, newLayerDecoder(level, code, baseSymbolSize))
		t.hashes = append(t.hashes, make([][32]byte, code.N()))
	}
	copy(t.hashes[t.height-1], roots[:top.N()])
	return t, nil
}

// Decode runs the full top-down tree decode over the received samples
// (outer index: layer). It returns the recovered transactions, or the
// incorrect-coding proof that terminated decoding.
func (t *TreeDecoder) Decode(symbols [][]Symbol, indices [][]uint64) ([]*types.Transaction, *CodingProof) {
	if len(symbols) < t.height || len(indices) < t.height {
		return nil, &CodingProof{Kind: ProofStopped, Layer: t.height - 1, StoppingRatio: 1.0}
	}

	for i := t.height - 1; i >= 0; i-- {
		d := t.decoders[i]

		recvIdx := make([]int, len(indices[i]))
		for pos, v := range indices[i] {
			recvIdx[pos] = int(v)
		}
		fresh, freshIdx, done := d.ingest(symbols[i], recvIdx)
		progress := d.parityUpdate(fresh, freshIdx)
		if j, ok := d.checkParities(); !ok {
			return nil, t.notZeroProof(i, j)
		}

		for !done {
			if !progress {
				set := d.stoppingSet()
				return nil, &CodingProof{
					Kind:          ProofStopped,
					Layer:         i,
					StoppingSet:   set,
					StoppingRatio: float64(len(set)) / float64(d.n),
				}
			}
			var bad *hashMismatch
			fresh, freshIdx, done, bad = d.peel(true, t.hashes[i])
			if bad != nil {
				return nil, t.notHashProof(i, bad)
			}
			progress = d.parityUpdate(fresh, freshIdx)
			if j, ok := d.checkParities(); !ok {
				return nil, t.notZeroProof(i, j)
			}
		}

		if i > 0 {
			t.hashes[i-1] = childHashes(d.systematic(), t.decoders[i-1].n)
		}
	}

	return t.extractTransactions(), nil
}

// extractTransactions concatenates the decoded base-layer systematic
// symbols and slices them into fixed-size records. Records that fail to
// deserialize are block padding and are skipped.
func (t *TreeDecoder) extractTransactions() []*types.Transaction {
	base := t.decoders[0]
	var payload []byte
	for _, sym := range base.systematic() {
		payload = append(payload, sym.Data...)
	}

	numTrans := len(payload) / types.TransactionSize
	txs := make([]*types.Transaction, 0, numTrans)
	for d := 0; d < numTrans; d++ {
		record := payload[d*types.TransactionSize : (d+1)*types.TransactionSize]
		tx, err := types.DeserializeTransaction(record)
		if err != nil {
			continue
		}
		txs = append(txs, tx)
	}
	return txs
}

// childHashes derives the expected hashes of the layer below from a
// decoded layer's k systematic symbols, undoing the encoder's
// interleaving: child c of the lower layer (with kPrev systematic
// symbols) finds its digest at slot childSlot(c, kPrev) of parent
// parentIndexOf(c, kPrev).
func childHashes(systematic []Symbol, nPrev int) [][32]byte {
	kPrev := int(float64(nPrev) * types.Rate)
	hashes := make([][32]byte, nPrev)
	for c := 0; c < nPrev; c++ {
		parent := systematic[parentIndexOf(c, kPrev)]
		slot := childSlot(c, kPrev)
		copy(hashes[c][:], parent.Data[slot*32:(slot+1)*32])
	}
	return hashes
}

// merklePath collects the containing parent symbol at every layer above
// (lvl, index), ordered bottom-up. Valid once all layers above lvl are
// decoded, which always holds when a proof is being built.
func (t *TreeDecoder) merklePath(lvl, index int) []Symbol {
	var path []Symbol
	idx := index
	k := t.decoders[lvl].k
	for i := lvl; i < t.height-1; i++ {
		idx = parentIndexOf(idx, k)
		path = append(path, t.decoders[i+1].symbols[idx].Clone())
		k /= reduceFactor
	}
	return path
}

func (t *TreeDecoder) notZeroProof(layer, parity int) *CodingProof {
	d := t.decoders[layer]
	members := d.code.Parities[parity]

	proof := &CodingProof{Kind: ProofNotZero, Layer: layer, ParityIndex: uint64(parity)}
	for _, i := range members {
		proof.Indices = append(proof.Indices, uint64(i))
		proof.Symbols = append(proof.Symbols, d.symbols[i].Clone())
		proof.MerklePaths = append(proof.MerklePaths, t.merklePath(layer, i))
	}
	return proof
}

func (t *TreeDecoder) notHashProof(layer int, bad *hashMismatch) *CodingProof {
	d := t.decoders[layer]

	proof := &CodingProof{Kind: ProofNotHash, Layer: layer, ParityIndex: uint64(bad.parity)}
	for _, i := range d.code.Parities[bad.parity] {
		if i == bad.symbol {
			continue
		}
		proof.Indices = append(proof.Indices, uint64(i))
		proof.Symbols = append(proof.Symbols, d.symbols[i].Clone())
		proof.MerklePaths = append(proof.MerklePaths, t.merklePath(layer, i))
	}
	// The unmatched symbol goes last; verifiers re-derive its value from
	// the siblings' XOR.
	proof.Indices = append(proof.Indices, uint64(bad.symbol))
	proof.MerklePaths = append(proof.MerklePaths, t.merklePath(layer, bad.symbol))
	return proof
}
