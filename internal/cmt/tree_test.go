package cmt

import (
	"math/rand"
	"testing"

	"github.com/aced-network/aced/internal/types"
	"github.com/stretchr/testify/require"
)

func decodeTree(t *testing.T, tree *Tree, symbols [][]Symbol, indices [][]uint64) ([]*types.Transaction, *CodingProof) {
	t.Helper()
	dec, err := NewTreeDecoder(testCodes(), tree.Roots(), testBaseSymbolSize)
	require.NoError(t, err)
	return dec.Decode(symbols, indices)
}

func TestTreeDecoder_RoundTrip(t *testing.T) {
	const txCount = 9
	tree, err := Encode(testPayload(txCount), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)

	symbols, indices := fullSamples(tree)
	txs, proof := decodeTree(t, tree, symbols, indices)
	require.Nil(t, proof)
	require.Len(t, txs, txCount, "padding records must be skipped, data records kept")
	for i, tx := range txs {
		require.Equal(t, uint64(i), tx.Nonce)
		require.Equal(t, uint64(i)*10, tx.Value)
		require.Equal(t, byte(i), tx.From[0])
	}
}

func TestTreeDecoder_RecoversFromRandomErasure(t *testing.T) {
	tree, err := Encode(testPayload(6), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)

	// Drop 25% of base symbols at random (seeded), never erasing the
	// last remaining representative of a systematic symbol so the
	// pattern stays information-theoretically decodable.
	rng := rand.New(rand.NewSource(42))
	const n0, k0 = 64, 16
	alive := make([]int, k0)
	for i := range alive {
		alive[i] = 4 // the symbol itself plus its three parity copies
	}
	family := func(idx uint64) int {
		if idx < k0 {
			return int(idx)
		}
		return int(idx-k0) % k0
	}

	dropped := make(map[uint64]bool)
	perm := rng.Perm(n0)
	for _, v := range perm {
		if len(dropped) == n0/4 {
			break
		}
		idx := uint64(v)
		if alive[family(idx)] <= 1 {
			continue
		}
		alive[family(idx)]--
		dropped[idx] = true
	}
	require.Len(t, dropped, n0/4)

	symbols, indices := fullSamples(tree)
	symbols, indices = dropBase(symbols, indices, func(idx uint64) bool { return dropped[idx] })

	txs, proof := decodeTree(t, tree, symbols, indices)
	require.Nil(t, proof)
	require.Len(t, txs, 6)
}

func TestTreeDecoder_PermutationInvariant(t *testing.T) {
	tree, err := Encode(testPayload(4), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)

	symbols, indices := fullSamples(tree)
	rng := rand.New(rand.NewSource(7))
	for layer := range symbols {
		rng.Shuffle(len(symbols[layer]), func(i, j int) {
			symbols[layer][i], symbols[layer][j] = symbols[layer][j], symbols[layer][i]
			indices[layer][i], indices[layer][j] = indices[layer][j], indices[layer][i]
		})
	}

	txs, proof := decodeTree(t, tree, symbols, indices)
	require.Nil(t, proof)
	require.Len(t, txs, 4)
}

func TestTreeDecoder_NotZeroProof(t *testing.T) {
	codes := testCodes()
	tree, err := Encode(testPayload(5), codes, testBaseSymbolSize)
	require.NoError(t, err)

	// The proposer flips a byte in one base-layer parity symbol and
	// commits the tree built over it: hashes verify all the way up, but
	// equation tampered-16 no longer cancels against the systematic
	// original.
	const tampered = 20
	tree.Layers[0][tampered].Data[0] ^= 0x01
	require.NoError(t, rebuildUppers(tree, codes))

	symbols, indices := fullSamples(tree)
	_, proof := decodeTree(t, tree, symbols, indices)
	require.NotNil(t, proof)
	require.Equal(t, ProofNotZero, proof.Kind)
	require.Equal(t, 0, proof.Layer)
	require.Equal(t, uint64(tampered-16), proof.ParityIndex)
	require.Equal(t, []uint64{tampered % 16, tampered}, proof.Indices)
	require.Len(t, proof.Symbols, 2)
	require.Len(t, proof.MerklePaths, 2)
	require.Len(t, proof.MerklePaths[0], 2, "path spans the two layers above")

	// Any verifier accepts the proof against the header roots.
	require.True(t, proof.Verify(tree.Roots(), codes))
}

func TestTreeDecoder_NotHashProof(t *testing.T) {
	codes := testCodes()
	tree, err := Encode(testPayload(5), codes, testBaseSymbolSize)
	require.NoError(t, err)

	// A malicious proposer alters base systematic symbol 3 and rebuilds
	// the hash layers so the tree stays self-consistent above, but does
	// not recompute the base parities. Honest copies of the original
	// value then peel a symbol whose hash misses its commitment.
	const bad = 3
	tree.Layers[0][bad].Data[0] ^= 0xff
	require.NoError(t, rebuildUppers(tree, codes))

	symbols, indices := fullSamples(tree)
	for i, idx := range indices[0] {
		if idx == bad {
			symbols[0] = append(symbols[0][:i], symbols[0][i+1:]...)
			indices[0] = append(indices[0][:i], indices[0][i+1:]...)
			break
		}
	}
	_, proof := decodeTree(t, tree, symbols, indices)
	require.NotNil(t, proof)
	require.Equal(t, ProofNotHash, proof.Kind)
	require.Equal(t, 0, proof.Layer)
	require.Equal(t, uint64(bad), proof.Indices[len(proof.Indices)-1], "unmatched symbol is placed last")
	require.Len(t, proof.Symbols, len(proof.Indices)-1)

	require.True(t, proof.Verify(tree.Roots(), codes))
}

func TestTreeDecoder_StoppingSet(t *testing.T) {
	tree, err := Encode(testPayload(5), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)

	// Erase two whole systematic families (the symbol and every parity
	// copy): every equation touching them keeps two unknowns and the
	// peeler stalls.
	gone := func(idx uint64) bool {
		f := idx
		if idx >= 16 {
			f = (idx - 16) % 16
		}
		return f == 2 || f == 9
	}
	symbols, indices := fullSamples(tree)
	symbols, indices = dropBase(symbols, indices, gone)

	_, proof := decodeTree(t, tree, symbols, indices)
	require.NotNil(t, proof)
	require.Equal(t, ProofStopped, proof.Kind)
	require.Equal(t, 0, proof.Layer)
	require.Len(t, proof.StoppingSet, 8)
	require.InDelta(t, 8.0/64.0, proof.StoppingRatio, 1e-9)
	require.GreaterOrEqual(t, proof.StoppingRatio, 1.0-types.UndecodableRatio)
	require.True(t, proof.Verify(tree.Roots(), testCodes()))
}

func TestTreeDecoder_ThresholdBoundary(t *testing.T) {
	tree, err := Encode(testPayload(5), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)

	// Exactly one representative per systematic family decodes; removing
	// one more leaves a stopping set.
	keep := func(idx uint64) bool { return idx < 16 }
	symbols, indices := fullSamples(tree)
	symbols, indices = dropBase(symbols, indices, func(idx uint64) bool { return !keep(idx) })

	txs, proof := decodeTree(t, tree, symbols, indices)
	require.Nil(t, proof)
	require.NotEmpty(t, txs)

	symbols, indices = fullSamples(tree)
	symbols, indices = dropBase(symbols, indices, func(idx uint64) bool { return !keep(idx) || idx == 5 })
	_, proof = decodeTree(t, tree, symbols, indices)
	require.NotNil(t, proof)
	require.Equal(t, ProofStopped, proof.Kind)
}

func TestSamples_MergeDeduplicates(t *testing.T) {
	tree, err := Encode(testPayload(3), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)

	header := []byte("header")
	a := tree.Shard(header, SampleIndices(1, 64, 2))
	b := tree.Shard(header, SampleIndices(2, 64, 2))
	overlap := tree.Shard(header, SampleIndices(1, 64, 2))

	require.True(t, a.Merge(b))
	require.Equal(t, 64, a.NumBase())

	before := a.NumBase()
	require.True(t, a.Merge(overlap))
	require.Equal(t, before, a.NumBase(), "duplicate indices must not accumulate")

	mismatch := tree.Shard([]byte("other"), SampleIndices(2, 64, 2))
	require.False(t, a.Merge(mismatch))
}

func TestSamples_EncodeDecode(t *testing.T) {
	tree, err := Encode(testPayload(3), testCodes(), testBaseSymbolSize)
	require.NoError(t, err)
	shard := tree.Shard([]byte("h"), SampleIndices(1, 64, 4))

	data, err := EncodeSamples(shard)
	require.NoError(t, err)
	back, err := DecodeSamples(data)
	require.NoError(t, err)
	require.Equal(t, shard.Header, back.Header)
	require.Equal(t, shard.Indices, back.Indices)
	require.Equal(t, shard.Symbols[0][0].Data, back.Symbols[0][0].Data)
	require.Equal(t, shard.NumBase(), back.NumBase())
}
