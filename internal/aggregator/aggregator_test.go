package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/bls"
	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/contract"
	"github.com/aced-network/aced/internal/network"
	"github.com/aced-network/aced/pkg/util"
)

func TestThreshold(t *testing.T) {
	require.Equal(t, 4, Threshold(4)) // ceil(0.9*4)
	require.Equal(t, 9, Threshold(10))
	require.Equal(t, 1, Threshold(1))
}

type harness struct {
	aggs      []*Aggregator
	keys      []*bls.SecretKey
	broadcast []network.Message
	votes     []contract.Vote
}

// newHarness wires numScale aggregators that deliver broadcasts to each
// other synchronously, the way the wire would.
func newHarness(t *testing.T, numScale uint64, numBase uint64) *harness {
	t.Helper()
	h := &harness{}
	for id := uint64(1); id <= numScale; id++ {
		key, _, err := bls.GenerateKey()
		require.NoError(t, err)
		h.keys = append(h.keys, key)
	}
	for id := uint64(1); id <= numScale; id++ {
		id := id
		agg := New(id, numScale, numBase, h.keys[id-1],
			func(msg network.Message) { h.broadcast = append(h.broadcast, msg) },
			func(vote contract.Vote) { h.votes = append(h.votes, vote) },
			zap.NewNop(),
		)
		h.aggs = append(h.aggs, agg)
	}
	return h
}

func shardOf(numBase int) *cmt.Samples {
	indices := make([]uint64, numBase)
	symbols := make([]cmt.Symbol, numBase)
	for i := range indices {
		indices[i] = uint64(i)
		symbols[i] = cmt.NewBaseSymbol(8)
	}
	return &cmt.Samples{
		Header:  []byte("header"),
		Symbols: [][]cmt.Symbol{symbols},
		Indices: [][]uint64{indices},
	}
}

func TestAggregator_SignsAtShardThreshold(t *testing.T) {
	// 64 base symbols, 4 scale nodes: per-node threshold is 14 symbols.
	h := newHarness(t, 4, 64)
	agg := h.aggs[0]

	header := []byte("header")
	agg.RegisterProposal("proposer", 1, header)

	// Below threshold: nothing happens.
	agg.OnShardChunk("proposer", 1, shardOf(10))
	require.Empty(t, h.broadcast)

	// Crossing it: exactly one MySign goes out.
	agg.OnShardChunk("proposer", 1, shardOf(6))
	require.Len(t, h.broadcast, 1)
	sign := h.broadcast[0].(*network.MySign)
	require.Equal(t, uint64(1), sign.BlockID)
	require.Equal(t, uint64(1), sign.ScaleID)
	require.Equal(t, util.BytesToHex(header), sign.HeaderHex)

	// More chunks do not re-sign.
	agg.OnShardChunk("proposer", 1, shardOf(20))
	require.Len(t, h.broadcast, 1)

	// Chunks for unregistered proposals are dropped.
	agg.OnShardChunk("other", 9, shardOf(64))
	require.Len(t, h.broadcast, 1)
}

func TestAggregator_ThresholdTriggersSubmissionExactlyOnce(t *testing.T) {
	// ceil(0.9*3) = 3: the third MySign triggers the submission, any
	// later signature is a no-op.
	const numScale = 3
	h := newHarness(t, numScale, 64)
	collector := New(9, numScale, 64, h.keys[0],
		func(network.Message) {},
		func(vote contract.Vote) { h.votes = append(h.votes, vote) },
		zap.NewNop(),
	)

	header := []byte("shared header")
	headerHex := util.BytesToHex(header)

	signs := make([]*network.MySign, 0, numScale)
	for i, key := range h.keys {
		sig, err := key.Sign(header)
		require.NoError(t, err)
		x, y := sig.Coordinates()
		signs = append(signs, &network.MySign{
			HeaderHex: headerHex, BlockID: 5, SigX: x, SigY: y, ScaleID: uint64(i + 1),
		})
	}

	collector.OnMySign(signs[0])
	require.Empty(t, h.votes)
	collector.OnMySign(signs[1])
	require.Empty(t, h.votes)

	// Exactly at the third signature the submission fires.
	collector.OnMySign(signs[2])
	require.Len(t, h.votes, 1)
	vote := h.votes[0]
	require.Equal(t, uint64(5), vote.BlockID)
	require.Equal(t, uint64(0b1110), vote.Bitset)
	require.Equal(t, 3, bls.CountBits(vote.Bitset))

	// A duplicate and a late extra signature are both no-ops.
	collector.OnMySign(signs[2])
	require.Len(t, h.votes, 1)

	lateKey, _, err := bls.GenerateKey()
	require.NoError(t, err)
	sig, err := lateKey.Sign(header)
	require.NoError(t, err)
	x, y := sig.Coordinates()
	collector.OnMySign(&network.MySign{HeaderHex: headerHex, BlockID: 5, SigX: x, SigY: y, ScaleID: 7})
	require.Len(t, h.votes, 1, "post-threshold signature must not resubmit")
}

func TestAggregator_BitsetMonotone(t *testing.T) {
	h := newHarness(t, 4, 64)
	agg := h.aggs[0]
	header := []byte("h")
	headerHex := util.BytesToHex(header)

	sig, err := h.keys[1].Sign(header)
	require.NoError(t, err)
	x, y := sig.Coordinates()
	msg := &network.MySign{HeaderHex: headerHex, BlockID: 2, SigX: x, SigY: y, ScaleID: 2}

	agg.OnMySign(msg)
	state := agg.votes[headerHex]
	require.Equal(t, uint64(1<<2), state.bitset)
	firstSig := state.sig

	// Same scale id again: bitset and aggregate unchanged.
	agg.OnMySign(msg)
	require.Equal(t, uint64(1<<2), state.bitset)
	require.Equal(t, firstSig, state.sig)
}

func TestAggregator_AggregateVerifies(t *testing.T) {
	// The aggregate produced at threshold verifies against the
	// aggregated public keys of the contributing scale nodes.
	const numScale = 3
	h := newHarness(t, numScale, 64)

	var submitted []contract.Vote
	agg := New(1, numScale, 64, h.keys[0],
		func(network.Message) {},
		func(vote contract.Vote) { submitted = append(submitted, vote) },
		zap.NewNop(),
	)

	header := []byte("verify me")
	headerHex := util.BytesToHex(header)
	var pks []*bls.PublicKey
	for i, key := range h.keys {
		sig, err := key.Sign(header)
		require.NoError(t, err)
		x, y := sig.Coordinates()
		agg.OnMySign(&network.MySign{HeaderHex: headerHex, BlockID: 1, SigX: x, SigY: y, ScaleID: uint64(i + 1)})
		pks = append(pks, key.Public())
	}

	require.Len(t, submitted, 1)
	aggSig, err := bls.SignatureFromCoordinates(submitted[0].SigX, submitted[0].SigY)
	require.NoError(t, err)
	ok, err := bls.Verify(bls.AggregatePublicKeys(pks...), header, aggSig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAggregator_MalformedSignatureDropped(t *testing.T) {
	h := newHarness(t, 4, 64)
	agg := h.aggs[0]
	agg.OnMySign(&network.MySign{HeaderHex: "aa", SigX: "nonsense", SigY: "1", ScaleID: 1})
	require.Empty(t, agg.votes)
}

func TestAggregator_ScaleIDOutOfRange(t *testing.T) {
	h := newHarness(t, 4, 64)
	agg := h.aggs[0]
	sig, err := h.keys[0].Sign([]byte("h"))
	require.NoError(t, err)
	x, y := sig.Coordinates()
	agg.OnMySign(&network.MySign{HeaderHex: "aa", SigX: x, SigY: y, ScaleID: 64})
	require.Empty(t, agg.votes)
}
