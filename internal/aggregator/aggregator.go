// Package aggregator implements the scale-node side of the availability
// vote: count the shard symbols received for a proposed block, sign the
// header once the shard is sufficiently complete, and fold every scale
// node's signature into one aggregated vote submitted to the anchor
// contract at the threshold.
package aggregator

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/bls"
	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/contract"
	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/network"
	"github.com/aced-network/aced/internal/types"
	"github.com/aced-network/aced/pkg/util"
)

// Threshold returns the number of scale signatures required before the
// aggregated vote is submitted.
func Threshold(numScale uint64) int {
	return int(math.Ceil(types.UndecodableRatio * float64(numScale)))
}

type proposalKey struct {
	proposer string
	blockID  uint64
}

// proposalState tracks shard reception for one proposed block.
type proposalState struct {
	header    []byte
	baseCount int
	signed    bool
}

// voteState is the running aggregate for one header.
type voteState struct {
	sig       *bls.Signature
	bitset    uint64
	sid       uint64
	blockID   uint64
	submitted bool
}

// Aggregator is one scale node's vote state machine. State is keyed by
// (proposer, block id) for shard progress and by header for signature
// aggregation, so stale or duplicate messages are harmless.
type Aggregator struct {
	scaleID  uint64
	numScale uint64
	numBase  uint64
	key      *bls.SecretKey

	broadcast func(network.Message)
	submit    func(contract.Vote)
	logger    *zap.Logger

	mu        sync.Mutex
	proposals map[proposalKey]*proposalState
	votes     map[string]*voteState
}

// New creates an aggregator. numBase is the base-layer code length the
// shard-completeness threshold is measured against.
func New(
	scaleID, numScale, numBase uint64,
	key *bls.SecretKey,
	broadcast func(network.Message),
	submit func(contract.Vote),
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		scaleID:   scaleID,
		numScale:  numScale,
		numBase:   numBase,
		key:       key,
		broadcast: broadcast,
		submit:    submit,
		logger:    logger,
		proposals: make(map[proposalKey]*proposalState),
		votes:     make(map[string]*voteState),
	}
}

// chunkThreshold is the per-node base-symbol count above which this
// node's shard is considered complete enough to attest.
func (a *Aggregator) chunkThreshold() int {
	return int(float64(a.numBase) * types.UndecodableRatio / float64(a.numScale))
}

// RegisterProposal records an accepted ProposeBlock so subsequent shard
// chunks have somewhere to accumulate.
func (a *Aggregator) RegisterProposal(proposer string, blockID uint64, header []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := proposalKey{proposer, blockID}
	if _, ok := a.proposals[key]; ok {
		return
	}
	a.proposals[key] = &proposalState{header: header}
}

// OnShardChunk accumulates a shard delivery for a registered proposal.
// Crossing the completeness threshold signs the header exactly once and
// broadcasts our MySign (also folding it into the local aggregate).
func (a *Aggregator) OnShardChunk(proposer string, blockID uint64, samples *cmt.Samples) {
	a.mu.Lock()
	state, ok := a.proposals[proposalKey{proposer, blockID}]
	if !ok {
		a.mu.Unlock()
		a.logger.Debug("shard chunk without registered proposal",
			zap.Uint64("block_id", blockID))
		return
	}
	state.baseCount += samples.NumBase()
	ready := !state.signed && state.baseCount > a.chunkThreshold()
	if ready {
		state.signed = true
	}
	header := state.header
	a.mu.Unlock()

	if !ready {
		return
	}

	sig, err := a.key.Sign(header)
	if err != nil {
		a.logger.Error("header signing failed", zap.Error(err))
		return
	}
	metrics.VotesSigned.Inc()

	sigX, sigY := sig.Coordinates()
	msg := &network.MySign{
		HeaderHex: util.BytesToHex(header),
		SID:       0,
		BlockID:   blockID,
		SigX:      sigX,
		SigY:      sigY,
		ScaleID:   a.scaleID,
	}
	a.logger.Info("shard complete, header signed",
		zap.Uint64("block_id", blockID),
		zap.Uint64("scale_id", a.scaleID),
	)
	a.broadcast(msg)
	a.OnMySign(msg)
}

// OnMySign folds one scale node's signature into the aggregate for its
// header. Aggregation is monotone: a scale id whose bit is already set
// is a no-op, and the submission fires exactly once, when the popcount
// reaches the threshold.
func (a *Aggregator) OnMySign(msg *network.MySign) {
	if msg.ScaleID >= 64 {
		a.logger.Warn("scale id out of bitset range", zap.Uint64("scale_id", msg.ScaleID))
		return
	}
	sig, err := bls.SignatureFromCoordinates(msg.SigX, msg.SigY)
	if err != nil {
		a.logger.Debug("malformed signature dropped", zap.Error(err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.votes[msg.HeaderHex]
	if !ok {
		state = &voteState{sig: sig, bitset: 1 << msg.ScaleID, sid: msg.SID, blockID: msg.BlockID}
		a.votes[msg.HeaderHex] = state
	} else {
		bit := uint64(1) << msg.ScaleID
		if state.bitset&bit != 0 {
			// Duplicate contribution from this scale id.
			return
		}
		state.sig = bls.Aggregate(state.sig, sig)
		state.bitset |= bit
	}

	if state.submitted || bls.CountBits(state.bitset) < Threshold(a.numScale) {
		return
	}
	state.submitted = true

	sigX, sigY := state.sig.Coordinates()
	vote := contract.Vote{
		HeaderHex: msg.HeaderHex,
		SID:       state.sid,
		BlockID:   state.blockID,
		SigX:      sigX,
		SigY:      sigY,
		Bitset:    state.bitset,
	}
	a.logger.Info("vote threshold reached",
		zap.Uint64("block_id", state.blockID),
		zap.Int("signers", bls.CountBits(state.bitset)),
	)
	a.submit(vote)
}

// HasProposal reports whether a proposal is registered.
func (a *Aggregator) HasProposal(proposer string, blockID uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.proposals[proposalKey{proposer, blockID}]
	return ok
}

// DropProposal forgets the shard progress of an abandoned block; cached
// samples stay wherever they were stored.
func (a *Aggregator) DropProposal(proposer string, blockID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.proposals, proposalKey{proposer, blockID})
}
