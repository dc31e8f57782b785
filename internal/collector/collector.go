// Package collector reconstructs blocks for non-proposing nodes: watch
// the anchor contract for newly voted blocks, pull stored samples from
// the scale nodes, and run the tree decoder once enough of the base
// layer is in hand. Decoded blocks advance the local chain strictly in
// prefix order.
package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/chain"
	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/contract"
	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/network"
	"github.com/aced-network/aced/internal/store"
	"github.com/aced-network/aced/internal/types"
)

// DefaultPollInterval is how often the anchor contract is polled.
const DefaultPollInterval = 2 * time.Second

// pendingBlock accumulates sample replies for one anchored block.
type pendingBlock struct {
	state   types.ContractState
	samples *cmt.Samples
	done    bool
}

// Collector pulls shards and decodes blocks.
type Collector struct {
	client  contract.Client
	chain   *chain.Chain
	store   *store.Store
	codes   []*cmt.Code
	numBase int

	baseSymbolSize int

	// PollInterval is how often the contract is polled; adjust before
	// Run is called.
	PollInterval time.Duration

	broadcast func(network.Message)
	// OnProof, when set, receives every incorrect-coding proof the
	// decoder emits so the node can hand it to verifiers.
	OnProof func(*cmt.CodingProof)

	logger *zap.Logger

	mu      sync.Mutex
	pending map[uint64]*pendingBlock
	ready   map[uint64]types.ContractState
}

// New creates a collector decoding with the given code set.
func New(
	client contract.Client,
	localChain *chain.Chain,
	blockStore *store.Store,
	codesForDecoding []*cmt.Code,
	baseSymbolSize int,
	broadcast func(network.Message),
	logger *zap.Logger,
) *Collector {
	return &Collector{
		client:         client,
		chain:          localChain,
		store:          blockStore,
		codes:          codesForDecoding,
		numBase:        codesForDecoding[0].N(),
		baseSymbolSize: baseSymbolSize,
		PollInterval:   DefaultPollInterval,
		broadcast:      broadcast,
		logger:         logger,
		pending:        make(map[uint64]*pendingBlock),
		ready:          make(map[uint64]types.ContractState),
	}
}

// Run polls the anchor contract until the context is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Collector) poll(ctx context.Context) {
	state, err := c.client.GetCurrState(ctx)
	if err != nil {
		c.logger.Warn("contract poll failed", zap.Error(err))
		return
	}
	c.Register(state)
}

// Register records an anchored state and asks the scale nodes for the
// block's samples, unless the block is already known.
func (c *Collector) Register(state types.ContractState) {
	if state.BlockID == 0 || c.chain.Has(state.BlockID) {
		return
	}

	c.mu.Lock()
	if _, ok := c.pending[state.BlockID]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[state.BlockID] = &pendingBlock{state: state}
	c.mu.Unlock()

	c.logger.Info("collecting block", zap.Uint64("block_id", state.BlockID))
	c.broadcast(&network.ScaleGetAllChunks{State: state})
}

// OnChunks merges one scale node's sample reply. Replies for unknown or
// finished blocks are ignored; a reply that pushes the base layer past
// the decodable fraction triggers the tree decode.
func (c *Collector) OnChunks(msg *network.ScaleGetAllChunksReply) {
	if msg.Samples == nil {
		return
	}

	c.mu.Lock()
	pb, ok := c.pending[msg.BlockID]
	if !ok || pb.done {
		c.mu.Unlock()
		return
	}
	if pb.samples == nil {
		pb.samples = msg.Samples
	} else if !pb.samples.Merge(msg.Samples) {
		c.mu.Unlock()
		c.logger.Warn("sample reply mismatch dropped", zap.Uint64("block_id", msg.BlockID))
		return
	}
	enough := float64(pb.samples.NumBase()) > float64(c.numBase)*types.UndecodableRatio
	if enough {
		pb.done = true
	}
	samples := pb.samples
	state := pb.state
	c.mu.Unlock()

	if enough {
		c.decode(state, samples)
	}
}

func (c *Collector) decode(state types.ContractState, samples *cmt.Samples) {
	header, err := types.DeserializeHeader(samples.Header)
	if err != nil {
		c.logger.Error("undecodable header in samples",
			zap.Uint64("block_id", state.BlockID), zap.Error(err))
		return
	}

	decoder, err := cmt.NewTreeDecoder(c.codes, header.Roots(), c.baseSymbolSize)
	if err != nil {
		c.logger.Error("decoder construction failed", zap.Error(err))
		return
	}

	start := time.Now()
	txs, proof := decoder.Decode(samples.Symbols, samples.Indices)
	metrics.DecodeSeconds.Observe(time.Since(start).Seconds())

	if proof != nil {
		metrics.FraudProofs.WithLabelValues(proof.Kind.String()).Inc()
		c.logger.Warn("incorrect coding detected",
			zap.Uint64("block_id", state.BlockID),
			zap.String("kind", proof.Kind.String()),
			zap.Int("layer", proof.Layer),
		)
		if c.OnProof != nil {
			c.OnProof(proof)
		}
		return
	}

	block := &types.Block{Header: *header, Transactions: txs}
	if err := c.store.PutBlock(state.BlockID, block); err != nil {
		c.logger.Error("block persist failed",
			zap.Uint64("block_id", state.BlockID), zap.Error(err))
		return
	}
	metrics.BlocksCollected.Inc()
	c.logger.Info("block reconstructed",
		zap.Uint64("block_id", state.BlockID),
		zap.Int("transactions", len(txs)),
		zap.Duration("decode_time", time.Since(start)),
	)

	c.mu.Lock()
	c.ready[state.BlockID] = state
	delete(c.pending, state.BlockID)
	c.mu.Unlock()

	c.advanceChain()
}

// advanceChain appends every ready block that extends the current tip,
// in order; gaps pause the advance until the missing block decodes.
func (c *Collector) advanceChain() {
	for {
		next := c.chain.Height() + 1

		c.mu.Lock()
		state, ok := c.ready[next]
		if ok {
			delete(c.ready, next)
		}
		c.mu.Unlock()

		if !ok || !c.chain.Append(state) {
			return
		}
	}
}
