package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/mempool"
	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/network"
	"github.com/aced-network/aced/internal/types"
)

// prepareRetry is the pause before rechecking an empty mempool.
const prepareRetry = 100 * time.Millisecond

// proposalRetention is how many proposed blocks keep their shards
// servable for late ScaleReqChunks.
const proposalRetention = 4

// Slots is the wall-clock slot arithmetic shared by every node: the
// proposer ring, the slot duration, and the epoch start. The current
// slot is floor((now-epoch)/slotTime); its proposer is the ring entry at
// slot mod ring size.
type Slots struct {
	Ring     []string
	SlotTime time.Duration
	Epoch    time.Time
}

// Curr returns the current slot index and the elapsed time within it.
func (s *Slots) Curr(now time.Time) (slot uint64, into time.Duration) {
	elapsed := now.Sub(s.Epoch)
	if elapsed < 0 {
		return 0, 0
	}
	slot = uint64(elapsed / s.SlotTime)
	return slot, elapsed - time.Duration(slot)*s.SlotTime
}

// ProposerAt returns the ring address owning the slot at now.
func (s *Slots) ProposerAt(now time.Time) string {
	slot, _ := s.Curr(now)
	return s.Ring[slot%uint64(len(s.Ring))]
}

// IsProposer reports whether addr owns the current slot. Receivers use
// this to reject ProposeBlock messages from anyone else.
func (s *Slots) IsProposer(addr string, now time.Time) bool {
	return s.ProposerAt(now) == addr
}

// indexOf returns addr's position in the ring.
func (s *Slots) indexOf(addr string) (uint64, error) {
	for i, a := range s.Ring {
		if a == addr {
			return uint64(i), nil
		}
	}
	return 0, fmt.Errorf("%s is not in the side-node ring", addr)
}

// nextOwnSlotStart returns when addr's next slot begins (strictly after
// now when the current slot is already ours).
func (s *Slots) nextOwnSlotStart(addr string, now time.Time) (time.Time, error) {
	id, err := s.indexOf(addr)
	if err != nil {
		return time.Time{}, err
	}
	ring := uint64(len(s.Ring))
	slot, _ := s.Curr(now)

	next := (slot/ring)*ring + id
	if next <= slot {
		next += ring
	}
	return s.Epoch.Add(time.Duration(next) * s.SlotTime), nil
}

// preparedBlock is a fully encoded block waiting for our slot.
type preparedBlock struct {
	header      *types.BlockHeader
	headerBytes []byte
	tree        *cmt.Tree
	shards      map[uint64]*cmt.Samples
	txCount     int
}

// Scheduler drives block proposals: while another node owns the slot it
// eagerly prepares the next block (packaging, CMT construction,
// sharding), and on reaching its own slot broadcasts the proposal. A
// proposal whose slot elapsed during broadcast preparation is discarded.
type Scheduler struct {
	Slots

	addr           string
	numScale       uint64
	baseSymbolSize int

	pool      *mempool.Mempool
	codes     []*cmt.Code
	broadcast func(network.Message)
	logger    *zap.Logger

	nowFn func() time.Time

	mu       sync.Mutex
	prepared *preparedBlock
	// shards and trees of recently proposed blocks; shards answer
	// ScaleReqChunks, trees answer light-node ScaleReqSample requests.
	proposed      map[uint64]map[uint64]*cmt.Samples
	trees         map[uint64]*cmt.Tree
	proposedOrder []uint64
}

// New creates a scheduler for a side node.
func New(
	addr string,
	slots Slots,
	numScale uint64,
	pool *mempool.Mempool,
	codesForEncoding []*cmt.Code,
	baseSymbolSize int,
	broadcast func(network.Message),
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		Slots:          slots,
		addr:           addr,
		numScale:       numScale,
		baseSymbolSize: baseSymbolSize,
		pool:           pool,
		codes:          codesForEncoding,
		broadcast:      broadcast,
		logger:         logger,
		nowFn:          time.Now,
		proposed:       make(map[uint64]map[uint64]*cmt.Samples),
		trees:          make(map[uint64]*cmt.Tree),
	}
}

// Run loops until the context is cancelled: prepare while waiting,
// propose in our slot, then sleep until the next one.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.String("addr", s.addr),
		zap.Duration("slot_time", s.SlotTime),
		zap.Int("ring_size", len(s.Ring)),
	)

	for ctx.Err() == nil {
		s.mu.Lock()
		havePrepared := s.prepared != nil
		s.mu.Unlock()

		if !havePrepared {
			if !s.PrepareBlock() {
				sleepCtx(ctx, prepareRetry)
			}
			continue
		}

		now := s.nowFn()
		if s.IsProposer(s.addr, now) {
			s.ProposeBlock()
			// Whether it went out or was aborted, wait for the next
			// slot we own before proposing again.
		}

		next, err := s.nextOwnSlotStart(s.addr, s.nowFn())
		if err != nil {
			s.logger.Error("scheduler misconfigured", zap.Error(err))
			return
		}
		sleepCtx(ctx, time.Until(next))
	}
}

// PrepareBlock packages transactions and builds the block's coded
// Merkle tree and per-scale shards. Returns false when the mempool is
// empty (no proposal is made from nothing).
func (s *Scheduler) PrepareBlock() bool {
	if s.pool.NumTransactions() == 0 {
		return false
	}

	txs := s.pool.PrepareBlock()
	if len(txs) == 0 {
		return false
	}

	payload := make([]byte, 0, len(txs)*types.TransactionSize)
	for _, tx := range txs {
		payload = append(payload, tx.Serialize()...)
	}

	start := time.Now()
	tree, err := cmt.Encode(payload, s.codes, s.baseSymbolSize)
	if err != nil {
		s.logger.Error("block encoding failed", zap.Error(err))
		return false
	}
	metrics.EncodeSeconds.Observe(time.Since(start).Seconds())

	roots, err := tree.HeaderRoots()
	if err != nil {
		s.logger.Error("block encoding failed", zap.Error(err))
		return false
	}

	header := &types.BlockHeader{
		Version:    1,
		Time:       uint32(s.nowFn().Unix()),
		Nonce:      randomNonce(),
		CodedRoots: roots,
	}
	headerBytes := header.Serialize()

	numBase := uint64(len(tree.Layers[0]))
	shards := make(map[uint64]*cmt.Samples, s.numScale)
	for scaleID := uint64(1); scaleID <= s.numScale; scaleID++ {
		shards[scaleID] = tree.Shard(headerBytes, cmt.SampleIndices(scaleID, numBase, s.numScale))
	}

	s.mu.Lock()
	s.prepared = &preparedBlock{
		header:      header,
		headerBytes: headerBytes,
		tree:        tree,
		shards:      shards,
		txCount:     len(txs),
	}
	s.mu.Unlock()

	s.logger.Info("block prepared",
		zap.Int("transactions", len(txs)),
		zap.Duration("encode_time", time.Since(start)),
	)
	return true
}

// ProposeBlock broadcasts the prepared block in our slot. The block id
// is the next slot index; if the slot advances past us before the
// broadcast goes out, the proposal is aborted and the block discarded.
func (s *Scheduler) ProposeBlock() bool {
	s.mu.Lock()
	prepared := s.prepared
	s.prepared = nil
	s.mu.Unlock()
	if prepared == nil {
		return false
	}

	slot, _ := s.Curr(s.nowFn())
	blockID := slot + 1

	s.registerShards(blockID, prepared.shards, prepared.tree)

	msg := &network.ProposeBlock{
		Addr:    s.addr,
		BlockID: blockID,
		Header:  prepared.headerBytes,
	}

	// Last check before the block leaves: the slot may have elapsed
	// while we were getting ready.
	if !s.IsProposer(s.addr, s.nowFn()) {
		s.logger.Warn("slot elapsed before broadcast, proposal aborted",
			zap.Uint64("block_id", blockID))
		s.dropShards(blockID)
		metrics.ProposalsAborted.Inc()
		return false
	}

	s.broadcast(msg)
	metrics.BlocksProposed.Inc()
	s.logger.Info("block proposed",
		zap.Uint64("block_id", blockID),
		zap.Int("transactions", prepared.txCount),
	)
	return true
}

// SampleFor returns one base-layer symbol of a recent proposal together
// with its authenticating Merkle path, for light-node sampling.
func (s *Scheduler) SampleFor(blockID, index uint64) (cmt.Symbol, []cmt.Symbol, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[blockID]
	if !ok || tree == nil || int(index) >= len(tree.Layers[0]) {
		return cmt.Symbol{}, nil, false
	}
	return tree.Layers[0][index].Clone(), tree.MerklePath(int(index)), true
}

// ShardFor returns the shard prepared for a scale node of one of our
// recent proposals.
func (s *Scheduler) ShardFor(blockID, scaleID uint64) (*cmt.Samples, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shards, ok := s.proposed[blockID]
	if !ok {
		return nil, false
	}
	shard, ok := shards[scaleID]
	return shard, ok
}

func (s *Scheduler) registerShards(blockID uint64, shards map[uint64]*cmt.Samples, tree *cmt.Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposed[blockID] = shards
	s.trees[blockID] = tree
	s.proposedOrder = append(s.proposedOrder, blockID)
	for len(s.proposedOrder) > proposalRetention {
		old := s.proposedOrder[0]
		s.proposedOrder = s.proposedOrder[1:]
		delete(s.proposed, old)
		delete(s.trees, old)
	}
}

func (s *Scheduler) dropShards(blockID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.proposed, blockID)
	delete(s.trees, blockID)
	for i, id := range s.proposedOrder {
		if id == blockID {
			s.proposedOrder = append(s.proposedOrder[:i], s.proposedOrder[i+1:]...)
			break
		}
	}
}

func randomNonce() uint32 {
	var buf [4]byte
	rand.Read(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
