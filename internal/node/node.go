// Package node assembles the subsystems into a running availability
// node: transport, performer dispatch, slot scheduler (side nodes),
// vote aggregation (scale nodes), block collection, and the contract
// thread.
package node

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/aggregator"
	"github.com/aced-network/aced/internal/bls"
	"github.com/aced-network/aced/internal/chain"
	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/collector"
	"github.com/aced-network/aced/internal/contract"
	"github.com/aced-network/aced/internal/light"
	"github.com/aced-network/aced/internal/mempool"
	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/network"
	"github.com/aced-network/aced/internal/scheduler"
	"github.com/aced-network/aced/internal/store"
	"github.com/aced-network/aced/internal/types"
)

// sampleReplyTimeout bounds one light-sample round trip.
const sampleReplyTimeout = 5 * time.Second

// Node is one running availability-layer participant.
type Node struct {
	cfg    Config
	logger *zap.Logger

	server    *network.Server
	performer *network.Performer
	pool      *mempool.Mempool
	generator *mempool.Generator
	store     *store.Store
	chain     *chain.Chain
	client    contract.Client
	submitter *contract.Submitter
	scheduler *scheduler.Scheduler
	agg       *aggregator.Aggregator
	collector *collector.Collector
	slots     scheduler.Slots
	baseK     int

	lightMu      sync.Mutex
	lightWaiters map[lightKey]chan *network.ScaleReqSampleReply
}

// lightKey correlates a light-sample request with its reply.
type lightKey struct {
	blockID uint64
	index   uint64
}

// New builds a node from its configuration. Nothing is started yet.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Node, error) {
	var client contract.Client
	if cfg.MockContract {
		client = contract.NewMock()
	} else {
		var err error
		client, err = contract.DialEth(ctx, cfg.ContractRPC, cfg.ContractAddr,
			cfg.AccountKeyFile, cfg.ContractChainID, logger.Named("contract"))
		if err != nil {
			return nil, err
		}
	}
	return NewWithClient(cfg, client, logger)
}

// NewWithClient builds a node over an existing contract client. Tests
// and single-machine deployments share one mock contract this way.
func NewWithClient(cfg Config, client contract.Client, logger *zap.Logger) (*Node, error) {
	codesForEncoding, codesForDecoding, err := cmt.LoadCodes(cfg.KSet, cfg.CodeDir)
	if err != nil {
		return nil, fmt.Errorf("load code tables: %w", err)
	}

	n := &Node{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		baseK:        codesForDecoding[0].K,
		lightWaiters: make(map[lightKey]chan *network.ScaleReqSampleReply),
	}
	n.slots = scheduler.Slots{
		Ring:     cfg.SideNodes,
		SlotTime: cfg.SlotTime,
		Epoch:    cfg.Epoch(),
	}

	n.pool = mempool.New(types.BlockSize, logger.Named("mempool"))
	n.generator = mempool.NewGenerator(n.pool, cfg.GeneratorRate, logger.Named("txgen"))
	n.chain = chain.New(logger.Named("chain"))

	n.store, err = store.Open(filepath.Join(cfg.DataDir, "samples.db"), logger.Named("store"))
	if err != nil {
		return nil, err
	}

	n.submitter = contract.NewSubmitter(n.client, logger.Named("submitter"))

	n.server = network.NewServer(cfg.Addr, logger.Named("network"))

	broadcast := func(msg network.Message) {
		n.server.Broadcast(context.Background(), cfg.AllPeers(), msg)
	}

	if cfg.SideNode {
		n.scheduler = scheduler.New(
			cfg.Addr,
			n.slots,
			cfg.NumScale,
			n.pool,
			codesForEncoding,
			cfg.EffectiveBaseSymbolSize(),
			broadcast,
			logger.Named("scheduler"),
		)
	}

	if cfg.ScaleID > 0 {
		key, err := bls.LoadOrCreateKey(cfg.BLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("bls key: %w", err)
		}
		n.agg = aggregator.New(
			cfg.ScaleID,
			cfg.NumScale,
			uint64(codesForEncoding[0].N()),
			key,
			broadcast,
			n.submitter.Enqueue,
			logger.Named("aggregator"),
		)
	}

	n.collector = collector.New(
		n.client,
		n.chain,
		n.store,
		codesForDecoding,
		cfg.EffectiveBaseSymbolSize(),
		broadcast,
		logger.Named("collector"),
	)

	n.performer = network.NewPerformer(n.server, n.handlers(), logger.Named("performer"))
	return n, nil
}

// handlers wires the performer dispatch table to the subsystems.
func (n *Node) handlers() network.Handlers {
	return network.Handlers{
		OnTransaction: func(tx *types.Transaction) {
			if err := n.pool.Insert(tx); err != nil {
				n.logger.Warn("transaction rejected", zap.Error(err))
			}
		},

		OnProposeBlock: func(peer *network.Peer, msg *network.ProposeBlock) {
			if n.agg == nil {
				return
			}
			// Only the owner of the current slot may propose; anything
			// else is a protocol violation and is silently dropped.
			if !n.slots.IsProposer(msg.Addr, time.Now()) {
				n.logger.Warn("proposal from wrong proposer dropped",
					zap.String("proposer", msg.Addr),
					zap.Uint64("block_id", msg.BlockID),
				)
				return
			}
			if _, err := types.DeserializeHeader(msg.Header); err != nil {
				n.logger.Debug("malformed proposal header", zap.Error(err))
				return
			}

			n.agg.RegisterProposal(msg.Addr, msg.BlockID, msg.Header)
			peer.Send(&network.ScaleReqChunks{
				Addr:    n.cfg.Addr,
				BlockID: msg.BlockID,
				ScaleID: n.cfg.ScaleID,
			})
		},

		OnScaleReqChunks: func(peer *network.Peer, msg *network.ScaleReqChunks) {
			if n.scheduler == nil {
				return
			}
			shard, ok := n.scheduler.ShardFor(msg.BlockID, msg.ScaleID)
			if !ok {
				n.logger.Warn("shard request for unknown block",
					zap.Uint64("block_id", msg.BlockID),
					zap.Uint64("scale_id", msg.ScaleID),
				)
				return
			}
			metrics.ShardsServed.Inc()
			peer.Send(&network.ScaleReqChunksReply{
				Addr:    n.cfg.Addr,
				BlockID: msg.BlockID,
				Samples: *shard,
			})
		},

		OnScaleReqChunksReply: func(msg *network.ScaleReqChunksReply) {
			if n.agg == nil {
				return
			}
			samples := msg.Samples
			if err := n.store.PutSamples(msg.BlockID, &samples); err != nil {
				n.logger.Error("sample persist failed", zap.Error(err))
			}
			n.agg.OnShardChunk(msg.Addr, msg.BlockID, &samples)
		},

		OnMySign: func(msg *network.MySign) {
			if n.agg != nil {
				n.agg.OnMySign(msg)
			}
		},

		OnScaleGetAllChunks: func(peer *network.Peer, msg *network.ScaleGetAllChunks) {
			if n.cfg.ScaleID == 0 {
				return
			}
			reply := &network.ScaleGetAllChunksReply{BlockID: msg.State.BlockID}
			if samples, ok := n.store.GetSamples(msg.State.BlockID); ok {
				reply.Samples = samples
			}
			peer.Send(reply)
		},

		OnScaleGetAllChunksReply: func(msg *network.ScaleGetAllChunksReply) {
			n.collector.OnChunks(msg)
		},

		OnScaleReqSample: func(peer *network.Peer, msg *network.ScaleReqSample) {
			if n.scheduler == nil {
				return
			}
			reply := &network.ScaleReqSampleReply{BlockID: msg.BlockID, Index: msg.Index}
			if sym, path, ok := n.scheduler.SampleFor(msg.BlockID, msg.Index); ok {
				reply.Found = true
				reply.Symbol = sym
				reply.Path = path
			}
			peer.Send(reply)
		},

		OnScaleReqSampleReply: func(msg *network.ScaleReqSampleReply) {
			n.lightMu.Lock()
			ch, ok := n.lightWaiters[lightKey{msg.BlockID, msg.Index}]
			n.lightMu.Unlock()
			if !ok {
				return
			}
			select {
			case ch <- msg:
			default:
			}
		},
	}
}

// SampleAvailability runs the light-node availability check for a block
// against its proposer: SampleComplexity random base symbols per round,
// each fetched over the wire and verified against the header roots. The
// header comes from our stored samples of the block.
func (n *Node) SampleAvailability(ctx context.Context, proposer string, blockID uint64) error {
	samples, ok := n.store.GetSamples(blockID)
	if !ok {
		return fmt.Errorf("no stored header for block %d", blockID)
	}
	header, err := types.DeserializeHeader(samples.Header)
	if err != nil {
		return fmt.Errorf("stored header undecodable: %w", err)
	}

	sampler := light.NewSampler(header.Roots(), n.baseK, randomSeed(), n.logger.Named("light"))
	return sampler.Check(func(index uint64) (cmt.Symbol, []cmt.Symbol, error) {
		return n.fetchSample(ctx, proposer, blockID, index)
	})
}

func (n *Node) fetchSample(ctx context.Context, proposer string, blockID, index uint64) (cmt.Symbol, []cmt.Symbol, error) {
	key := lightKey{blockID, index}
	ch := make(chan *network.ScaleReqSampleReply, 1)

	n.lightMu.Lock()
	n.lightWaiters[key] = ch
	n.lightMu.Unlock()
	defer func() {
		n.lightMu.Lock()
		delete(n.lightWaiters, key)
		n.lightMu.Unlock()
	}()

	req := &network.ScaleReqSample{Addr: n.cfg.Addr, BlockID: blockID, Index: index}
	if err := n.server.Unicast(ctx, proposer, req); err != nil {
		return cmt.Symbol{}, nil, err
	}

	select {
	case reply := <-ch:
		if !reply.Found {
			return cmt.Symbol{}, nil, fmt.Errorf("symbol %d not served", index)
		}
		return reply.Symbol, reply.Path, nil
	case <-time.After(sampleReplyTimeout):
		return cmt.Symbol{}, nil, fmt.Errorf("sample %d request timed out", index)
	case <-ctx.Done():
		return cmt.Symbol{}, nil, ctx.Err()
	}
}

func randomSeed() int64 {
	var buf [8]byte
	crand.Read(buf[:])
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

// Start launches every subsystem. It returns once the listeners are up;
// cancellation of ctx shuts the node down.
func (n *Node) Start(ctx context.Context) error {
	if err := n.server.Start(ctx); err != nil {
		return err
	}
	n.performer.Start(ctx)
	go n.submitter.Run(ctx)
	go n.collector.Run(ctx)
	if n.scheduler != nil {
		go n.scheduler.Run(ctx)
	}

	n.logger.Info("node started",
		zap.String("addr", n.cfg.Addr),
		zap.Bool("side_node", n.cfg.SideNode),
		zap.Uint64("scale_id", n.cfg.ScaleID),
	)
	return nil
}

// Close releases persistent resources.
func (n *Node) Close() error {
	return n.store.Close()
}

// Components exposed to the admin API.

func (n *Node) Mempool() *mempool.Mempool      { return n.pool }
func (n *Node) Generator() *mempool.Generator  { return n.generator }
func (n *Node) Chain() *chain.Chain            { return n.chain }
func (n *Node) Contract() contract.Client      { return n.client }
func (n *Node) Store() *store.Store            { return n.store }
func (n *Node) Submitter() *contract.Submitter { return n.submitter }
func (n *Node) PeerCount() int                 { return n.server.PeerCount() }
