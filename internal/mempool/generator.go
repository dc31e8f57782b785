package mempool

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aced-network/aced/internal/types"
)

// Generator feeds synthetic transactions into the mempool at a bounded
// rate. It exists for load experiments and is driven by the admin API.
type Generator struct {
	pool    *Mempool
	limiter *rate.Limiter
	logger  *zap.Logger

	seq     atomic.Uint64
	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewGenerator creates a generator producing txPerSec transactions.
func NewGenerator(pool *Mempool, txPerSec int, logger *zap.Logger) *Generator {
	return &Generator{
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(txPerSec), txPerSec),
		logger:  logger,
	}
}

func (g *Generator) makeTransaction() *types.Transaction {
	n := g.seq.Add(1)
	tx := &types.Transaction{Nonce: n, Value: n % 1000}
	binary.LittleEndian.PutUint64(tx.From[:8], n)
	binary.LittleEndian.PutUint64(tx.To[:8], n+1)
	return tx
}

// Start launches the generation loop. A second Start is a no-op.
func (g *Generator) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.running = true

	go func() {
		for {
			if err := g.limiter.Wait(ctx); err != nil {
				return
			}
			if err := g.pool.Insert(g.makeTransaction()); err != nil {
				g.logger.Warn("generator paused", zap.Error(err))
			}
		}
	}()
	g.logger.Info("transaction generator started")
}

// Stop halts the generation loop.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.cancel()
	g.running = false
	g.logger.Info("transaction generator stopped")
}

// Step injects count transactions immediately, returning how many the
// pool accepted.
func (g *Generator) Step(count int) int {
	txs := make([]*types.Transaction, count)
	for i := range txs {
		txs[i] = g.makeTransaction()
	}
	return g.pool.InsertBatch(txs)
}
