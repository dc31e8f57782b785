package mempool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/types"
)

// DefaultCapacity bounds the number of queued transactions; ingestion is
// rejected above it until block packaging frees space.
const DefaultCapacity = 200000

// Mempool is a FIFO queue of opaque transactions waiting to be packaged
// into a block. Every method confines its critical section to the queue
// itself; no I/O happens under the lock.
type Mempool struct {
	mu           sync.Mutex
	transactions []*types.Transaction
	blockSize    int
	capacity     int

	logger *zap.Logger
}

// New creates a mempool packaging blocks of blockSize bytes.
func New(blockSize int, logger *zap.Logger) *Mempool {
	return &Mempool{
		blockSize: blockSize,
		capacity:  DefaultCapacity,
		logger:    logger,
	}
}

// Insert queues one transaction. It fails when the pool is at capacity.
func (m *Mempool) Insert(tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.transactions) >= m.capacity {
		return fmt.Errorf("mempool at capacity (%d transactions)", m.capacity)
	}
	m.transactions = append(m.transactions, tx)
	metrics.MempoolTransactions.Set(float64(len(m.transactions)))
	return nil
}

// InsertBatch queues transactions until capacity, returning how many
// were accepted.
func (m *Mempool) InsertBatch(txs []*types.Transaction) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	accepted := 0
	for _, tx := range txs {
		if len(m.transactions) >= m.capacity {
			break
		}
		m.transactions = append(m.transactions, tx)
		accepted++
	}
	metrics.MempoolTransactions.Set(float64(len(m.transactions)))
	return accepted
}

// NumTransactions returns the queue length.
func (m *Mempool) NumTransactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

// SizeInBytes returns the serialized size of the queued transactions.
func (m *Mempool) SizeInBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions) * types.TransactionSize
}

// ChangeBlockSize adjusts the packaging limit (administrative API).
func (m *Mempool) ChangeBlockSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockSize = size
	m.logger.Info("mempool block size changed", zap.Int("bytes", size))
}

// BlockSize returns the current packaging limit in bytes.
func (m *Mempool) BlockSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockSize
}

// PrepareBlock pops transactions from the front of the queue up to the
// block payload capacity and returns them.
func (m *Mempool) PrepareBlock() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxTxs := m.blockSize / types.TransactionSize
	count := len(m.transactions)
	if count > maxTxs {
		count = maxTxs
	}

	block := make([]*types.Transaction, count)
	copy(block, m.transactions[:count])
	m.transactions = m.transactions[count:]
	metrics.MempoolTransactions.Set(float64(len(m.transactions)))
	return block
}
