package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/metrics"
	"github.com/aced-network/aced/internal/types"
	"github.com/aced-network/aced/pkg/util"
)

// Thresh is the number of most-recent blocks whose samples are retained;
// older entries are evicted from the SYMBOL bucket.
const Thresh = 8

var (
	symbolBucket = []byte("SYMBOL")
	blockBucket  = []byte("BLOCK")
)

// Store persists per-block sample sets and decoded blocks in a bbolt
// database with two buckets keyed by little-endian block id. Samples are
// zstd-compressed; a scale node serves shard requests straight from here.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger

	mu     sync.Mutex
	recent []uint64 // insertion order of sample entries, oldest first

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (or creates) the store at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(symbolBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(blockBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ := zstd.NewReader(nil)

	s := &Store{db: db, logger: logger, enc: enc, dec: dec}

	// Rebuild the retention order from what survived the last run.
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(symbolBucket).ForEach(func(k, _ []byte) error {
			s.recent = append(s.recent, util.KeyToUint64(k))
			return nil
		})
	})
	// Keys are little-endian, so bbolt's byte order is not numeric order.
	slices.Sort(s.recent)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// PutSamples persists a sample set for a block and evicts the oldest
// entry once more than Thresh blocks are held.
func (s *Store) PutSamples(blockID uint64, samples *cmt.Samples) error {
	data, err := cmt.EncodeSamples(samples)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}
	compressed := s.enc.EncodeAll(data, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evict []uint64
	seen := false
	for _, id := range s.recent {
		if id == blockID {
			seen = true
			break
		}
	}
	if !seen {
		s.recent = append(s.recent, blockID)
		for len(s.recent) > Thresh {
			evict = append(evict, s.recent[0])
			s.recent = s.recent[1:]
		}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(symbolBucket)
		if err := bucket.Put(util.Uint64Key(blockID), compressed); err != nil {
			return err
		}
		for _, id := range evict {
			if err := bucket.Delete(util.Uint64Key(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put samples: %w", err)
	}

	metrics.SamplesStored.Inc()
	for _, id := range evict {
		s.logger.Debug("evicted samples", zap.Uint64("block_id", id))
	}
	return nil
}

// GetSamples returns the persisted sample set for a block, or ok=false.
func (s *Store) GetSamples(blockID uint64) (*cmt.Samples, bool) {
	var compressed []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(symbolBucket).Get(util.Uint64Key(blockID)); v != nil {
			compressed = append([]byte(nil), v...)
		}
		return nil
	})
	if compressed == nil {
		return nil, false
	}

	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		s.logger.Error("corrupt sample entry", zap.Uint64("block_id", blockID), zap.Error(err))
		return nil, false
	}
	samples, err := cmt.DecodeSamples(data)
	if err != nil {
		s.logger.Error("corrupt sample entry", zap.Uint64("block_id", blockID), zap.Error(err))
		return nil, false
	}
	return samples, true
}

// PutBlock persists a decoded block.
func (s *Store) PutBlock(blockID uint64, block *types.Block) error {
	data, err := types.EncodeBlock(block)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blockBucket).Put(util.Uint64Key(blockID), data)
	})
	if err != nil {
		return fmt.Errorf("put block: %w", err)
	}
	return nil
}

// GetBlock returns a decoded block by id, or ok=false.
func (s *Store) GetBlock(blockID uint64) (*types.Block, bool) {
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(blockBucket).Get(util.Uint64Key(blockID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}
	block, err := types.DecodeBlock(data)
	if err != nil {
		s.logger.Error("corrupt block entry", zap.Uint64("block_id", blockID), zap.Error(err))
		return nil, false
	}
	return block, true
}

// SampleCount returns the number of sample entries currently retained.
func (s *Store) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

// BlockCount returns the number of decoded blocks held.
func (s *Store) BlockCount() int {
	count := 0
	s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(blockBucket).Stats().KeyN
		return nil
	})
	return count
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
