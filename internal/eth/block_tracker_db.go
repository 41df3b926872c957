package eth

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
)

// BlockTracker journals chain progress next to the ledger: the highest head
// seen on the stream, the finalized checkpoint, and the hashes of recently
// finalized blocks.
type BlockTracker interface {
	SetObservedHead(ref models.BlockRef) error
	ObservedHead() (models.BlockRef, bool, error)
	SetFinalized(ref models.BlockRef) error
	Finalized() (models.BlockRef, bool, error)
	GetHash(blockNumber uint64) (common.Hash, bool)
}

const (
	observedHeadKey = "netflow:observedHead"
	finalizedKey    = "netflow:finalized"
	blockHashPrefix = "netflow:blockHash:"

	// DefaultHashRetention is how many finalized block hashes are kept.
	DefaultHashRetention uint64 = 256
)

const encodedRefLen = 8 + common.HashLength + 8

func NewBlockTracker(db *badger.DB) *BlockTrackerImpl {
	return &BlockTrackerImpl{db: db, retention: DefaultHashRetention}
}

type BlockTrackerImpl struct {
	mu        sync.RWMutex
	db        *badger.DB
	retention uint64
}

func (b *BlockTrackerImpl) SetObservedHead(ref models.BlockRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(txn *badger.Txn) error {
		current, found, err := getRef(txn, observedHeadKey)
		if err != nil {
			return err
		}
		if found && current.Number > ref.Number {
			return nil
		}
		return txn.Set([]byte(observedHeadKey), encodeRef(ref))
	})
}

func (b *BlockTrackerImpl) ObservedHead() (models.BlockRef, bool, error) {
	return b.readRef(observedHeadKey)
}

// SetFinalized moves the checkpoint forward, records the block hash and prunes
// hashes that fell out of retention.
func (b *BlockTrackerImpl) SetFinalized(ref models.BlockRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(txn *badger.Txn) error {
		current, found, err := getRef(txn, finalizedKey)
		if err != nil {
			return err
		}
		if found && current.Number > ref.Number {
			return fmt.Errorf("finalized checkpoint cannot move back from %d to %d", current.Number, ref.Number)
		}
		if err := txn.Set([]byte(finalizedKey), encodeRef(ref)); err != nil {
			return err
		}
		if ref.Hash != "" {
			hash := common.HexToHash(ref.Hash)
			if err := txn.Set(encodeHashKey(ref.Number), hash[:]); err != nil {
				return err
			}
		}
		if ref.Number <= b.retention {
			return nil
		}
		return deleteHashesBelow(txn, ref.Number-b.retention)
	})
}

func (b *BlockTrackerImpl) Finalized() (models.BlockRef, bool, error) {
	return b.readRef(finalizedKey)
}

func (b *BlockTrackerImpl) GetHash(blockNumber uint64) (common.Hash, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var blockHash common.Hash
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeHashKey(blockNumber))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		copy(blockHash[:], val)
		return nil
	})
	if err != nil {
		return common.Hash{}, false
	}
	return blockHash, true
}

// RetainedHashes calls fn for every retained finalized block hash in
// ascending block order.
func (b *BlockTrackerImpl) RetainedHashes(fn func(blockNumber uint64, hash common.Hash) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(blockHashPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(decodeHashKey(item.Key()), common.BytesToHash(val)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BlockTrackerImpl) readRef(key string) (models.BlockRef, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ref models.BlockRef
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		ref, found, err = getRef(txn, key)
		return err
	})
	return ref, found, err
}

func getRef(txn *badger.Txn, key string) (models.BlockRef, bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.BlockRef{}, false, nil
	}
	if err != nil {
		return models.BlockRef{}, false, err
	}
	var ref models.BlockRef
	err = item.Value(func(val []byte) error {
		ref, err = decodeRef(val)
		return err
	})
	if err != nil {
		return models.BlockRef{}, false, err
	}
	return ref, true, nil
}

func deleteHashesBelow(txn *badger.Txn, below uint64) error {
	var keysToDelete [][]byte

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(blockHashPrefix)
	it := txn.NewIterator(opts)
	for it.Seek(encodeHashKey(0)); it.Valid(); it.Next() {
		k := it.Item().Key()
		if decodeHashKey(k) >= below {
			break
		}
		keysToDelete = append(keysToDelete, append([]byte(nil), k...))
	}
	it.Close()

	for _, k := range keysToDelete {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func encodeRef(ref models.BlockRef) []byte {
	buf := make([]byte, encodedRefLen)
	binary.BigEndian.PutUint64(buf[:8], ref.Number)
	if ref.Hash != "" {
		hash := common.HexToHash(ref.Hash)
		copy(buf[8:8+common.HashLength], hash[:])
	}
	binary.BigEndian.PutUint64(buf[8+common.HashLength:], ref.Timestamp)
	return buf
}

func decodeRef(val []byte) (models.BlockRef, error) {
	if len(val) != encodedRefLen {
		return models.BlockRef{}, fmt.Errorf("corrupt block ref of %d bytes", len(val))
	}
	ref := models.BlockRef{
		Number:    binary.BigEndian.Uint64(val[:8]),
		Timestamp: binary.BigEndian.Uint64(val[8+common.HashLength:]),
	}
	hash := common.BytesToHash(val[8 : 8+common.HashLength])
	if hash != (common.Hash{}) {
		ref.Hash = strings.ToLower(hash.Hex())
	}
	return ref, nil
}

func encodeHashKey(blockNum uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], blockNum)
	return append([]byte(blockHashPrefix), buf[:]...)
}

func decodeHashKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(blockHashPrefix):])
}
