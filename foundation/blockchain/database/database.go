// Package database handles all the lower level support for maintaining the
// blockchain: the block and transaction types, their canonical encoding, and
// the chain repository that persists blocks and tracks the chain tip.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/cespare/xxhash"
	"github.com/greatroar/blobloom"
)

// ErrNotFound is returned when a block or transaction is not in storage.
var ErrNotFound = errors.New("not found")

// ErrChainEmpty is returned when the tip is requested before genesis.
var ErrChainEmpty = errors.New("chain is empty")

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Storage interface {
	Write(block Block) error
	GetBlock(num uint64) (Block, error)
	GetTransaction(id string) (Transaction, error)
	HasTransaction(id string) (bool, error)
	ForEach() Iterator
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// =============================================================================

// filterCapacity is the initial number of transaction ids the membership
// filter is sized for. The filter is rebuilt at twice the size when the
// chain outgrows it.
const filterCapacity = 1 << 16

// Database manages the persisted chain and the current chain tip. Reads of
// the tip and the hash index run concurrently, an append excludes all other
// access for its duration.
type Database struct {
	mu sync.RWMutex

	storage   Storage
	evHandler func(v string, args ...any)

	tip   Block
	empty bool
	index map[string]uint64

	filter   *blobloom.Filter
	capacity uint64
	txCount  uint64
}

// New constructs a chain repository over the storage and loads the tip and
// hash index from the blocks already persisted.
func New(storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	db := Database{
		storage:   storage,
		evHandler: ev,
		empty:     true,
		index:     make(map[string]uint64),
	}

	if err := db.load(filterCapacity); err != nil {
		return nil, err
	}

	ev("database: New: loaded: blocks[%d] txs[%d]", len(db.index), db.txCount)

	return &db, nil
}

// load walks the persisted blocks to rebuild the tip, index and filter.
func (db *Database) load(capacity uint64) error {
	index := make(map[string]uint64)
	var txIDs []string
	var tip Block
	empty := true

	iter := db.storage.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		index[block.Hash] = block.Header.Number
		for _, tx := range block.Transactions {
			txIDs = append(txIDs, tx.ID)
		}

		tip = block
		empty = false
	}

	for uint64(len(txIDs)) > capacity {
		capacity *= 2
	}

	filter := blobloom.NewOptimized(blobloom.Config{
		Capacity: capacity,
		FPRate:   0.001,
	})
	for _, id := range txIDs {
		filter.Add(xxhash.Sum64String(id))
	}

	db.index = index
	db.tip = tip
	db.empty = empty
	db.filter = filter
	db.capacity = capacity
	db.txCount = uint64(len(txIDs))

	return nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// IsEmpty reports whether the genesis block has been committed.
func (db *Database) IsEmpty() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.empty
}

// Tip returns the latest block. The zero block and ErrChainEmpty are
// returned before genesis.
func (db *Database) Tip() (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.empty {
		return Block{}, ErrChainEmpty
	}

	return db.tip, nil
}

// Height returns the number of the latest block.
func (db *Database) Height() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.tip.Header.Number
}

// HeightOf returns the block number for the block hash.
func (db *Database) HeightOf(hash string) (uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	num, exists := db.index[hash]
	return num, exists
}

// Append adds the block to the end of the chain. The block must reference
// the current tip and carry the next number. The block and its transactions
// are durably written before the tip moves.
func (db *Database) Append(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch {
	case db.empty:
		if err := block.ValidateGenesis(); err != nil {
			return err
		}

	default:
		if err := block.ValidateLink(db.tip); err != nil {
			return err
		}
	}

	db.evHandler("database: Append: write: blk[%d]: txs[%d]", block.Header.Number, len(block.Transactions))

	if err := db.storage.Write(block); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Header.Number, err)
	}

	db.tip = block
	db.empty = false
	db.index[block.Hash] = block.Header.Number

	for _, tx := range block.Transactions {
		db.filter.Add(xxhash.Sum64String(tx.ID))
	}
	db.txCount += uint64(len(block.Transactions))

	// The block is committed at this point. A failed rebuild keeps the
	// current filter, which only raises its false positive rate.
	if db.txCount > db.capacity {
		db.evHandler("database: Append: membership filter full: txs[%d]: rebuilding", db.txCount)
		if err := db.load(db.capacity * 2); err != nil {
			db.evHandler("database: Append: rebuilding membership filter: ERROR: %s", err)
		}
	}

	return nil
}

// ContainsTransaction reports whether a transaction with the id has been
// committed into the chain.
func (db *Database) ContainsTransaction(id string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	// The filter has no false negatives. Only a positive needs storage.
	if !db.filter.Has(xxhash.Sum64String(id)) {
		return false, nil
	}

	return db.storage.HasTransaction(id)
}

// GetTransaction returns the committed transaction with the id.
func (db *Database) GetTransaction(id string) (Transaction, error) {
	return db.storage.GetTransaction(id)
}

// GetBlock returns the block by number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	return db.storage.GetBlock(num)
}

// BlockByHash returns the block with the content hash.
func (db *Database) BlockByHash(hash string) (Block, error) {
	num, exists := db.HeightOf(hash)
	if !exists {
		return Block{}, ErrNotFound
	}

	return db.storage.GetBlock(num)
}

// ForEach returns an iterator to walk through all the blocks starting
// with the genesis block.
func (db *Database) ForEach() Iterator {
	return db.storage.ForEach()
}

// VerifyIntegrity walks the persisted chain from genesis and confirms that
// each block's declared previous hash matches the actual content hash of
// the block before it, that each block's seal holds, and that the walk ends
// at the tip. It returns false on the first mismatch.
func (db *Database) VerifyIntegrity() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	prevHash := signature.ZeroHash
	var expNumber uint64

	iter := db.storage.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			db.evHandler("database: VerifyIntegrity: blk[%d]: ERROR: %s", expNumber, err)
			return false
		}

		if block.Header.Number != expNumber {
			db.evHandler("database: VerifyIntegrity: blk[%d]: number mismatch: got %d", expNumber, block.Header.Number)
			return false
		}

		if block.Header.PrevHash != prevHash {
			db.evHandler("database: VerifyIntegrity: blk[%d]: previous hash mismatch", block.Header.Number)
			return false
		}

		if err := block.ValidateSeal(); err != nil {
			db.evHandler("database: VerifyIntegrity: blk[%d]: %s", block.Header.Number, err)
			return false
		}

		prevHash = block.Hash
		expNumber++
	}

	if db.empty {
		return expNumber == 0
	}

	// A missing block ends the walk early.
	if expNumber != db.tip.Header.Number+1 || prevHash != db.tip.Hash {
		db.evHandler("database: VerifyIntegrity: walk ended at blk[%d]: tip[%d]", expNumber, db.tip.Header.Number)
		return false
	}

	return true
}
