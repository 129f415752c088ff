// Package disk implements the chain and unspent output stores on top of
// leveldb. Each store is its own key-ordered database and every commit is
// a synced batch write.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
)

// Names of the databases created under the data directory.
const (
	BlocksDir       = "blocks"
	TransactionsDir = "transactions"
	UTXOsDir        = "utxos"
)

// syncWrite forces every commit to reach stable storage before returning.
var syncWrite = &opt.WriteOptions{Sync: true}

// open opens or creates a leveldb database in the directory.
func open(dir string) (*leveldb.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dir, err)
	}

	return db, nil
}

// openMemory opens a leveldb database that lives only in memory.
func openMemory() (*leveldb.DB, error) {
	return leveldb.Open(storage.NewMemStorage(), nil)
}

// blockKey returns the zero padded key so blocks sort by number.
func blockKey(num uint64) []byte {
	return []byte(fmt.Sprintf("%020d", num))
}

// =============================================================================

// Blocks represents the serialization implementation for reading and storing
// blocks and their transactions. This implements the database.Storage
// interface.
type Blocks struct {
	blocks *leveldb.DB
	txs    *leveldb.DB
}

// NewBlocks opens the block and transaction databases under the data
// directory.
func NewBlocks(dataDir string) (*Blocks, error) {
	blocks, err := open(filepath.Join(dataDir, BlocksDir))
	if err != nil {
		return nil, err
	}

	txs, err := open(filepath.Join(dataDir, TransactionsDir))
	if err != nil {
		blocks.Close()
		return nil, err
	}

	return &Blocks{blocks: blocks, txs: txs}, nil
}

// NewMemoryBlocks constructs block storage that is not persisted.
func NewMemoryBlocks() (*Blocks, error) {
	blocks, err := openMemory()
	if err != nil {
		return nil, err
	}

	txs, err := openMemory()
	if err != nil {
		blocks.Close()
		return nil, err
	}

	return &Blocks{blocks: blocks, txs: txs}, nil
}

// Close closes both databases.
func (b *Blocks) Close() error {
	return errors.Join(b.txs.Close(), b.blocks.Close())
}

// Write persists the transactions and then the block. The block write is the
// commit point, a reader never finds a block whose transactions are missing.
func (b *Blocks) Write(block database.Block) error {
	if len(block.Transactions) > 0 {
		batch := new(leveldb.Batch)
		for _, tx := range block.Transactions {
			data, err := database.EncodeTransaction(tx)
			if err != nil {
				return err
			}
			batch.Put([]byte(tx.ID), data)
		}

		if err := b.txs.Write(batch, syncWrite); err != nil {
			return fmt.Errorf("writing transactions: %w", err)
		}
	}

	data, err := database.EncodeBlock(block)
	if err != nil {
		return err
	}

	if err := b.blocks.Put(blockKey(block.Header.Number), data, syncWrite); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}

	return nil
}

// GetBlock returns the block with the specified number.
func (b *Blocks) GetBlock(num uint64) (database.Block, error) {
	data, err := b.blocks.Get(blockKey(num), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, err
	}

	return database.DecodeBlock(data)
}

// PutRaw replaces the stored bytes for a block number. It exists for
// repair tooling and tests that need to simulate corruption.
func (b *Blocks) PutRaw(num uint64, data []byte) error {
	return b.blocks.Put(blockKey(num), data, syncWrite)
}

// DeleteRaw removes the stored bytes for a block number.
func (b *Blocks) DeleteRaw(num uint64) error {
	return b.blocks.Delete(blockKey(num), syncWrite)
}

// GetTransaction returns the committed transaction with the id.
func (b *Blocks) GetTransaction(id string) (database.Transaction, error) {
	data, err := b.txs.Get([]byte(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.Transaction{}, database.ErrNotFound
		}
		return database.Transaction{}, err
	}

	return database.DecodeTransaction(data)
}

// HasTransaction reports whether the transaction id is stored.
func (b *Blocks) HasTransaction(id string) (bool, error) {
	return b.txs.Has([]byte(id), nil)
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 0.
func (b *Blocks) ForEach() database.Iterator {
	return &BlocksIterator{blocks: b}
}

// =============================================================================

// BlocksIterator represents the iteration implementation for walking
// through and reading blocks on disk. This implements the database
// Iterator interface.
type BlocksIterator struct {
	blocks  *Blocks // Access to the block storage.
	current uint64  // Next block number to be read.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from disk.
func (bi *BlocksIterator) Next() (database.Block, error) {
	if bi.eoc {
		return database.Block{}, errors.New("end of chain")
	}

	block, err := bi.blocks.GetBlock(bi.current)
	if errors.Is(err, database.ErrNotFound) {
		bi.eoc = true
	}
	bi.current++

	return block, err
}

// Done returns the end of chain value.
func (bi *BlocksIterator) Done() bool {
	return bi.eoc
}
