package disk

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/btcsuite/goleveldb/leveldb"
)

// UTXOs stores unspent outputs keyed by "{txid}:{index}".
type UTXOs struct {
	db *leveldb.DB
}

// NewUTXOs opens the unspent output database under the data directory.
func NewUTXOs(dataDir string) (*UTXOs, error) {
	db, err := open(filepath.Join(dataDir, UTXOsDir))
	if err != nil {
		return nil, err
	}

	return &UTXOs{db: db}, nil
}

// NewMemoryUTXOs constructs unspent output storage that is not persisted.
func NewMemoryUTXOs() (*UTXOs, error) {
	db, err := openMemory()
	if err != nil {
		return nil, err
	}

	return &UTXOs{db: db}, nil
}

// Close closes the database.
func (u *UTXOs) Close() error {
	return u.db.Close()
}

// Get returns the output stored for the reference.
func (u *UTXOs) Get(ref database.OutputRef) (database.Output, error) {
	data, err := u.db.Get([]byte(ref.String()), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.Output{}, database.ErrNotFound
		}
		return database.Output{}, err
	}

	return database.DecodeOutput(data)
}

// Apply removes the spent references and stores the created outputs in one
// synced batch. Either all of the changes are persisted or none are.
func (u *UTXOs) Apply(spent []database.OutputRef, created []database.UTXO) error {
	batch := new(leveldb.Batch)

	for _, ref := range spent {
		batch.Delete([]byte(ref.String()))
	}

	for _, utxo := range created {
		data, err := database.EncodeOutput(utxo.Output)
		if err != nil {
			return err
		}
		batch.Put([]byte(utxo.Ref.String()), data)
	}

	if err := u.db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("writing utxos: %w", err)
	}

	return nil
}

// ForEach calls the function for every stored output in key order.
func (u *UTXOs) ForEach(fn func(utxo database.UTXO) error) error {
	iter := u.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		ref, err := database.ParseOutputRef(string(iter.Key()))
		if err != nil {
			return err
		}

		out, err := database.DecodeOutput(iter.Value())
		if err != nil {
			return fmt.Errorf("output %s: %w", ref, err)
		}

		if err := fn(database.UTXO{Ref: ref, Output: out}); err != nil {
			return err
		}
	}

	return iter.Error()
}
