// Package mempool maintains the pool of validated transactions waiting to be
// mined into a block.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool/selector"
)

// Set of errors returned when adding a transaction.
var (
	ErrPoolFull   = errors.New("mempool is full")
	ErrDuplicate  = errors.New("transaction already in mempool")
	ErrInputInUse = errors.New("input already claimed by a pending transaction")
)

// DefaultMaxSize is the number of transactions the pool holds when no size
// is configured.
const DefaultMaxSize = 10_000

// entry caches what selection needs so it isn't recomputed per block.
type entry struct {
	tx   database.Transaction
	from string
	size uint64
}

// Mempool represents a cache of transactions keyed by transaction id.
// Transactions drained for mining are held in flight until they are
// committed or restored, so they still count as known to the pool.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]entry
	inFlight map[string]entry
	claimed  map[database.OutputRef]string
	maxSize  int
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee, DefaultMaxSize)
}

// NewWithStrategy constructs a new mempool with specified select strategy
// and capacity.
func NewWithStrategy(strategy string, maxSize int) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	mp := Mempool{
		pool:     make(map[string]entry),
		inFlight: make(map[string]entry),
		claimed:  make(map[database.OutputRef]string),
		maxSize:  maxSize,
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions waiting to be mined.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// InFlight returns the number of transactions currently being mined.
func (mp *Mempool) InFlight() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.inFlight)
}

// Contains reports whether the transaction is pending or being mined.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if _, exists := mp.pool[id]; exists {
		return true
	}

	_, exists := mp.inFlight[id]
	return exists
}

// Claimed reports whether a pooled transaction already spends the output.
func (mp *Mempool) Claimed(ref database.OutputRef) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.claimed[ref]
	return exists
}

// Upsert adds a validated transaction to the pool and returns the new pool
// size.
func (mp *Mempool) Upsert(tx database.Transaction) (int, error) {
	from, err := tx.SignerAddress()
	if err != nil {
		return 0, err
	}

	data, err := database.EncodeTransaction(tx)
	if err != nil {
		return 0, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}
	if _, exists := mp.inFlight[tx.ID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}

	if len(mp.pool)+len(mp.inFlight) >= mp.maxSize {
		return 0, fmt.Errorf("%w: %d transactions", ErrPoolFull, mp.maxSize)
	}

	for _, ref := range tx.Inputs {
		if owner, exists := mp.claimed[ref]; exists {
			return 0, fmt.Errorf("%w: %s by %s", ErrInputInUse, ref, owner)
		}
	}

	for _, ref := range tx.Inputs {
		mp.claimed[ref] = tx.ID
	}

	mp.pool[tx.ID] = entry{tx: tx, from: from, size: uint64(len(data))}

	return len(mp.pool), nil
}

// Delete removes a pending transaction from the pool and releases the
// inputs it claimed.
func (mp *Mempool) Delete(id string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if e, exists := mp.pool[id]; exists {
		mp.release(e.tx)
		delete(mp.pool, id)
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
	mp.inFlight = make(map[string]entry)
	mp.claimed = make(map[database.OutputRef]string)
}

// Copy returns the pending transactions in the configured selection order.
func (mp *Mempool) Copy() []database.Transaction {
	return mp.PickBest(-1)
}

// PickBest uses the configured select strategy to return the next set of
// transactions for the next block. Nothing is removed from the pool. Pass
// -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []database.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.selectFn(mp.grouped(), howMany)
}

// DrainBest selects up to howMany transactions whose combined encoded size
// fits in maxBytes and moves them in flight. A transaction that does not fit
// is left pending for a later block. Selection and removal happen
// under one lock so a transaction is never handed to two blocks.
func (mp *Mempool) DrainBest(howMany int, maxBytes uint64) []database.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	best := mp.selectFn(mp.grouped(), howMany)

	var total uint64
	final := make([]database.Transaction, 0, len(best))
	for _, tx := range best {
		e := mp.pool[tx.ID]
		if maxBytes > 0 && total+e.size > maxBytes {
			continue
		}
		total += e.size

		delete(mp.pool, tx.ID)
		mp.inFlight[tx.ID] = e
		final = append(final, tx)
	}

	return final
}

// Restore moves drained transactions back into the pool after a mining
// attempt that did not produce a block.
func (mp *Mempool) Restore(txs []database.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		if e, exists := mp.inFlight[tx.ID]; exists {
			delete(mp.inFlight, tx.ID)
			mp.pool[tx.ID] = e
		}
	}
}

// Commit forgets drained transactions once their block is persisted.
func (mp *Mempool) Commit(txs []database.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		if e, exists := mp.inFlight[tx.ID]; exists {
			mp.release(e.tx)
			delete(mp.inFlight, tx.ID)
		}
	}
}

// =============================================================================

// grouped returns the pending transactions grouped by signer. The caller
// must hold the lock.
func (mp *Mempool) grouped() map[string][]database.Transaction {
	m := make(map[string][]database.Transaction)
	for _, e := range mp.pool {
		m[e.from] = append(m[e.from], e.tx)
	}
	return m
}

// release removes the input claims held by the transaction. The caller must
// hold the lock.
func (mp *Mempool) release(tx database.Transaction) {
	for _, ref := range tx.Inputs {
		if mp.claimed[ref] == tx.ID {
			delete(mp.claimed, ref)
		}
	}
}
