// Package ledger maintains the set of unspent transaction outputs, the
// authoritative source of spendable value.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/dolthub/swiss"
)

// ErrOutputNotFound is returned when an output reference does not name an
// unspent output.
var ErrOutputNotFound = errors.New("output not found or already spent")

// ErrValueOverflow is returned when summing output values would wrap around.
var ErrValueOverflow = database.ErrValueOverflow

// Storage interface represents the behavior required to persist the
// unspent outputs.
type Storage interface {
	Apply(spent []database.OutputRef, created []database.UTXO) error
	ForEach(fn func(utxo database.UTXO) error) error
	Close() error
}

// =============================================================================

// Ledger owns the unspent output set. Reads run concurrently. Spending and
// adding outputs are serialized and hold the write lock across the check and
// the change, so an output is never reported unspent while being spent.
type Ledger struct {
	mu      sync.RWMutex
	storage Storage
	index   *swiss.Map[string, database.UTXO]
}

// New constructs a ledger and loads the unspent outputs from storage.
func New(storage Storage) (*Ledger, error) {
	initPrometheusMetrics()

	index := swiss.NewMap[string, database.UTXO](1024)

	fn := func(utxo database.UTXO) error {
		index.Put(utxo.Ref.String(), utxo)
		return nil
	}

	if err := storage.ForEach(fn); err != nil {
		return nil, fmt.Errorf("loading utxos: %w", err)
	}

	prometheusUTXOCount.Set(float64(index.Count()))

	return &Ledger{
		storage: storage,
		index:   index,
	}, nil
}

// Close closes the underlying storage.
func (l *Ledger) Close() error {
	return l.storage.Close()
}

// Count returns the number of unspent outputs.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.index.Count()
}

// FindUnspent returns the output for the reference if it is unspent. A
// missing reference is reported with false, not an error.
func (l *Ledger) FindUnspent(ref database.OutputRef) (database.Output, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	utxo, exists := l.index.Get(ref.String())
	return utxo.Output, exists
}

// MarkSpent atomically checks the output is unspent and spends it. When
// callers race on the same reference exactly one succeeds, the others get
// ErrOutputNotFound.
func (l *Ledger) MarkSpent(ref database.OutputRef) (database.Output, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ref.String()

	utxo, exists := l.index.Get(key)
	if !exists {
		return database.Output{}, fmt.Errorf("%w: %s", ErrOutputNotFound, key)
	}

	if err := l.storage.Apply([]database.OutputRef{ref}, nil); err != nil {
		return database.Output{}, err
	}

	l.index.Delete(key)

	prometheusUTXOSpent.Inc()
	prometheusUTXOCount.Set(float64(l.index.Count()))

	return utxo.Output, nil
}

// Add registers new unspent outputs. It is used to seed the ledger from the
// genesis allocations.
func (l *Ledger) Add(created ...database.UTXO) error {
	return l.ApplyBlock(nil, created)
}

// ApplyBlock spends the outputs consumed by a block and registers the
// outputs it created. Every spent reference must be unspent, otherwise no
// change is made and ErrOutputNotFound is returned.
func (l *Ledger) ApplyBlock(spent []database.OutputRef, created []database.UTXO) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(spent))
	for _, ref := range spent {
		key := ref.String()

		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s spent twice", ErrOutputNotFound, key)
		}
		seen[key] = struct{}{}

		if !l.index.Has(key) {
			return fmt.Errorf("%w: %s", ErrOutputNotFound, key)
		}
	}

	for _, utxo := range created {
		key := utxo.Ref.String()
		if _, spending := seen[key]; !spending && l.index.Has(key) {
			return fmt.Errorf("output %s already exists", key)
		}
	}

	if err := l.storage.Apply(spent, created); err != nil {
		return err
	}

	for _, ref := range spent {
		l.index.Delete(ref.String())
	}

	for _, utxo := range created {
		l.index.Put(utxo.Ref.String(), utxo)
	}

	prometheusUTXOSpent.Add(float64(len(spent)))
	prometheusUTXOCreated.Add(float64(len(created)))
	prometheusUTXOCount.Set(float64(l.index.Count()))

	return nil
}

// BalanceOf returns the total value of the unspent outputs paid to the
// identity.
func (l *Ledger) BalanceOf(identity string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var balance uint64
	var err error

	l.index.Iter(func(_ string, utxo database.UTXO) bool {
		if !strings.EqualFold(utxo.Output.Recipient, identity) {
			return false
		}

		balance, err = database.AddValues(balance, utxo.Output.Value)
		return err != nil
	})

	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", identity, err)
	}

	return balance, nil
}

// OutputsFor returns the unspent outputs paid to the identity ordered by
// reference.
func (l *Ledger) OutputsFor(identity string) []database.UTXO {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var utxos []database.UTXO

	l.index.Iter(func(_ string, utxo database.UTXO) bool {
		if strings.EqualFold(utxo.Output.Recipient, identity) {
			utxos = append(utxos, utxo)
		}
		return false
	})

	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].Ref.TxID != utxos[j].Ref.TxID {
			return utxos[i].Ref.TxID < utxos[j].Ref.TxID
		}
		return utxos[i].Ref.Index < utxos[j].Ref.Index
	})

	return utxos
}
