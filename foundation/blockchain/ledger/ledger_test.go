package ledger_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	bob   = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

func newLedger(t *testing.T) (*ledger.Ledger, *disk.UTXOs) {
	t.Helper()

	store, err := disk.NewMemoryUTXOs()
	require.NoError(t, err)

	l, err := ledger.New(store)
	require.NoError(t, err)

	t.Cleanup(func() { _ = l.Close() })

	return l, store
}

func utxo(txID string, index uint32, to string, value uint64) database.UTXO {
	return database.UTXO{
		Ref:    database.OutputRef{TxID: txID, Index: index},
		Output: database.NewOutput(to, value),
	}
}

func TestLedger_FindAndSpend(t *testing.T) {
	l, _ := newLedger(t)

	require.NoError(t, l.Add(utxo("tx1", 0, alice, 1000), utxo("tx1", 1, bob, 500)))

	out, found := l.FindUnspent(database.OutputRef{TxID: "tx1", Index: 0})
	require.True(t, found)
	assert.Equal(t, uint64(1000), out.Value)

	_, found = l.FindUnspent(database.OutputRef{TxID: "tx1", Index: 9})
	assert.False(t, found, "a missing reference is a signal, not an error")

	spent, err := l.MarkSpent(database.OutputRef{TxID: "tx1", Index: 0})
	require.NoError(t, err)
	assert.Equal(t, alice, spent.Recipient)

	_, found = l.FindUnspent(database.OutputRef{TxID: "tx1", Index: 0})
	assert.False(t, found)

	_, err = l.MarkSpent(database.OutputRef{TxID: "tx1", Index: 0})
	require.ErrorIs(t, err, ledger.ErrOutputNotFound)

	assert.Equal(t, 1, l.Count())
}

func TestLedger_ConcurrentSpend(t *testing.T) {
	l, _ := newLedger(t)

	ref := database.OutputRef{TxID: "contested", Index: 0}
	require.NoError(t, l.Add(database.UTXO{Ref: ref, Output: database.NewOutput(alice, 1000)}))

	const spenders = 16

	var wg sync.WaitGroup
	results := make(chan error, spenders)

	start := make(chan struct{})
	for range spenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.MarkSpent(ref)
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledger.ErrOutputNotFound):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, spenders-1, rejected)
}

func TestLedger_ApplyBlockIsAllOrNothing(t *testing.T) {
	l, _ := newLedger(t)

	require.NoError(t, l.Add(utxo("tx1", 0, alice, 1000)))

	spent := []database.OutputRef{
		{TxID: "tx1", Index: 0},
		{TxID: "missing", Index: 0},
	}
	created := []database.UTXO{utxo("tx2", 0, bob, 900)}

	err := l.ApplyBlock(spent, created)
	require.ErrorIs(t, err, ledger.ErrOutputNotFound)

	_, found := l.FindUnspent(database.OutputRef{TxID: "tx1", Index: 0})
	assert.True(t, found, "failed apply must not spend anything")

	_, found = l.FindUnspent(database.OutputRef{TxID: "tx2", Index: 0})
	assert.False(t, found, "failed apply must not create anything")

	err = l.ApplyBlock([]database.OutputRef{{TxID: "tx1", Index: 0}, {TxID: "tx1", Index: 0}}, nil)
	require.ErrorIs(t, err, ledger.ErrOutputNotFound)

	require.NoError(t, l.ApplyBlock(spent[:1], created))

	bal, err := l.BalanceOf(bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), bal)

	bal, err = l.BalanceOf(alice)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestLedger_BalanceOverflow(t *testing.T) {
	l, _ := newLedger(t)

	require.NoError(t, l.Add(
		utxo("tx1", 0, alice, math.MaxUint64),
		utxo("tx1", 1, alice, 1),
	))

	_, err := l.BalanceOf(alice)
	require.ErrorIs(t, err, ledger.ErrValueOverflow)
}

func TestLedger_OutputsForAndReload(t *testing.T) {
	store, err := disk.NewMemoryUTXOs()
	require.NoError(t, err)

	l, err := ledger.New(store)
	require.NoError(t, err)

	require.NoError(t, l.Add(
		utxo("b", 1, alice, 10),
		utxo("a", 0, alice, 20),
		utxo("b", 0, alice, 30),
		utxo("c", 0, bob, 40),
	))

	outs := l.OutputsFor(alice)
	require.Len(t, outs, 3)
	assert.Equal(t, "a:0", outs[0].Ref.String())
	assert.Equal(t, "b:0", outs[1].Ref.String())
	assert.Equal(t, "b:1", outs[2].Ref.String())

	// A second ledger over the same store sees the persisted outputs.
	reloaded, err := ledger.New(store)
	require.NoError(t, err)

	assert.Equal(t, 4, reloaded.Count())

	bal, err := reloaded.BalanceOf(bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), bal)
}
