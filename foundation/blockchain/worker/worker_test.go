package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pavelKey  = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	pavelAddr = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

func newState(t *testing.T) *state.State {
	t.Helper()

	miner, err := crypto.GenerateKey()
	require.NoError(t, err)

	st, err := state.New(state.Config{
		MinerKey: miner,
		Host:     "localhost:9080",
		Genesis: genesis.Genesis{
			Date:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			ChainID:      1,
			Difficulty:   1,
			MiningReward: 50,
			Balances:     map[string]uint64{pavelAddr: 1000},
		},
		MinFee:        1,
		MiningWorkers: 2,
		NonceRange:    100_000,
	})
	require.NoError(t, err)

	require.NoError(t, st.Bootstrap(context.Background()))

	return st
}

func TestWorker_MinesSubmittedTransaction(t *testing.T) {
	st := newState(t)
	defer st.Shutdown()

	w := worker.Run(st, worker.Config{PollInterval: 50 * time.Millisecond})
	defer w.Shutdown()

	pavel, err := crypto.HexToECDSA(pavelKey)
	require.NoError(t, err)

	bob, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx, err := st.BuildTransaction(pavel, wallet.SpendRequest{
		To:     signature.PrivateKeyAddress(bob),
		Amount: 100,
		Fee:    1,
		Nonce:  1,
	})
	require.NoError(t, err)
	require.NoError(t, st.SubmitWalletTransaction(tx))

	require.Eventually(t, func() bool {
		return st.Height() == 1
	}, 10*time.Second, 10*time.Millisecond, "the worker should mine the pending transaction")

	assert.Equal(t, 0, st.PendingCount())

	balance, err := st.BalanceOf(signature.PrivateKeyAddress(bob))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)

	require.Eventually(t, func() bool {
		return st.Network().Sent() >= 2
	}, 5*time.Second, 10*time.Millisecond, "the transaction and the block should be broadcast")
}

func TestWorker_IntegrityKeepsOperatorPause(t *testing.T) {
	st := newState(t)
	defer st.Shutdown()

	w := worker.Run(st, worker.Config{IntegrityInterval: 10 * time.Millisecond})
	defer w.Shutdown()

	st.PauseMining()
	assert.False(t, st.IsMiningAllowed())

	// A healthy chain never resumes mining paused by an operator.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, st.IsMiningAllowed())

	st.ResumeMining()
	assert.True(t, st.IsMiningAllowed())
}

func TestWorker_ShutdownTwice(t *testing.T) {
	st := newState(t)
	defer st.Shutdown()

	w := worker.Run(st, worker.Config{})
	w.Shutdown()
	w.Shutdown()
}
