package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
)

// miningOperations handles mining. A mining operation runs on every poll
// tick and whenever one is signaled.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.pollTicker.C:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes the best transactions from the mempool and writes
// a new block to the database.
func (w *Worker) runMiningOperation() {

	// Validate we are allowed to mine and we are not paused.
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: runMiningOperation: MINING: turned off")
		return
	}

	// Make sure there are transactions in the mempool.
	length := w.state.PendingCount()
	if length == 0 {
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	var mined bool
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.state.MineNextBlock(ctx)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		if err != nil {
			w.resolveMiningError(ctx, err)
			return
		}

		mined = true

		// WOW, we mined a block. Propose the new block to the network.
		w.state.Network().BroadcastBlock(block)
	}()

	// Wait for both G's to terminate.
	wg.Wait()

	// After a block is mined, check if a new operation should be
	// signaled again.
	if mined {
		if length := w.state.PendingCount(); length > 0 {
			w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: Txs[%d]", length)
			w.SignalStartMining()
		}
	}
}

// resolveMiningError applies the recovery action for a failed mining
// operation.
func (w *Worker) resolveMiningError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, state.ErrNoTransactions):
		w.evHandler("worker: runMiningOperation: MINING: WARNING: no transactions in mempool")
		return

	case ctx.Err() != nil:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		return
	}

	switch resolution := state.Resolve(err); resolution {
	case state.RetryMining:
		w.evHandler("worker: runMiningOperation: MINING: %s: retry next period: %s", resolution, err)

	case state.AdjustDifficulty:
		w.evHandler("worker: runMiningOperation: MINING: WARNING: %s: %s", resolution, err)

	case state.ResyncWithNetwork:
		w.evHandler("worker: runMiningOperation: MINING: WARNING: %s: %s", resolution, err)
		w.state.Network().RequestSync(w.state.Height() + 1)

	case state.HaltAndAlert:
		w.evHandler("worker: runMiningOperation: MINING: ALERT: %s: %s", resolution, err)
		w.state.PauseMining()

	default:
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
	}
}
