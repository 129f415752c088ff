// Package worker implements mining, integrity monitoring, and transaction
// sharing for the blockchain.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
)

// Default intervals used when the config leaves them unset.
const (
	DefaultPollInterval      = 5 * time.Second
	DefaultIntegrityInterval = time.Minute
	DefaultPeerInterval      = time.Minute
)

// Config represents the intervals the background operations run on.
type Config struct {
	PollInterval      time.Duration
	IntegrityInterval time.Duration
	PeerInterval      time.Duration
	EvHandler         state.EventHandler
}

// =============================================================================

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	pollTicker   *time.Ticker
	checkTicker  *time.Ticker
	peerTicker   *time.Ticker
	shut         chan struct{}
	shutOnce     sync.Once
	startMining  chan bool
	cancelMining chan bool
	txSharing    chan database.Transaction
	evHandler    state.EventHandler

	// Only touched by the integrity goroutine.
	pausedByIntegrity bool
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	w := Worker{
		state:        st,
		pollTicker:   time.NewTicker(interval(cfg.PollInterval, DefaultPollInterval)),
		checkTicker:  time.NewTicker(interval(cfg.IntegrityInterval, DefaultIntegrityInterval)),
		peerTicker:   time.NewTicker(interval(cfg.PeerInterval, DefaultPeerInterval)),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		txSharing:    make(chan database.Transaction, maxTxShareRequests),
		evHandler:    ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
		w.integrityOperations,
		w.peerOperations,
		w.shareTxOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Pick up anything left in the mempool from before.
	w.SignalStartMining()

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.shutOnce.Do(func() {
		w.evHandler("worker: shutdown: started")
		defer w.evHandler("worker: shutdown: completed")

		w.evHandler("worker: shutdown: stop tickers")
		w.pollTicker.Stop()
		w.checkTicker.Stop()
		w.peerTicker.Stop()

		w.evHandler("worker: shutdown: signal cancel mining")
		w.SignalCancelMining()

		w.evHandler("worker: shutdown: terminate goroutines")
		close(w.shut)
		w.wg.Wait()
	})
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining not allowed")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(tx database.Transaction) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

func interval(d time.Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
