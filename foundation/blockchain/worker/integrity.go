package worker

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
)

// integrityOperations re-verifies the chain on an interval.
func (w *Worker) integrityOperations() {
	w.evHandler("worker: integrityOperations: G started")
	defer w.evHandler("worker: integrityOperations: G completed")

	for {
		select {
		case <-w.checkTicker.C:
			if !w.isShutdown() {
				w.runIntegrityOperation()
			}
		case <-w.shut:
			w.evHandler("worker: integrityOperations: received shut signal")
			return
		}
	}
}

// runIntegrityOperation pauses mining while the chain fails verification and
// resumes it once the chain verifies again.
func (w *Worker) runIntegrityOperation() {
	w.pausedByIntegrity = checkIntegrity(w.state, w.pausedByIntegrity, w.evHandler)
}

// integrityGuard is the part of the state the integrity monitor drives.
type integrityGuard interface {
	VerifyIntegrity() bool
	PauseMining() bool
	ResumeMining()
}

// checkIntegrity verifies the chain and returns whether mining is now paused
// by the monitor. A pause the monitor did not make is never lifted by it.
func checkIntegrity(g integrityGuard, pausedByIntegrity bool, ev func(v string, args ...any)) bool {
	ok := g.VerifyIntegrity()

	switch {
	case !ok && !pausedByIntegrity:
		if !g.PauseMining() {
			ev("worker: runIntegrityOperation: ALERT: chain failed verification: mining already paused")
			return false
		}
		ev("worker: runIntegrityOperation: ALERT: chain failed verification: mining paused")
		return true

	case ok && pausedByIntegrity:
		ev("worker: runIntegrityOperation: chain verified: mining resumed")
		g.ResumeMining()
		return false
	}

	return pausedByIntegrity
}

// =============================================================================

// peerOperations checks on an interval whether a peer reported a higher tip.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.peerTicker.C:
			if !w.isShutdown() {
				w.runPeerOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeerOperation requests blocks when a peer reported a higher tip.
func (w *Worker) runPeerOperation() {
	status := w.state.Network().SyncStatus()
	if !syncing(status) {
		return
	}

	w.evHandler("worker: runPeerOperation: behind: current[%d] target[%d]", status.Current, status.Target)
	w.state.Network().RequestSync(status.Current + 1)
}

// syncing reports whether the node is behind the best known peer.
func syncing(status network.SyncStatus) bool {
	return status.Syncing && status.Target > status.Current
}
