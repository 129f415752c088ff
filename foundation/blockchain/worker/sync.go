package worker

// Sync asks the network for any blocks past the local tip.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	if len(w.state.KnownPeers()) == 0 {
		w.evHandler("worker: sync: no known peers")
		return
	}

	w.state.Network().RequestSync(w.state.Height() + 1)
}
