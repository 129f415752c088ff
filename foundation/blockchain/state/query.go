package state

import (
	"fmt"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// Status summarizes the node for the status endpoint.
type Status struct {
	State          string             `json:"state"`
	Height         uint64             `json:"height"`
	LatestHash     string             `json:"latest_hash"`
	Difficulty     uint               `json:"difficulty"`
	TargetInterval time.Duration      `json:"target_interval"`
	Pending        int                `json:"pending"`
	InFlight       int                `json:"in_flight"`
	UTXOs          int                `json:"utxos"`
	Beneficiary    string             `json:"beneficiary"`
	MiningPaused   bool               `json:"mining_paused"`
	Peers          int                `json:"peers"`
	Sync           network.SyncStatus `json:"sync"`
}

// =============================================================================

// Height returns the number of the latest block.
func (s *State) Height() uint64 {
	return s.db.Height()
}

// PendingCount returns the number of transactions waiting to be mined.
func (s *State) PendingCount() int {
	return s.mempool.Count()
}

// LatestHash returns the hash of the latest block or an empty string before
// genesis.
func (s *State) LatestHash() string {
	tip, err := s.db.Tip()
	if err != nil {
		return ""
	}
	return tip.Hash
}

// LatestBlock returns a copy the current latest block.
func (s *State) LatestBlock() (database.Block, error) {
	return s.db.Tip()
}

// VerifyIntegrity re-checks every block hash and link in the chain.
func (s *State) VerifyIntegrity() bool {
	ok := s.db.VerifyIntegrity()
	if ok {
		prometheusIntegrity.Set(1)
	} else {
		prometheusIntegrity.Set(0)
	}
	return ok
}

// BalanceOf returns the sum of the unspent outputs paid to the address.
func (s *State) BalanceOf(address string) (uint64, error) {
	return s.ledger.BalanceOf(address)
}

// OutputsFor returns the unspent outputs paid to the address.
func (s *State) OutputsFor(address string) []database.UTXO {
	return s.ledger.OutputsFor(address)
}

// Blocks returns the blocks between the two numbers inclusive. Pass
// QueryLatest for either number to mean the latest block.
func (s *State) Blocks(from uint64, to uint64) ([]database.Block, error) {
	latest := s.db.Height()

	if from == QueryLatest {
		from = latest
		to = from
	}
	if to == QueryLatest || to > latest {
		to = latest
	}

	if from > to {
		return nil, fmt.Errorf("invalid range: from[%d] to[%d]", from, to)
	}

	out := make([]database.Block, 0, to-from+1)
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// Mempool returns a copy of the pending transactions in selection order.
func (s *State) Mempool() []database.Transaction {
	return s.mempool.PickBest(-1)
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Host returns the address this node is reachable on.
func (s *State) Host() string {
	return s.host
}

// Beneficiary returns the address mining rewards are paid to.
func (s *State) Beneficiary() string {
	return s.beneficiary
}

// Network returns the network collaborator.
func (s *State) Network() *network.Stub {
	return s.network
}

// KnownPeers retrieves a copy of the known peer list.
func (s *State) KnownPeers() []peer.Peer {
	return s.network.Peers()
}

// Status returns a summary of the node.
func (s *State) Status() Status {
	var difficulty uint
	tip, err := s.db.Tip()
	if err == nil {
		difficulty = tip.Header.Difficulty
	}

	return Status{
		State:          s.CurrentState(),
		Height:         tip.Header.Number,
		LatestHash:     tip.Hash,
		Difficulty:     difficulty,
		TargetInterval: s.targetInterval,
		Pending:        s.mempool.Count(),
		InFlight:       s.mempool.InFlight(),
		UTXOs:          s.ledger.Count(),
		Beneficiary:    s.beneficiary,
		MiningPaused:   s.paused.Load(),
		Peers:          len(s.network.Peers()),
		Sync:           s.network.SyncStatus(),
	}
}

// =============================================================================

// PauseMining stops new blocks from being mined until ResumeMining is called.
// It reports whether this call paused mining.
func (s *State) PauseMining() bool {
	if s.paused.Swap(true) {
		return false
	}

	s.evHandler("state: PauseMining: mining paused")
	s.Worker.SignalCancelMining()

	return true
}

// ResumeMining allows blocks to be mined again.
func (s *State) ResumeMining() {
	if s.paused.Swap(false) {
		s.evHandler("state: ResumeMining: mining resumed")
		s.Worker.SignalStartMining()
	}
}

// IsMiningAllowed reports whether the node may mine a new block.
func (s *State) IsMiningAllowed() bool {
	return s.IsRunning() && !s.paused.Load()
}
