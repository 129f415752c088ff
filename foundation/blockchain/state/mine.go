package state

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mining"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// ErrMiningPaused is returned when mining is requested while the node has
// paused it.
var ErrMiningPaused = errors.New("mining is paused")

// stallWindows is the number of consecutive exhausted windows after which
// the search is reported as stalled.
const stallWindows = 16

// =============================================================================

// MineNextBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. The batch is drained from the mempool
// and returned to it if no block is produced.
func (s *State) MineNextBlock(ctx context.Context) (database.Block, error) {
	if !s.IsRunning() {
		return database.Block{}, ErrNotRunning
	}

	if s.paused.Load() {
		return database.Block{}, ErrMiningPaused
	}

	s.evHandler("state: MineNextBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	txs := s.drainBatch()
	if len(txs) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	tip, err := s.db.Tip()
	if err != nil {
		s.mempool.Restore(txs)
		return database.Block{}, err
	}

	height := tip.Header.Number + 1
	difficulty := s.retarget(tip, height)
	reward := Reward(s.baseReward, s.halving, height)

	candidate, err := database.NewCandidate(tip, s.beneficiary, difficulty, reward, txs)
	if err != nil {
		s.mempool.Restore(txs)
		return database.Block{}, err
	}

	s.evHandler("state: MineNextBlock: MINING: perform POW: blk[%d] txs[%d] difficulty[%d]", height, len(txs), difficulty)

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	began := time.Now()
	res, err := s.engine.Mine(ctx, candidate.Header, s.window())
	prometheusMiningDuration.Observe(elapsed(began))

	if err != nil {
		s.mempool.Restore(txs)

		if errors.Is(err, mining.ErrProofOfWorkExhausted) {
			prometheusMiningExhausted.Inc()
			if s.advanceWindow() >= stallWindows {
				return database.Block{}, fmt.Errorf("%w: %d windows: %w", ErrMiningStalled, stallWindows, err)
			}
		}

		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		s.mempool.Restore(txs)
		return database.Block{}, ctx.Err()
	}

	block, err := candidate.Sealed(res.Nonce, res.Hash, res.HashRate)
	if err != nil {
		s.mempool.Restore(txs)
		return database.Block{}, err
	}

	s.evHandler("state: MineNextBlock: MINING: update local state")

	if err := s.commitBlock(block); err != nil {
		if !errors.Is(err, ErrStateDiverged) {
			s.mempool.Restore(txs)
		}
		return database.Block{}, err
	}

	prometheusHashRate.Set(float64(res.HashRate))

	return block, nil
}

// =============================================================================

// drainBatch takes the next batch from the mempool and drops any transaction
// whose inputs are no longer unspent.
func (s *State) drainBatch() []database.Transaction {
	drained := s.mempool.DrainBest(s.batchSize, s.maxBlockBytes)

	txs := make([]database.Transaction, 0, len(drained))
	var stale []database.Transaction

	for _, tx := range drained {
		if s.spendable(tx) {
			txs = append(txs, tx)
			continue
		}

		s.evHandler("state: drainBatch: dropping stale tx[%s]", tx.ID)
		stale = append(stale, tx)
	}

	if len(stale) > 0 {
		s.mempool.Commit(stale)
	}

	return txs
}

// spendable reports whether every input of the transaction is unspent.
func (s *State) spendable(tx database.Transaction) bool {
	for _, ref := range tx.Inputs {
		if _, exists := s.ledger.FindUnspent(ref); !exists {
			return false
		}
	}
	return true
}

// window returns where the next search starts.
func (s *State) window() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nonceStart
}

// advanceWindow moves the next search past the nonces already tried and
// returns the number of consecutive exhausted windows.
func (s *State) advanceWindow() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := s.engine.Span()
	if s.nonceStart > math.MaxUint64-span {
		s.nonceStart = 0
	} else {
		s.nonceStart += span
	}

	s.exhausted++
	return s.exhausted
}

// commitBlock writes the block to the chain, applies its effects to the
// ledger and forgets its transactions.
func (s *State) commitBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := block.ValidateSeal(); err != nil {
		return err
	}

	spent, created, err := blockEffects(block)
	if err != nil {
		return err
	}

	s.evHandler("state: commitBlock: write to disk: blk[%d]", block.Header.Number)

	// Write the new block to the chain on disk.
	if err := s.db.Append(block); err != nil {
		return err
	}

	s.evHandler("state: commitBlock: apply to ledger: spent[%d] created[%d]", len(spent), len(created))

	if err := s.ledger.ApplyBlock(spent, created); err != nil {
		s.paused.Store(true)
		return fmt.Errorf("%w: block %d: %w", ErrStateDiverged, block.Header.Number, err)
	}

	s.mempool.Commit(block.Transactions)

	if s.nonces != nil {
		for _, tx := range block.Transactions {
			if signer, err := tx.SignerAddress(); err == nil {
				s.nonces.Record(signer, tx.Nonce)
			}
		}
	}

	s.nonceStart = 0
	s.exhausted = 0

	recordBlock(block)
	prometheusMempoolSize.Set(float64(s.mempool.Count()))

	return nil
}

// blockEffects returns the outputs the block spends and the outputs it
// creates, the beneficiary reward last.
func blockEffects(block database.Block) ([]database.OutputRef, []database.UTXO, error) {
	var spent []database.OutputRef
	var created []database.UTXO

	for _, tx := range block.Transactions {
		spent = append(spent, tx.Inputs...)

		for i, out := range tx.Outputs {
			created = append(created, database.UTXO{
				Ref:    database.OutputRef{TxID: tx.ID, Index: uint32(i)},
				Output: out,
			})
		}
	}

	ref, out, err := block.RewardOutput()
	if err != nil {
		return nil, nil, err
	}

	if out.Value > 0 {
		created = append(created, database.UTXO{Ref: ref, Output: out})
	}

	return spent, created, nil
}
