package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mining"
	"github.com/looplab/fsm"
)

// Set of states the node moves through.
const (
	StateIdle          = "idle"
	StateBootstrapping = "bootstrapping"
	StateRunning       = "running"
	StateStopped       = "stopped"
)

// Set of events that move the node between states.
const (
	eventBootstrap = "bootstrap"
	eventRun       = "run"
	eventResume    = "resume"
	eventStop      = "stop"
)

// ErrNotRunning is returned when work is requested before the chain is
// bootstrapped or after it is stopped.
var ErrNotRunning = errors.New("node is not running")

// newFSM constructs the lifecycle state machine in the idle state.
func newFSM(ev EventHandler) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventBootstrap, Src: []string{StateIdle}, Dst: StateBootstrapping},
			{Name: eventRun, Src: []string{StateBootstrapping}, Dst: StateRunning},
			{Name: eventResume, Src: []string{StateIdle}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateIdle, StateBootstrapping, StateRunning}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				ev("state: fsm: %s: %s -> %s", e.Event, e.Src, e.Dst)
			},
		},
	)
}

// CurrentState returns the lifecycle state of the node.
func (s *State) CurrentState() string {
	return s.fsm.Current()
}

// IsRunning reports whether the chain accepts transactions and blocks.
func (s *State) IsRunning() bool {
	return s.fsm.Is(StateRunning)
}

// =============================================================================

// Bootstrap starts the chain. An empty repository gets a freshly mined
// genesis block and the genesis allocations, otherwise the existing chain is
// resumed and the ledger brought back in line with it.
func (s *State) Bootstrap(ctx context.Context) error {
	if !s.db.IsEmpty() {
		if err := s.recover(); err != nil {
			return err
		}

		return s.fsm.Event(ctx, eventResume)
	}

	if err := s.fsm.Event(ctx, eventBootstrap); err != nil {
		return err
	}

	block, err := s.mineGenesis(ctx)
	if err != nil {
		return fmt.Errorf("mining genesis: %w", err)
	}

	if err := s.commitGenesis(block); err != nil {
		return err
	}

	return s.fsm.Event(ctx, eventRun)
}

// mineGenesis searches successive nonce windows until the genesis block is
// solved at the configured difficulty.
func (s *State) mineGenesis(ctx context.Context) (database.Block, error) {
	block := database.NewGenesis(s.beneficiary, s.difficulty, 0)

	s.evHandler("state: mineGenesis: started: difficulty[%d]", s.difficulty)

	var start uint64
	for {
		res, err := s.engine.Mine(ctx, block.Header, start)
		if errors.Is(err, mining.ErrProofOfWorkExhausted) {
			start += s.engine.Span()
			continue
		}
		if err != nil {
			return database.Block{}, err
		}

		return block.Sealed(res.Nonce, res.Hash, res.HashRate)
	}
}

// commitGenesis writes the genesis block and registers the allocations.
func (s *State) commitGenesis(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Append(block); err != nil {
		return err
	}

	allocs := s.genesis.Allocations(block.Hash)
	if err := s.ledger.Add(allocs...); err != nil {
		return fmt.Errorf("%w: genesis allocations: %w", ErrStateDiverged, err)
	}

	recordBlock(block)

	s.evHandler("state: commitGenesis: hash[%s] allocations[%d]", block.Hash, len(allocs))

	return nil
}

// recover makes the ledger consistent with a chain that was written by a
// previous run. An empty ledger is rebuilt by replaying the chain, a ledger
// missing only the tip's effects has them applied.
func (s *State) recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.db.Tip()
	if err != nil {
		return err
	}

	s.evHandler("state: recover: tip[%d] utxos[%d]", tip.Header.Number, s.ledger.Count())

	switch {
	case s.ledger.Count() == 0:
		if err := s.replay(); err != nil {
			return err
		}

	case tip.Header.Number > 0:
		if err := s.catchUpTip(tip); err != nil {
			return err
		}
	}

	if s.nonces != nil {
		if err := s.loadNonces(); err != nil {
			return err
		}
	}

	prometheusChainHeight.Set(float64(tip.Header.Number))

	return nil
}

// replay rebuilds the ledger from every block in the chain. The caller must
// hold the lock.
func (s *State) replay() error {
	s.evHandler("state: replay: started")
	defer s.evHandler("state: replay: completed")

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		if block.Header.Number == 0 {
			if err := s.ledger.Add(s.genesis.Allocations(block.Hash)...); err != nil {
				return fmt.Errorf("replay genesis: %w", err)
			}
			continue
		}

		spent, created, err := blockEffects(block)
		if err != nil {
			return err
		}

		if err := s.ledger.ApplyBlock(spent, created); err != nil {
			return fmt.Errorf("%w: replay block %d: %w", ErrStateDiverged, block.Header.Number, err)
		}
	}

	return nil
}

// catchUpTip applies the tip's effects when the process stopped between the
// block write and the ledger update. The caller must hold the lock.
func (s *State) catchUpTip(tip database.Block) error {
	spent, created, err := blockEffects(tip)
	if err != nil {
		return err
	}

	if len(created) == 0 {
		return nil
	}

	if _, exists := s.ledger.FindUnspent(created[0].Ref); exists {
		return nil
	}

	for _, ref := range spent {
		if _, exists := s.ledger.FindUnspent(ref); !exists {
			return nil
		}
	}

	s.evHandler("state: catchUpTip: applying block[%d]", tip.Header.Number)

	if err := s.ledger.ApplyBlock(spent, created); err != nil {
		return fmt.Errorf("%w: catch up block %d: %w", ErrStateDiverged, tip.Header.Number, err)
	}

	return nil
}

// loadNonces records the nonce of every committed transaction. The caller
// must hold the lock.
func (s *State) loadNonces() error {
	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		for _, tx := range block.Transactions {
			signer, err := tx.SignerAddress()
			if err != nil {
				continue
			}
			s.nonces.Record(signer, tx.Nonce)
		}
	}

	return nil
}
