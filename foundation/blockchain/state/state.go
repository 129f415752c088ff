// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mining"
	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/utxochain/foundation/blockchain/validator"
	"github.com/looplab/fsm"
	"go.uber.org/atomic"
)

// Default values used when the config leaves them unset.
const (
	DefaultBatchSize       = 1000
	DefaultMaxBlockBytes   = 1 << 20
	DefaultHalvingInterval = 210_000
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(tx database.Transaction)
}

// nopWorker is used until a worker registers itself.
type nopWorker struct{}

func (nopWorker) Shutdown() {}
func (nopWorker) SignalStartMining() {}
func (nopWorker) SignalCancelMining() {}
func (nopWorker) SignalShareTx(database.Transaction) {}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	MinerKey *ecdsa.PrivateKey
	Host     string
	DataDir  string // Empty keeps the chain in memory.
	Genesis  genesis.Genesis

	Difficulty          uint // Zero uses the genesis difficulty.
	TargetBlockInterval time.Duration
	Retarget            string
	AdjustmentInterval  uint64
	BaseReward          uint64 // Zero uses the genesis mining reward.
	HalvingInterval     uint64
	MinFee              uint64
	StrictNonce         bool

	SelectStrategy string
	MaxPoolSize    int
	BatchSize      int
	MaxBlockBytes  uint64

	MiningWorkers int
	NonceRange    uint64

	MaxPeers   int
	ListenPort int
	KnownPeers []peer.Peer

	EvHandler EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	minerKey    *ecdsa.PrivateKey
	beneficiary string
	host        string
	evHandler   EventHandler
	genesis     genesis.Genesis

	difficulty     uint
	targetInterval time.Duration
	retarget       RetargetFunc
	baseReward     uint64
	halving        uint64
	batchSize      int
	maxBlockBytes  uint64

	db        *database.Database
	ledger    *ledger.Ledger
	mempool   *mempool.Mempool
	validator *validator.Validator
	nonces    *validator.NonceLedger
	engine    *mining.Engine
	network   *network.Stub
	fsm       *fsm.FSM

	nonceStart uint64
	exhausted  int
	paused     atomic.Bool

	Worker Worker
}

// New constructs a new blockchain for data management. The chain is opened
// but not started, call Bootstrap to commit genesis or resume the chain.
func New(cfg Config) (*State, error) {
	initPrometheusMetrics()

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.MinerKey == nil {
		return nil, errors.New("miner key is required")
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	difficulty := cfg.Difficulty
	if difficulty == 0 {
		difficulty = cfg.Genesis.Difficulty
	}

	if difficulty > MaxDifficulty {
		return nil, fmt.Errorf("difficulty %d exceeds the hash length of %d", difficulty, MaxDifficulty)
	}

	retarget, err := NewRetarget(cfg.Retarget, difficulty, cfg.AdjustmentInterval)
	if err != nil {
		return nil, err
	}

	baseReward := cfg.BaseReward
	if baseReward == 0 {
		baseReward = cfg.Genesis.MiningReward
	}

	halving := cfg.HalvingInterval
	if halving == 0 {
		halving = DefaultHalvingInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	maxBlockBytes := cfg.MaxBlockBytes
	if maxBlockBytes == 0 {
		maxBlockBytes = DefaultMaxBlockBytes
	}

	// Open the block and utxo stores.
	blocks, utxos, err := openStores(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	db, err := database.New(blocks, ev)
	if err != nil {
		blocks.Close()
		utxos.Close()
		return nil, err
	}

	ldgr, err := ledger.New(utxos)
	if err != nil {
		db.Close()
		utxos.Close()
		return nil, err
	}

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFee
	}

	// Construct a mempool with the specified sort strategy.
	pool, err := mempool.NewWithStrategy(strategy, cfg.MaxPoolSize)
	if err != nil {
		db.Close()
		ldgr.Close()
		return nil, err
	}

	// The strict nonce rule is only enforced when a nonce source is set.
	var nonces *validator.NonceLedger
	var nonceSource validator.NonceSource
	if cfg.StrictNonce {
		nonces = validator.NewNonceLedger()
		nonceSource = nonces
	}

	state := State{
		minerKey:    cfg.MinerKey,
		beneficiary: signature.PrivateKeyAddress(cfg.MinerKey),
		host:        cfg.Host,
		evHandler:   ev,
		genesis:     cfg.Genesis,

		difficulty:     difficulty,
		targetInterval: cfg.TargetBlockInterval,
		retarget:       retarget,
		baseReward:     baseReward,
		halving:        halving,
		batchSize:      batchSize,
		maxBlockBytes:  maxBlockBytes,

		db:      db,
		ledger:  ldgr,
		mempool: pool,
		validator: validator.New(validator.Config{
			Ledger: ldgr,
			Chain:  db,
			Pool:   pool,
			MinFee: cfg.MinFee,
			Nonces: nonceSource,
		}),
		nonces: nonces,
		engine: mining.New(mining.Config{
			Workers:    cfg.MiningWorkers,
			NonceRange: cfg.NonceRange,
			EvHandler:  ev,
		}),

		Worker: nopWorker{},
	}

	state.fsm = newFSM(ev)

	state.network = network.NewStub(network.Config{
		Host:       cfg.Host,
		MaxPeers:   cfg.MaxPeers,
		ListenPort: cfg.ListenPort,
		KnownPeers: cfg.KnownPeers,
		EvHandler:  ev,
		Submit:     state.SubmitNodeTransaction,
		Height:     state.Height,
	})

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	if s.fsm.Is(StateStopped) {
		return nil
	}

	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	if s.fsm.Can(eventStop) {
		if err := s.fsm.Event(context.Background(), eventStop); err != nil {
			s.evHandler("state: shutdown: fsm: %s", err)
		}
	}

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()
	s.network.Shutdown()

	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(s.ledger.Close(), s.db.Close())
}

// =============================================================================

// openStores opens the leveldb stores under the data directory or in memory
// when no directory is configured.
func openStores(dataDir string) (*disk.Blocks, *disk.UTXOs, error) {
	if dataDir == "" {
		blocks, err := disk.NewMemoryBlocks()
		if err != nil {
			return nil, nil, err
		}

		utxos, err := disk.NewMemoryUTXOs()
		if err != nil {
			blocks.Close()
			return nil, nil, err
		}

		return blocks, utxos, nil
	}

	blocks, err := disk.NewBlocks(dataDir)
	if err != nil {
		return nil, nil, err
	}

	utxos, err := disk.NewUTXOs(dataDir)
	if err != nil {
		blocks.Close()
		return nil, nil, err
	}

	return blocks, utxos, nil
}

// elapsed is used by the metrics to time operations.
func elapsed(began time.Time) float64 {
	return time.Since(began).Seconds()
}
