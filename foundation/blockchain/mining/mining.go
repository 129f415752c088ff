// Package mining implements the proof of work search. A search fans out over
// a fixed number of workers, each hashing its own contiguous range of
// nonces, and stops every worker as soon as one of them finds a solution.
package mining

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"runtime"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ErrProofOfWorkExhausted is returned when no nonce in the searched ranges
// solves the block. The caller may retry with the next window of nonces.
var ErrProofOfWorkExhausted = errors.New("proof of work exhausted")

// DefaultNonceRange is the number of nonces each worker searches.
const DefaultNonceRange = 10_000_000

// progressEvery is how often the first worker reports its progress.
const progressEvery = 1_000_000

// Config represents the configuration for the engine.
type Config struct {
	Workers    int
	NonceRange uint64
	EvHandler  func(v string, args ...any)
}

// Engine performs the proof of work search for blocks.
type Engine struct {
	workers    int
	nonceRange uint64
	evHandler  func(v string, args ...any)
}

// New constructs an engine. Zero values select one worker per CPU and the
// default nonce range.
func New(cfg Config) *Engine {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	nonceRange := cfg.NonceRange
	if nonceRange == 0 {
		nonceRange = DefaultNonceRange
	}

	return &Engine{
		workers:    workers,
		nonceRange: nonceRange,
		evHandler:  ev,
	}
}

// Workers returns the number of workers used per search.
func (e *Engine) Workers() int {
	return e.workers
}

// Span returns the number of nonces covered by one call to Mine. A retry
// should start where the previous search ended.
func (e *Engine) Span() uint64 {
	return uint64(e.workers) * e.nonceRange
}

// Result describes a solved block.
type Result struct {
	Hash     string
	Nonce    uint64
	Attempts uint64
	Duration time.Duration
	HashRate uint64 // Attempts per second.
}

// Mine searches for a nonce that makes the header hash meet its difficulty.
// Worker i searches [start+i*R, start+(i+1)*R). Cancelling the context stops
// the search and returns the context error.
func (e *Engine) Mine(ctx context.Context, header database.BlockHeader, start uint64) (Result, error) {
	seal, err := database.NewSeal(header)
	if err != nil {
		return Result{}, err
	}

	e.evHandler("mining: Mine: started: blk[%d]: difficulty[%d]: workers[%d]: start[%d]", header.Number, header.Difficulty, e.workers, start)

	var stop atomic.Bool
	var attempts atomic.Uint64

	// Only the first solution is ever sent.
	found := make(chan Result, 1)

	g, gctx := errgroup.WithContext(ctx)

	// Cancellation reaches the workers through the same flag a solution sets.
	release := context.AfterFunc(gctx, func() { stop.Store(true) })
	defer release()

	began := time.Now()

	for i := 0; i < e.workers; i++ {
		lo, hi := e.window(start, i)
		worker := i

		g.Go(func() error {
			s := seal.Clone()

			var tried uint64
			defer func() { attempts.Add(tried) }()

			for nonce := lo; nonce < hi; nonce++ {
				if stop.Load() {
					return nil
				}

				tried++
				if worker == 0 && tried%progressEvery == 0 {
					e.evHandler("mining: Mine: worker[0]: attempts[%d]", tried)
				}

				sum := s.Sum(nonce)
				if !database.MeetsDifficulty(sum, header.Difficulty) {
					continue
				}

				if stop.CompareAndSwap(false, true) {
					found <- Result{Hash: hex.EncodeToString(sum[:]), Nonce: nonce}
				}
				return nil
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	elapsed := time.Since(began)
	total := attempts.Load()

	select {
	case res := <-found:
		res.Attempts = total
		res.Duration = elapsed
		res.HashRate = hashRate(total, elapsed)

		e.evHandler("mining: Mine: SOLVED: blk[%d]: hash[%s]: nonce[%d]: attempts[%d]: rate[%d/s]", header.Number, res.Hash, res.Nonce, res.Attempts, res.HashRate)
		return res, nil

	default:
	}

	if err := ctx.Err(); err != nil {
		e.evHandler("mining: Mine: CANCELLED: blk[%d]: attempts[%d]", header.Number, total)
		return Result{}, err
	}

	e.evHandler("mining: Mine: EXHAUSTED: blk[%d]: attempts[%d]", header.Number, total)

	return Result{Attempts: total, Duration: elapsed, HashRate: hashRate(total, elapsed)}, ErrProofOfWorkExhausted
}

// window returns the half open nonce range for the worker. Ranges that
// would run past the largest nonce are cut short.
func (e *Engine) window(start uint64, worker int) (uint64, uint64) {
	offset := uint64(worker) * e.nonceRange
	if offset > math.MaxUint64-start {
		return math.MaxUint64, math.MaxUint64
	}

	lo := start + offset
	if e.nonceRange > math.MaxUint64-lo {
		return lo, math.MaxUint64
	}

	return lo, lo + e.nonceRange
}

func hashRate(attempts uint64, elapsed time.Duration) uint64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return attempts
	}

	return uint64(float64(attempts) / secs)
}
