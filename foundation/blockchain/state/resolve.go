package state

import (
	"errors"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mining"
	"github.com/ardanlabs/utxochain/foundation/blockchain/validator"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// ErrStateDiverged is returned when the chain and the ledger no longer agree.
// The node must not keep mining on top of it.
var ErrStateDiverged = errors.New("chain and ledger diverged")

// ErrMiningStalled is returned when the proof of work has been exhausted for
// too many consecutive windows at the current difficulty.
var ErrMiningStalled = errors.New("mining stalled")

// Resolution is the recovery action for an error.
type Resolution int

// Set of resolutions an error can map to.
const (
	None Resolution = iota
	RejectTransaction
	ReturnToSender
	RetryMining
	ResyncWithNetwork
	AdjustDifficulty
	HaltAndAlert
)

var resolutionNames = map[Resolution]string{
	None:              "none",
	RejectTransaction: "reject_transaction",
	ReturnToSender:    "return_to_sender",
	RetryMining:       "retry_mining",
	ResyncWithNetwork: "resync_with_network",
	AdjustDifficulty:  "adjust_difficulty",
	HaltAndAlert:      "halt_and_alert",
}

// String implements the fmt.Stringer interface.
func (r Resolution) String() string {
	if name, exists := resolutionNames[r]; exists {
		return name
	}
	return "unknown"
}

// Resolve maps an error to the action that recovers from it. Errors the
// node knows nothing about resolve to None and are only logged.
func Resolve(err error) Resolution {
	switch {
	case err == nil:
		return None

	case errors.Is(err, validator.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, mempool.ErrPoolFull):
		return ReturnToSender

	case validator.IsValidationError(err),
		errors.Is(err, mempool.ErrDuplicate),
		errors.Is(err, mempool.ErrInputInUse):
		return RejectTransaction

	case errors.Is(err, ErrMiningStalled):
		return AdjustDifficulty

	case errors.Is(err, mining.ErrProofOfWorkExhausted):
		return RetryMining

	case errors.Is(err, database.ErrPrevHashMismatch),
		errors.Is(err, database.ErrNumberMismatch),
		errors.Is(err, database.ErrHashMismatch),
		errors.Is(err, database.ErrMerkleMismatch),
		errors.Is(err, database.ErrHashNotSolved):
		return ResyncWithNetwork

	case errors.Is(err, ErrStateDiverged):
		return HaltAndAlert
	}

	return None
}

// IsRejection reports whether the error only rejects the submitted
// transaction and should be reported back to the caller.
func IsRejection(err error) bool {
	switch Resolve(err) {
	case RejectTransaction, ReturnToSender:
		return true
	}
	return false
}
