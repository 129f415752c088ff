package state

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Set of difficulty retarget policies.
const (
	RetargetFixed   = "fixed"
	RetargetHalving = "halving"
)

// MaxDifficulty is the number of hex digits in a block hash.
const MaxDifficulty = 64

// DefaultAdjustmentInterval is the number of blocks between difficulty
// adjustments.
const DefaultAdjustmentInterval = 2016

// RetargetFunc returns the difficulty for the block at the height that
// follows the previous block.
type RetargetFunc func(prev database.Block, height uint64) uint

// NewRetarget returns the named retarget policy. An empty name selects the
// fixed policy.
func NewRetarget(name string, base uint, interval uint64) (RetargetFunc, error) {
	if interval == 0 {
		interval = DefaultAdjustmentInterval
	}

	switch name {
	case "", RetargetFixed:
		return func(database.Block, uint64) uint {
			return base
		}, nil

	// Halving the target adds leading zero bits, the nearest step in hex
	// digits is one more than the base.
	case RetargetHalving:
		return func(prev database.Block, height uint64) uint {
			if height == 0 || height%interval != 0 {
				return prev.Header.Difficulty
			}

			return min(base+1, MaxDifficulty)
		}, nil
	}

	return nil, fmt.Errorf("retarget policy %q does not exist", name)
}

// Reward returns the mining reward for the block at the height. The base
// reward halves every halving interval and reaches zero after 64 halvings.
func Reward(base uint64, halving uint64, height uint64) uint64 {
	if halving == 0 {
		return base
	}

	shift := height / halving
	if shift >= 64 {
		return 0
	}

	return base >> shift
}
