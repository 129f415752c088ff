// Package genesis maintains access to the genesis file.
package genesis

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPath is where the node looks for the genesis file.
const DefaultPath = "zblock/genesis.json"

// Genesis represents the genesis file.
type Genesis struct {
	Date         time.Time         `json:"date"`
	ChainID      uint16            `json:"chain_id"`      // The chain id represents an unique id for this running instance.
	Difficulty   uint              `json:"difficulty"`    // How difficult it needs to be to solve the work problem.
	MiningReward uint64            `json:"mining_reward"` // Reward for mining a block before any halving.
	Balances     map[string]uint64 `json:"balances"`      // Starting outputs created with the genesis block.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	if path == "" {
		path = DefaultPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the balances name real addresses and that the total
// supply they create can be represented.
func (g Genesis) Validate() error {
	if g.Difficulty > 64 {
		return fmt.Errorf("difficulty %d is larger than a hash", g.Difficulty)
	}

	values := make([]uint64, 0, len(g.Balances))
	for address, value := range g.Balances {
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid address %q", address)
		}
		values = append(values, value)
	}

	if _, err := database.AddValues(values...); err != nil {
		return fmt.Errorf("genesis supply: %w", err)
	}

	return nil
}

// Allocations returns the starting outputs for the balances. Output i of
// the genesis block belongs to the i-th address in sorted order so every
// node derives the same references.
func (g Genesis) Allocations(genesisHash string) []database.UTXO {
	addresses := make([]string, 0, len(g.Balances))
	for address, value := range g.Balances {
		if value > 0 {
			addresses = append(addresses, address)
		}
	}
	sort.Strings(addresses)

	utxos := make([]database.UTXO, len(addresses))
	for i, address := range addresses {
		utxos[i] = database.UTXO{
			Ref:    database.OutputRef{TxID: genesisHash, Index: uint32(i)},
			Output: database.NewOutput(address, g.Balances[address]),
		}
	}

	return utxos
}
