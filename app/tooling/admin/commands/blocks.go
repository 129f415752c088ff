package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func blocksCmd(log *zap.SugaredLogger, dataDir *string) *cobra.Command {
	var from, to uint64

	cmd := cobra.Command{
		Use:   "blocks",
		Short: "List the blocks in the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openChain(log, *dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := Blocks(db, from, to)
			if err != nil {
				return err
			}

			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First block number.")
	cmd.Flags().Uint64Var(&to, "to", 0, "Last block number, zero means the tip.")

	return &cmd
}

// Blocks returns a table of the blocks between the numbers inclusive.
func Blocks(db *database.Database, from uint64, to uint64) (pterm.TableData, error) {
	data := pterm.TableData{{"Number", "Hash", "Txs", "Difficulty", "Reward", "Size", "Time"}}

	if db.IsEmpty() {
		return data, nil
	}

	if height := db.Height(); to == 0 || to > height {
		to = height
	}
	if from > to {
		return nil, fmt.Errorf("invalid range: from[%d] to[%d]", from, to)
	}

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if block.Header.Number < from {
			continue
		}
		if block.Header.Number > to {
			break
		}

		data = append(data, row(block))
	}

	return data, nil
}

func row(block database.Block) []string {
	return []string{
		strconv.FormatUint(block.Header.Number, 10),
		block.Hash,
		strconv.Itoa(len(block.Transactions)),
		strconv.FormatUint(uint64(block.Header.Difficulty), 10),
		strconv.FormatUint(block.PoW.Reward, 10),
		strconv.FormatUint(block.Size, 10),
		time.Unix(0, block.Header.Timestamp).UTC().Format(time.RFC3339),
	}
}
