package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func balancesCmd(log *zap.SugaredLogger, dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balances [address]",
		Short: "Sum the unspent outputs by recipient",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			utxos, err := disk.NewUTXOs(*dataDir)
			if err != nil {
				return fmt.Errorf("opening utxos: %w", err)
			}
			defer utxos.Close()

			var only string
			if len(args) == 1 {
				only = args[0]
			}

			data, err := Balances(utxos, only)
			if err != nil {
				return err
			}

			log.Debugw("balances", "rows", len(data)-1)

			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}

// OutputSource walks every unspent output.
type OutputSource interface {
	ForEach(fn func(utxo database.UTXO) error) error
}

// Balances returns a table of balances by recipient sorted by address. When
// only is set just that recipient is reported.
func Balances(src OutputSource, only string) (pterm.TableData, error) {
	type total struct {
		value   uint64
		outputs int
	}
	totals := make(map[string]total)

	err := src.ForEach(func(utxo database.UTXO) error {
		recipient := utxo.Output.Recipient
		if only != "" && recipient != only {
			return nil
		}

		t := totals[recipient]
		value, err := database.AddValues(t.value, utxo.Output.Value)
		if err != nil {
			return err
		}
		totals[recipient] = total{value: value, outputs: t.outputs + 1}

		return nil
	})
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(totals))
	for address := range totals {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	data := pterm.TableData{{"Address", "Outputs", "Balance"}}
	for _, address := range addresses {
		t := totals[address]
		data = append(data, []string{address, strconv.Itoa(t.outputs), strconv.FormatUint(t.value, 10)})
	}

	return data, nil
}
