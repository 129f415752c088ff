package cmd

import (
	"strconv"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance and the outputs it is made of",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	privateKey, err := loadPrivateKey()
	if err != nil {
		return err
	}

	address := signature.PrivateKeyAddress(privateKey)

	outs, err := fetchOutputs(address)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"Output", "Lock", "Value"}}

	var total uint64
	for _, out := range outs.Outputs {
		total += out.Value
		data = append(data, []string{
			out.TxID + ":" + strconv.FormatUint(uint64(out.Index), 10),
			out.Lock,
			strconv.FormatUint(out.Value, 10),
		})
	}

	pterm.DefaultSection.Println("Address " + address)
	pterm.Info.Println("latest block " + outs.LatestBlock)

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Success.Printfln("balance %d", total)
	return nil
}
