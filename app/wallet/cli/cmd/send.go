package cmd

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount uint64
	fee    uint64
	nonce  uint64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Build, sign and submit a transaction",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 1000, "Fee paid to the miner.")
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction, zero uses the current time.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}

func sendRun(cmd *cobra.Command, args []string) error {
	privateKey, err := loadPrivateKey()
	if err != nil {
		return err
	}

	outs, err := fetchOutputs(signature.PrivateKeyAddress(privateKey))
	if err != nil {
		return err
	}

	// Only single key outputs can be spent by this wallet.
	var utxos []database.UTXO
	for _, out := range outs.Outputs {
		if out.Lock != database.PayToPublicKey.String() {
			continue
		}

		utxos = append(utxos, database.UTXO{
			Ref:    database.OutputRef{TxID: out.TxID, Index: out.Index},
			Output: database.NewOutput(out.Recipient, out.Value),
		})
	}

	tx, err := wallet.Build(wallet.SpendRequest{To: to, Amount: amount, Fee: fee, Nonce: nonce}, utxos, privateKey)
	if err != nil {
		return err
	}

	if err := submit(tx); err != nil {
		return err
	}

	pterm.Success.Printfln("transaction %s submitted: inputs[%d] outputs[%d]", tx.ID, len(tx.Inputs), len(tx.Outputs))
	return nil
}
