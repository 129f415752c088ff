package commands

import (
	"errors"
	"strconv"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrIntegrity is returned when the chain fails verification.
var ErrIntegrity = errors.New("chain failed integrity verification")

func verifyCmd(log *zap.SugaredLogger, dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-verify every block hash and link in the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openChain(log, *dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			return Verify(db)
		},
	}
}

// Verify checks the integrity of the chain and prints the result.
func Verify(db *database.Database) error {
	if db.IsEmpty() {
		pterm.Warning.Println("chain is empty")
		return nil
	}

	tip, err := db.Tip()
	if err != nil {
		return err
	}

	pterm.Info.Println("height " + strconv.FormatUint(tip.Header.Number, 10))
	pterm.Info.Println("tip    " + tip.Hash)

	if !db.VerifyIntegrity() {
		pterm.Error.Println("integrity check failed")
		return ErrIntegrity
	}

	pterm.Success.Println("integrity check passed")
	return nil
}
