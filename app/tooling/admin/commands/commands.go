// Package commands contains the admin tooling commands.
package commands

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Root constructs the admin command tree.
func Root(log *zap.SugaredLogger) *cobra.Command {
	var dataDir string

	root := cobra.Command{
		Use:           "admin",
		Short:         "Administrative tasks for a stopped node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "zblock/data", "Path to the node data directory.")

	root.AddCommand(
		verifyCmd(log, &dataDir),
		blocksCmd(log, &dataDir),
		balancesCmd(log, &dataDir),
	)

	return &root
}

// openChain opens the block store of the data directory. The node must be
// stopped since leveldb allows a single process at a time.
func openChain(log *zap.SugaredLogger, dataDir string) (*database.Database, error) {
	blocks, err := disk.NewBlocks(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening blocks: %w", err)
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	db, err := database.New(blocks, ev)
	if err != nil {
		blocks.Close()
		return nil, err
	}

	return db, nil
}
