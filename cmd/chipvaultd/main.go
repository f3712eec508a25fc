package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "chipvaultd",
		Short: "Custodial chip-vault ledger daemon",
		Long: `chipvaultd keeps custody of player collateral and the chip ledger
for the gaming platform: deposits mint chips against collateral 1:1,
withdrawals redeem them, and authorized game servers settle wins and
losses. Every state change is an event in a hash-chained log.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: chipvault.yaml in cwd)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
