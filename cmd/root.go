package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var nodeConfigPath = DefaultNodeConfigPath

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ratemesh",
	Short: "Ratemesh Liquidity Routing CLI",
	Long: `Ratemesh routes payments across ledgers.
Each node quotes exchange rates between the ledgers it holds accounts on, learns the rates its peers advertise, and answers quotes for the best path to any reachable ledger.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Ratemesh",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "rm",
		Title: "Ratemesh Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&nodeConfigPath, "node-config", "n", nodeConfigPath, "node-specific config")
}
