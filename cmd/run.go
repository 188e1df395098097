package cmd

import (
	"github.com/encodeous/ratemesh/core"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ratemesh",
	Long:  `This will run the ratemesh router for the configured node until it receives SIGINT or SIGTERM. SIGHUP reloads the node config.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		debugAddr, _ := cmd.Flags().GetString("debug")
		core.Bootstrap(nodeConfigPath, logPath, debugAddr, verbose)
	},
	GroupID: "rm",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().StringP("debug", "d", "", "Serve expvar metrics on this address, e.g. localhost:6060")
}
