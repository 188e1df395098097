package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/ratemesh/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [id]",
	Short: "Create a sample node configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			return
		}
		id := args[0]
		if err := state.NameValidator(id); err != nil {
			fmt.Printf("Invalid id: %s\n", id)
			os.Exit(-1)
		}

		nodeCfg := state.SampleNodeCfg(id)
		if snapshot, _ := cmd.Flags().GetString("snapshot"); snapshot != "" {
			nodeCfg.SnapshotPath = snapshot
		}
		if err := state.NodeConfigValidator(&nodeCfg); err != nil {
			panic(err)
		}

		ncfg, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			panic(err)
		}

		outPath := cmd.Flag("output").Value.String()
		err = os.WriteFile(outPath, ncfg, 0700)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("output", "o", DefaultNodeConfigPath, "node config output file path")
	initCmd.Flags().StringP("snapshot", "s", "", "persist learned routes to this sqlite database")
}
