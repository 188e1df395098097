package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var tableCmd = &cobra.Command{
	Use:     "table",
	Aliases: []string{"t"},
	Short:   "Prints the advertisements the configured node would send",
	Run: func(cmd *cobra.Command, args []string) {
		tables, cfg, err := loadTables(cmd)
		if err != nil {
			fmt.Println("Error:", err.Error())
			os.Exit(1)
		}
		maxPoints, _ := cmd.Flags().GetInt("max-points")
		if maxPoints == 0 {
			maxPoints = cfg.MaxPoints
		}
		advs, err := tables.ToAdvertisements(maxPoints)
		if err != nil {
			fmt.Println("Error:", err.Error())
			os.Exit(1)
		}
		out, err := yaml.Marshal(advs)
		if err != nil {
			panic(err)
		}
		fmt.Print(string(out))
	},
	GroupID: "rm",
}

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.Flags().IntP("max-points", "p", 0, "simplify curves to this many points, defaults to max_points of the node")
}
