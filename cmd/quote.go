package cmd

import (
	"fmt"
	"math/big"
	"os"

	"github.com/encodeous/ratemesh/core"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
)

var quoteCmd = &cobra.Command{
	Use:     "quote",
	Aliases: []string{"q"},
	Short:   "Quotes a payment using the routes known to the configured node",
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		sourceAmount, _ := cmd.Flags().GetString("source-amount")
		destinationAmount, _ := cmd.Flags().GetString("destination-amount")

		tables, _, err := loadTables(cmd)
		if err != nil {
			fmt.Println("Error:", err.Error())
			os.Exit(1)
		}

		var q *core.Quote
		if sourceAmount != "" {
			q, err = quoteBy(sourceAmount, tables.FindBestHopForSourceAmount, from, to)
		} else {
			q, err = quoteBy(destinationAmount, tables.FindBestHopForDestinationAmount, from, to)
		}
		if err != nil {
			fmt.Println("Error:", err.Error())
			os.Exit(1)
		}

		out, err := sonnet.Marshal(q)
		if err != nil {
			panic(err)
		}
		fmt.Println(string(out))
	},
	GroupID: "rm",
}

func quoteBy(raw string, find func(source, destination string, amount *big.Int) (*core.Quote, error), source, destination string) (*core.Quote, error) {
	amount, err := parseAmount(raw)
	if err != nil {
		return nil, err
	}
	return find(source, destination, amount)
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().String("from", "", "source ledger")
	quoteCmd.Flags().String("to", "", "destination ledger")
	quoteCmd.Flags().String("source-amount", "", "amount sent on the source ledger")
	quoteCmd.Flags().String("destination-amount", "", "amount delivered on the destination ledger")
	_ = quoteCmd.MarkFlagRequired("from")
	_ = quoteCmd.MarkFlagRequired("to")
	quoteCmd.MarkFlagsOneRequired("source-amount", "destination-amount")
	quoteCmd.MarkFlagsMutuallyExclusive("source-amount", "destination-amount")
}
