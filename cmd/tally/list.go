package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/types"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list <category> <channel>",
	Short: "List a channel's tracked items",
	Long: `List the items in one channel's ledger, in insertion order.

A channel that has never been written lists as empty.

Example:
  tally list bugs C0123
  tally list tasks C0123 --status new`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		category := parseCategoryArg(args[0])
		channelID := args[1]

		var statusFilter *types.Status
		if listStatus != "" {
			status, err := parseStatusFlag(listStatus)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			statusFilter = &status
		}

		cfg := loadConfig()
		ctx := context.Background()
		ls, st := openLedger(ctx, cfg)
		defer st.Close()

		items, err := ls.List(ctx, category, channelID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n", yellow(fmt.Sprintf("%s/%s:", category, channelID)))

		shown := 0
		for idx := range items {
			if statusFilter != nil && items[idx].Status != *statusFilter {
				continue
			}
			printItem(&items[idx])
			shown++
		}
		if shown == 0 {
			fmt.Printf("  %s\n", gray("No items"))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only show items with this status")
}
