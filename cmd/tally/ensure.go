package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ensureCmd = &cobra.Command{
	Use:   "ensure-channel <category> <channel>",
	Short: "Create an empty ledger for a channel if one does not exist",
	Long: `Make sure a channel's ledger exists for a category. Creates an empty
ledger when the channel is new and leaves existing items untouched.
Safe to run repeatedly.

Example:
  tally ensure-channel bugs C0123`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		category := parseCategoryArg(args[0])
		channelID := args[1]

		cfg := loadConfig()
		ctx := context.Background()
		ls, st := openLedger(ctx, cfg)
		defer st.Close()

		created, err := ls.EnsureChannel(ctx, category, channelID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		if created {
			fmt.Printf("%s Created empty ledger for %s\n", green("✓"), cyan(fmt.Sprintf("%s/%s", category, channelID)))
		} else {
			fmt.Printf("%s Ledger for %s already exists %s\n", green("✓"), cyan(fmt.Sprintf("%s/%s", category, channelID)), gray("(unchanged)"))
		}
	},
}

func init() {
	rootCmd.AddCommand(ensureCmd)
}
