package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/types"
)

var (
	appendURLs      []string
	appendFileURLs  []string
	appendTimestamp string
)

var appendCmd = &cobra.Command{
	Use:   "append <category> <channel> <message>",
	Short: "Append a new tracked item to a channel's ledger",
	Long: `Append a new item directly, without running the dedup pipeline.

The channel's ledger is created on first append. New items start with
status new (0).

Example:
  tally append bugs C0123 "login page is broken"
  tally append tasks C0123 "rotate the API keys" --url https://example.com/runbook`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		category := parseCategoryArg(args[0])
		channelID, message := args[1], args[2]

		cfg := loadConfig()
		ctx := context.Background()
		ls, st := openLedger(ctx, cfg)
		defer st.Close()

		res, err := ls.Append(ctx, category, channelID, types.LedgerItem{
			Message:          message,
			URLs:             appendURLs,
			FileURLs:         appendFileURLs,
			CreatedTimestamp: appendTimestamp,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s Appended to %s/%s (version %d)\n\n", green("✓"), category, channelID, res.Version)
		printItem(&res.Item)
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(appendCmd)
	appendCmd.Flags().StringArrayVar(&appendURLs, "url", nil, "Attach an absolute HTTP(S) URL (repeatable)")
	appendCmd.Flags().StringArrayVar(&appendFileURLs, "file-url", nil, "Attach an absolute HTTP(S) file URL (repeatable)")
	appendCmd.Flags().StringVar(&appendTimestamp, "timestamp", "", "Event time as RFC 3339 UTC (default: now)")
}
