package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <category> <channel>",
	Short: "Show the mutation journal for a channel",
	Long: `List applied mutations for a channel, newest first. Each line shows
what happened (insert, update, or noop), the item affected, and when.

Example:
  tally history bugs C0123
  tally history tasks C0123 --limit 10`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		category := parseCategoryArg(args[0])
		channelID := args[1]

		cfg := loadConfig()
		ctx := context.Background()
		ls, st := openLedger(ctx, cfg)
		defer st.Close()

		entries, err := ls.History(ctx, category, channelID, historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		fmt.Printf("\n%s\n\n", yellow(fmt.Sprintf("%s/%s:", category, channelID)))
		if len(entries) == 0 {
			fmt.Printf("  %s\n\n", gray("No mutations recorded"))
			return
		}

		for _, e := range entries {
			padded := fmt.Sprintf("%-6s", e.Kind)
			var kind string
			switch e.Kind {
			case "insert":
				kind = green(padded)
			case "update":
				kind = cyan(padded)
			default:
				kind = gray(padded)
			}
			fmt.Printf("  %s %s %s\n", kind, e.ItemID, gray(e.CreatedAt))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum entries to show")
}
