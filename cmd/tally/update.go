package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/types"
)

var (
	updateStatus    string
	updateURLs      []string
	updateFileURLs  []string
	updateTimestamp string
)

var updateCmd = &cobra.Command{
	Use:   "update <category> <channel> <item-id>",
	Short: "Update an existing tracked item",
	Long: `Apply a partial update to one item. The message is immutable; status,
URLs, and the updated timestamp can change.

Example:
  tally update bugs C0123 bugs_1717236000123456789 --status resolved
  tally update tasks C0123 tasks_42 --url https://example.com/pr/7`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		category := parseCategoryArg(args[0])
		channelID, itemID := args[1], args[2]

		update := types.ItemUpdate{
			UpdatedTimestamp: updateTimestamp,
			URLs:             updateURLs,
			FileURLs:         updateFileURLs,
		}
		if updateStatus != "" {
			status, err := parseStatusFlag(updateStatus)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			update.Status = &status
		}
		if update.IsZero() {
			fmt.Fprintf(os.Stderr, "Error: nothing to update (set --status, --url, --file-url, or --timestamp)\n")
			os.Exit(1)
		}

		cfg := loadConfig()
		ctx := context.Background()
		ls, st := openLedger(ctx, cfg)
		defer st.Close()

		res, err := ls.Update(ctx, category, channelID, itemID, update)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s Updated %s/%s (version %d)\n\n", green("✓"), category, channelID, res.Version)
		printItem(&res.Item)
		fmt.Println()
	},
}

// parseStatusFlag accepts both numeric codes and names.
func parseStatusFlag(s string) (types.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new", "0":
		return types.StatusNew, nil
	case "in_progress", "in-progress", "1":
		return types.StatusInProgress, nil
	case "resolved", "2":
		return types.StatusResolved, nil
	default:
		return 0, fmt.Errorf("unknown status %q (valid: new, in_progress, resolved)", s)
	}
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status: new, in_progress, or resolved")
	updateCmd.Flags().StringArrayVar(&updateURLs, "url", nil, "Replace the item's URLs (repeatable)")
	updateCmd.Flags().StringArrayVar(&updateFileURLs, "file-url", nil, "Replace the item's file URLs (repeatable)")
	updateCmd.Flags().StringVar(&updateTimestamp, "timestamp", "", "Updated time as RFC 3339 UTC (default: now)")
}
