package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/tallyhq/tally/internal/types"
)

// statusGlyph returns the colored icon and label for an item status.
func statusGlyph(s types.Status) (string, string) {
	switch s {
	case types.StatusNew:
		red := color.New(color.FgRed).SprintFunc()
		return red("●"), red("new")
	case types.StatusInProgress:
		yellow := color.New(color.FgYellow).SprintFunc()
		return yellow("◐"), yellow("in_progress")
	case types.StatusResolved:
		green := color.New(color.FgGreen).SprintFunc()
		return green("✓"), green("resolved")
	default:
		gray := color.New(color.FgHiBlack).SprintFunc()
		return gray("○"), gray(s.String())
	}
}

// printItem renders one ledger item in the multi-line list format.
func printItem(item *types.LedgerItem) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	icon, label := statusGlyph(item.Status)
	fmt.Printf("  %s %s %s\n", icon, cyan(item.ID), label)
	fmt.Printf("    %s\n", item.Message)
	fmt.Printf("    %s\n", gray(fmt.Sprintf("created %s, updated %s",
		item.CreatedTimestamp, item.UpdatedTimestamp)))
	for _, u := range item.URLs {
		fmt.Printf("    %s\n", gray("url:  "+u))
	}
	for _, u := range item.FileURLs {
		fmt.Printf("    %s\n", gray("file: "+u))
	}
}
