package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/ai"
	"github.com/tallyhq/tally/internal/dedup"
	"github.com/tallyhq/tally/internal/match"
	"github.com/tallyhq/tally/internal/types"
)

var (
	processThreshold float64
	processPolicy    string
	processTimestamp string
	processDryRun    bool
	processURLs      []string
	processFileURLs  []string
)

// maxApplyRetries bounds how often process re-reads and re-decides after
// losing a write race. Each retry runs the full pipeline again, since the
// match decision may change against the fresh ledger.
const maxApplyRetries = 3

var processCmd = &cobra.Command{
	Use:   "process <category> <channel> <message>",
	Short: "Run a message through the dedup pipeline",
	Long: `Decide whether a message reports a new tracked item or updates an
existing one, then apply the decision to the channel's ledger.

The pipeline embeds the message, scans the channel's items for one with
cosine similarity at or above the threshold, and classifies the message
as reporting a new issue (0) or a completion (2). A matched message
updates the item's status; an unmatched one becomes a new item.

Requires ANTHROPIC_API_KEY, plus OPENAI_API_KEY when the embedding
provider is openai.

Example:
  tally process bugs C0123 "login page is broken"
  tally process bugs C0123 "login works again" --threshold 0.8
  tally process bugs C0123 "login works again" --dry-run`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		category := parseCategoryArg(args[0])
		channelID, message := args[1], args[2]

		cfg := loadConfig()
		threshold := cfg.SimilarityThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = processThreshold
		}
		policy := cfg.MatchPolicy
		if processPolicy != "" {
			policy = match.Policy(processPolicy)
		}

		embedder, err := ai.NewEmbedder(cfg.EmbedderConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		classifier, err := ai.NewClassifier(cfg.ClassifierConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		ls, st := openLedger(ctx, cfg)
		defer st.Close()

		engine, err := dedup.NewEngine(dedup.EngineConfig{
			Embedder:    embedder,
			Classifier:  classifier,
			IDs:         ls.IDs(),
			MatchPolicy: policy,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		for attempt := 0; ; attempt++ {
			snap, err := ls.Snapshot(ctx, category, channelID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			res, err := engine.Process(ctx, dedup.Request{
				Category:  category,
				ChannelID: channelID,
				Message:   message,
				URLs:      processURLs,
				FileURLs:  processFileURLs,
				Timestamp: processTimestamp,
				Existing:  snap.Items,
				Threshold: threshold,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if processDryRun {
				fmt.Printf("\n%s Dry run, nothing written\n\n", yellow("⚠"))
				describeDecision(res, threshold)
				fmt.Println()
				return
			}

			applied, err := ls.ApplyAt(ctx, res.Mutation, snap.Version)
			if errors.Is(err, types.ErrConcurrentModification) {
				if attempt == maxApplyRetries {
					fmt.Fprintf(os.Stderr, "Error: %s/%s kept changing under us, giving up after %d attempts: %v\n",
						category, channelID, attempt+1, err)
					os.Exit(1)
				}
				fmt.Printf("%s Ledger changed concurrently, retrying with a fresh read\n", gray("→"))
				continue
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			switch {
			case !res.IsUpdate:
				fmt.Printf("\n%s No match at or above %.2f, created new item\n\n", green("✓"), threshold)
			case applied.Noop:
				fmt.Printf("\n%s Matched %s (similarity %.3f), status unchanged\n\n",
					green("✓"), cyan(res.Mutation.TargetID()), res.MatchScore)
			default:
				fmt.Printf("\n%s Matched %s (similarity %.3f), status %s\n\n",
					green("✓"), cyan(res.Mutation.TargetID()), res.MatchScore, res.Status)
			}
			printItem(&applied.Item)
			fmt.Println()
			return
		}
	},
}

// describeDecision renders a dry-run result without touching the store.
func describeDecision(res dedup.Result, threshold float64) {
	cyan := color.New(color.FgCyan).SprintFunc()

	if !res.IsUpdate {
		fmt.Printf("  Decision: no match at or above %.2f, insert new item %s with status %s\n",
			threshold, cyan(res.Mutation.TargetID()), res.Status)
		return
	}
	if res.Mutation.IsNoop() {
		fmt.Printf("  Decision: message matches %s (similarity %.3f), no field changes\n",
			cyan(res.Mutation.TargetID()), res.MatchScore)
		return
	}
	fmt.Printf("  Decision: update %s (similarity %.3f) to status %s\n",
		cyan(res.Mutation.TargetID()), res.MatchScore, res.Status)
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().Float64Var(&processThreshold, "threshold", 0, "Similarity cutoff in [0, 1] (default: config value)")
	processCmd.Flags().StringVar(&processPolicy, "policy", "", "Match tie-break: first_above_threshold or best_match")
	processCmd.Flags().StringVar(&processTimestamp, "timestamp", "", "Event time as RFC 3339 UTC (default: now)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Decide but do not write")
	processCmd.Flags().StringArrayVar(&processURLs, "url", nil, "Attach an absolute HTTP(S) URL to a new item (repeatable)")
	processCmd.Flags().StringArrayVar(&processFileURLs, "file-url", nil, "Attach a file URL to a new item (repeatable)")
}
