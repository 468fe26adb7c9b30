package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/ai"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/storage"
	"github.com/tallyhq/tally/internal/types"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check tally configuration and environment health",
	Long: `Run health checks to diagnose common tally configuration issues.

This command checks for:
- Valid configuration (file and environment)
- Storage backend reachability
- Required API credentials
- AI provider client construction
- Ledger read path

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent tally from running`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running tally health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: Configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		cfg, err := config.Load(rootDir)
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Invalid configuration: %v", err))
			fmt.Printf("  %s Configuration is invalid\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			if backendFlag != "" {
				cfg.StorageBackend = backendFlag
			}
			if dbPathFlag != "" {
				cfg.DBPath = dbPathFlag
			}
			fmt.Printf("  %s Configuration loaded\n", green("✓"))
			if verbose {
				fmt.Printf("    %s\n", cfg.String())
			}
			configPath := filepath.Join(rootDir, ".tally", "config.yaml")
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				warnings = append(warnings, fmt.Sprintf("No config file at %s (defaults in use, run 'tally init')", configPath))
				fmt.Printf("  %s No config file, using defaults\n", yellow("⚠"))
			}
		}

		if cfg == nil {
			fmt.Printf("\n%s Critical failures prevent tally from running\n", red("✗"))
			os.Exit(2)
		}

		// Check 2: Storage backend
		fmt.Printf("%s Storage backend (%s)\n", cyan("→"), cfg.StorageBackend)
		ctx := context.Background()
		st, err := storage.NewStorage(ctx, resolveStorageConfig(cfg))
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot open storage: %v", err))
			fmt.Printf("  %s Cannot open storage\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			defer st.Close()
			if err := st.Ping(ctx); err != nil {
				criticalFailures = append(criticalFailures, fmt.Sprintf("Storage unreachable: %v", err))
				fmt.Printf("  %s Storage unreachable\n", red("✗"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				fmt.Printf("  %s Storage reachable\n", green("✓"))
			}
		}

		// Check 3: Anthropic credentials
		fmt.Printf("%s Anthropic credentials\n", cyan("→"))
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			failures = append(failures, "ANTHROPIC_API_KEY not set (required by 'tally process')")
			fmt.Printf("  %s ANTHROPIC_API_KEY not set\n", red("✗"))
		} else {
			fmt.Printf("  %s ANTHROPIC_API_KEY set\n", green("✓"))
		}

		// Check 4: Embedding credentials
		provider := cfg.EmbeddingProvider
		if provider == "" {
			provider = string(ai.EmbeddingProviderOpenAI)
		}
		fmt.Printf("%s Embedding provider (%s)\n", cyan("→"), provider)
		switch provider {
		case string(ai.EmbeddingProviderOllama):
			fmt.Printf("  %s Ollama needs no API key\n", green("✓"))
		default:
			if os.Getenv("OPENAI_API_KEY") == "" {
				failures = append(failures, "OPENAI_API_KEY not set (required by 'tally process')")
				fmt.Printf("  %s OPENAI_API_KEY not set\n", red("✗"))
			} else {
				fmt.Printf("  %s OPENAI_API_KEY set\n", green("✓"))
			}
		}

		// Check 5: AI client construction
		fmt.Printf("%s AI clients\n", cyan("→"))
		classifierModel := cfg.ClassifierModel
		if classifierModel == "" {
			classifierModel = ai.GetClassifierModel()
		}
		if _, err := ai.NewClassifier(cfg.ClassifierConfig()); err != nil {
			failures = append(failures, fmt.Sprintf("Classifier unavailable: %v", err))
			fmt.Printf("  %s Classifier unavailable\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Classifier ready (%s)\n", green("✓"), classifierModel)
		}
		if _, err := ai.NewEmbedder(cfg.EmbedderConfig()); err != nil {
			failures = append(failures, fmt.Sprintf("Embedder unavailable: %v", err))
			fmt.Printf("  %s Embedder unavailable\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Embedder ready\n", green("✓"))
		}

		// Check 6: Ledger read path
		fmt.Printf("%s Ledger read path\n", cyan("→"))
		if st != nil {
			ls, err := ledger.NewStore(st, cfg.LedgerConfig())
			if err != nil {
				failures = append(failures, fmt.Sprintf("Cannot build ledger store: %v", err))
				fmt.Printf("  %s Cannot build ledger store\n", red("✗"))
			} else if _, err := ls.Snapshot(ctx, types.CategoryBugs, "doctor-probe"); err != nil {
				failures = append(failures, fmt.Sprintf("Ledger read failed: %v", err))
				fmt.Printf("  %s Ledger read failed\n", red("✗"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				fmt.Printf("  %s Ledger reads work\n", green("✓"))
			}
		} else {
			fmt.Printf("  %s Skipped (storage unavailable)\n", yellow("⚠"))
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! tally is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
			for _, failure := range criticalFailures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s tally cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s tally may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s tally should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	rootCmd.AddCommand(doctorCmd)
}
