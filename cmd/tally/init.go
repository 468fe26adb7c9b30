package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const starterConfig = `# tally configuration. TALLY_* environment variables override this file.
storage:
  backend: sqlite
  path: .tally/tally.db
dedup:
  similarity_threshold: 0.85
  match_policy: first_above_threshold
ledger:
  lock_timeout: 10s
# classifier:
#   model: claude-3-5-haiku-20241022
# embedding:
#   provider: openai
#   model: text-embedding-ada-002
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a tally ledger in the current directory",
	Long: `Initialize a tally ledger by creating a .tally/ directory.

This creates:
  - .tally/ directory
  - .tally/tally.db (SQLite database)
  - .tally/config.yaml (starter configuration, kept if already present)

Channels are created lazily on first append; init only prepares storage.

Example:
  cd ~/team-tracker
  tally init
  tally append bugs C0123 "login page is broken"`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dir := filepath.Join(rootDir, ".tally")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}

		configPath := filepath.Join(dir, "config.yaml")
		wroteConfig := false
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
				os.Exit(1)
			}
			wroteConfig = true
		}

		// Opening the backend once initializes the schema
		cfg := loadConfig()
		ctx := context.Background()
		_, st := openLedger(ctx, cfg)
		_ = st.Close()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		scfg := resolveStorageConfig(cfg)
		database := scfg.Backend
		if scfg.Backend == "sqlite" {
			database = scfg.Path
		}

		fmt.Printf("\n%s Initialized tally ledger\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(database))
		if wroteConfig {
			fmt.Printf("  Config:   %s\n", cyan(configPath))
		} else {
			fmt.Printf("  Config:   %s %s\n", cyan(configPath), gray("(existing, kept)"))
		}
		fmt.Println()

		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray(`tally append bugs <channel> "<message>"`))
		fmt.Printf("  %s\n", gray(`tally process bugs <channel> "<message>"  # AI dedup pipeline`))
		fmt.Printf("  %s\n", gray("tally doctor"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
