package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/storage"
	"github.com/tallyhq/tally/internal/types"
)

var (
	rootDir     string
	backendFlag string
	dbPathFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Per-channel tracker for bugs, blockers, and tasks",
	Long: `tally keeps an ordered ledger of tracked items (bugs, blockers, tasks)
per communication channel, and decides for each incoming message whether
it reports a new item or updates an existing one.

The decision pipeline embeds the message, scans the channel's items for
a similar one, and classifies the message as reporting a new issue or a
completion. Configuration lives in .tally/config.yaml; TALLY_* environment
variables override it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root containing the .tally directory")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend override: sqlite, postgres, or memory")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "SQLite database path override")
}

// loadConfig loads the effective configuration or exits. Flags override
// both the config file and the environment.
func loadConfig() *config.Config {
	cfg, err := config.Load(rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if backendFlag != "" {
		cfg.StorageBackend = backendFlag
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// resolveStorageConfig resolves a relative sqlite path against the project
// root so commands behave the same from any working directory.
func resolveStorageConfig(cfg *config.Config) *storage.Config {
	scfg := cfg.StorageConfig()
	if scfg.Backend == storage.BackendSQLite && scfg.Path != ":memory:" && !filepath.IsAbs(scfg.Path) {
		scfg.Path = filepath.Join(rootDir, scfg.Path)
	}
	return scfg
}

// openLedger opens the configured storage backend and wraps it in the
// ledger store. The caller closes the returned storage when done.
func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Store, storage.Storage) {
	st, err := storage.NewStorage(ctx, resolveStorageConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open storage: %v\n", err)
		os.Exit(1)
	}

	ls, err := ledger.NewStore(st, cfg.LedgerConfig())
	if err != nil {
		_ = st.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return ls, st
}

// parseCategoryArg converts a CLI category argument or exits.
func parseCategoryArg(arg string) types.Category {
	category, err := types.ParseCategory(arg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return category
}
