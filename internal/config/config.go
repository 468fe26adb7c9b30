// Package config assembles tally's runtime configuration from defaults,
// an optional .tally/config.yaml file, and TALLY_* environment variables.
// Precedence: environment over file over defaults.
//
// API keys are deliberately not part of the file format; they are read
// from ANTHROPIC_API_KEY and OPENAI_API_KEY by the provider clients.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tallyhq/tally/internal/ai"
	"github.com/tallyhq/tally/internal/ledger"
	"github.com/tallyhq/tally/internal/match"
	"github.com/tallyhq/tally/internal/storage"
)

// Config holds the full runtime configuration.
type Config struct {
	// StorageBackend selects the ledger store: sqlite (default),
	// postgres, or memory.
	StorageBackend string

	// DBPath is the SQLite database file path.
	// Default: ".tally/tally.db"
	DBPath string

	// PostgresDSN is the PostgreSQL connection string (postgres only).
	PostgresDSN string

	// SimilarityThreshold is the minimum cosine similarity for an
	// incoming message to attach to an existing item.
	// Default: 0.85, Range: [0, 1]
	SimilarityThreshold float64

	// MatchPolicy breaks ties between candidate items:
	// first_above_threshold (default) or best_match.
	MatchPolicy match.Policy

	// LockTimeout bounds how long a writer waits for a channel's lock
	// before failing with ErrLockTimeout.
	// Default: 10s
	LockTimeout time.Duration

	// ClassifierModel overrides the status classifier model. Empty means
	// the classifier's own default (a Haiku-class model).
	ClassifierModel string

	// EmbeddingProvider selects the embedding backend: openai (default)
	// or ollama.
	EmbeddingProvider string

	// EmbeddingEndpoint overrides the provider's base URL, e.g. to point
	// at a proxy or a local Ollama instance.
	EmbeddingEndpoint string

	// EmbeddingModel overrides the embedding model name.
	// Default: text-embedding-ada-002
	EmbeddingModel string

	// AIMaxRetries caps retries per provider call. 0 means the shared
	// default (3).
	// Range: 0-10
	AIMaxRetries int

	// AIRequestsPerSecond rate-limits provider calls. 0 means the shared
	// default (10).
	// Range: 0-100
	AIRequestsPerSecond float64

	// AIMaxConcurrentCalls caps in-flight provider calls. 0 means the
	// shared default (3).
	// Range: 0-64
	AIMaxConcurrentCalls int
}

// DefaultConfig returns the default configuration.
//
// The similarity threshold defaults to 0.85: short status messages
// ("still broken", "done") score high against almost anything, and at
// 0.8 they attach to unrelated items noticeably more often. 0.85 keeps
// reworded duplicates together without that. Lower it per deployment if
// genuine duplicates are being filed as new items.
func DefaultConfig() *Config {
	return &Config{
		StorageBackend:      storage.BackendSQLite,
		DBPath:              ".tally/tally.db",
		SimilarityThreshold: 0.85,
		MatchPolicy:         match.PolicyFirstAboveThreshold,
		LockTimeout:         10 * time.Second,
	}
}

// Validate checks if the configuration has valid values.
func (c *Config) Validate() error {
	if err := c.StorageConfig().Validate(); err != nil {
		return err
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1 (got %.2f)",
			c.SimilarityThreshold)
	}

	if !c.MatchPolicy.IsValid() {
		return fmt.Errorf("match_policy must be %q or %q (got %q)",
			match.PolicyFirstAboveThreshold, match.PolicyBestMatch, c.MatchPolicy)
	}

	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive (got %v)", c.LockTimeout)
	}
	if c.LockTimeout > 10*time.Minute {
		return fmt.Errorf("lock_timeout too large (got %v, max 10m)", c.LockTimeout)
	}

	switch c.EmbeddingProvider {
	case "", string(ai.EmbeddingProviderOpenAI), string(ai.EmbeddingProviderOllama):
	default:
		return fmt.Errorf("embedding provider must be %q or %q (got %q)",
			ai.EmbeddingProviderOpenAI, ai.EmbeddingProviderOllama, c.EmbeddingProvider)
	}

	if c.AIMaxRetries < 0 || c.AIMaxRetries > 10 {
		return fmt.Errorf("ai max_retries must be between 0 and 10 (got %d)", c.AIMaxRetries)
	}
	if c.AIRequestsPerSecond < 0 || c.AIRequestsPerSecond > 100 {
		return fmt.Errorf("ai requests_per_second must be between 0 and 100 (got %.1f)",
			c.AIRequestsPerSecond)
	}
	if c.AIMaxConcurrentCalls < 0 || c.AIMaxConcurrentCalls > 64 {
		return fmt.Errorf("ai max_concurrent_calls must be between 0 and 64 (got %d)",
			c.AIMaxConcurrentCalls)
	}

	return nil
}

// String returns a human-readable representation of the config. The
// Postgres DSN is reported as set/unset, never printed.
func (c *Config) String() string {
	dsn := "unset"
	if c.PostgresDSN != "" {
		dsn = "set"
	}
	return fmt.Sprintf(
		"Config{Backend: %s, Path: %s, DSN: %s, Threshold: %.2f, Policy: %s, "+
			"LockTimeout: %v, ClassifierModel: %s, Embedding: %s %s}",
		c.StorageBackend, c.DBPath, dsn, c.SimilarityThreshold, c.MatchPolicy,
		c.LockTimeout, c.ClassifierModel, c.EmbeddingProvider, c.EmbeddingModel,
	)
}

// StorageConfig converts to the storage package's config.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Backend: c.StorageBackend,
		Path:    c.DBPath,
		DSN:     c.PostgresDSN,
	}
}

// LedgerConfig converts to the ledger package's config.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{LockTimeout: c.LockTimeout}
}

// RetryConfig builds the shared provider call discipline, starting from
// the ai package defaults and applying any overrides set here.
func (c *Config) RetryConfig() ai.RetryConfig {
	rc := ai.DefaultRetryConfig()
	if c.AIMaxRetries > 0 {
		rc.MaxRetries = c.AIMaxRetries
	}
	if c.AIRequestsPerSecond > 0 {
		rc.RequestsPerSecond = c.AIRequestsPerSecond
	}
	if c.AIMaxConcurrentCalls > 0 {
		rc.MaxConcurrentCalls = c.AIMaxConcurrentCalls
	}
	return rc
}

// ClassifierConfig converts to the ai package's classifier config.
func (c *Config) ClassifierConfig() *ai.ClassifierConfig {
	return &ai.ClassifierConfig{
		Model: c.ClassifierModel,
		Retry: c.RetryConfig(),
	}
}

// EmbedderConfig converts to the ai package's embedder config.
func (c *Config) EmbedderConfig() *ai.EmbedderConfig {
	return &ai.EmbedderConfig{
		Provider:    ai.EmbeddingProvider(c.EmbeddingProvider),
		APIEndpoint: c.EmbeddingEndpoint,
		Model:       c.EmbeddingModel,
		Retry:       c.RetryConfig(),
	}
}

// FromEnv creates a Config from environment variables, falling back to
// defaults.
//
// Environment variables:
//   - TALLY_STORAGE_BACKEND: sqlite, postgres, or memory (default: sqlite)
//   - TALLY_DB_PATH: SQLite database path (default: .tally/tally.db)
//   - TALLY_POSTGRES_DSN: PostgreSQL connection string
//   - TALLY_SIMILARITY_THRESHOLD: dedup similarity cutoff (default: 0.85)
//   - TALLY_MATCH_POLICY: first_above_threshold or best_match
//   - TALLY_LOCK_TIMEOUT: per-channel writer lock timeout, e.g. "10s"
//   - TALLY_CLASSIFIER_MODEL: status classifier model override
//   - TALLY_EMBEDDING_PROVIDER: openai or ollama (default: openai)
//   - TALLY_EMBEDDING_ENDPOINT: embedding API base URL override
//   - TALLY_EMBEDDING_MODEL: embedding model (default: text-embedding-ada-002)
//   - TALLY_AI_MAX_RETRIES: retries per provider call (default: 3)
//   - TALLY_AI_REQUESTS_PER_SECOND: provider rate limit (default: 10)
//   - TALLY_AI_MAX_CONCURRENT: in-flight provider call cap (default: 3)
//
// Returns an error if any environment variable has an invalid value.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	parseEnvString("TALLY_STORAGE_BACKEND", &c.StorageBackend)
	parseEnvString("TALLY_DB_PATH", &c.DBPath)
	parseEnvString("TALLY_POSTGRES_DSN", &c.PostgresDSN)

	if err := parseEnvFloat("TALLY_SIMILARITY_THRESHOLD", &c.SimilarityThreshold); err != nil {
		return err
	}
	if policy := os.Getenv("TALLY_MATCH_POLICY"); policy != "" {
		c.MatchPolicy = match.Policy(policy)
	}
	if err := parseEnvDuration("TALLY_LOCK_TIMEOUT", &c.LockTimeout); err != nil {
		return err
	}

	parseEnvString("TALLY_CLASSIFIER_MODEL", &c.ClassifierModel)
	parseEnvString("TALLY_EMBEDDING_PROVIDER", &c.EmbeddingProvider)
	parseEnvString("TALLY_EMBEDDING_ENDPOINT", &c.EmbeddingEndpoint)
	parseEnvString("TALLY_EMBEDDING_MODEL", &c.EmbeddingModel)

	if err := parseEnvInt("TALLY_AI_MAX_RETRIES", &c.AIMaxRetries); err != nil {
		return err
	}
	if err := parseEnvFloat("TALLY_AI_REQUESTS_PER_SECOND", &c.AIRequestsPerSecond); err != nil {
		return err
	}
	return parseEnvInt("TALLY_AI_MAX_CONCURRENT", &c.AIMaxConcurrentCalls)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := parseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseDuration parses duration strings like "30s", "5m", "7d"
func parseDuration(s string) (time.Duration, error) {
	// Handle day suffix
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}

	// Use standard time.ParseDuration for other formats
	return time.ParseDuration(s)
}
