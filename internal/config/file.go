package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tallyhq/tally/internal/match"
)

// ConfigFile represents the structure of .tally/config.yaml
type ConfigFile struct {
	Storage struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		DSN     string `yaml:"dsn"`
	} `yaml:"storage"`

	Dedup struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		MatchPolicy         string  `yaml:"match_policy"`
	} `yaml:"dedup"`

	Ledger struct {
		// LockTimeout is a duration string like "10s", "1m"
		LockTimeout string `yaml:"lock_timeout"`
	} `yaml:"ledger"`

	Classifier struct {
		Model string `yaml:"model"`
	} `yaml:"classifier"`

	Embedding struct {
		Provider string `yaml:"provider"`
		Endpoint string `yaml:"endpoint"`
		Model    string `yaml:"model"`
	} `yaml:"embedding"`

	AI struct {
		MaxRetries         int     `yaml:"max_retries"`
		RequestsPerSecond  float64 `yaml:"requests_per_second"`
		MaxConcurrentCalls int     `yaml:"max_concurrent_calls"`
	} `yaml:"ai"`
}

// LoadConfigFile loads configuration from .tally/config.yaml under the
// given root. A missing file is not an error; it yields the defaults.
func LoadConfigFile(root string) (*Config, error) {
	configPath := filepath.Join(root, ".tally", "config.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var configFile ConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return configFile.ToConfig()
}

// ToConfig converts a ConfigFile to a Config, applying file settings on
// top of the defaults.
func (cf *ConfigFile) ToConfig() (*Config, error) {
	config := DefaultConfig()

	if cf.Storage.Backend != "" {
		config.StorageBackend = cf.Storage.Backend
	}
	if cf.Storage.Path != "" {
		config.DBPath = cf.Storage.Path
	}
	if cf.Storage.DSN != "" {
		config.PostgresDSN = cf.Storage.DSN
	}

	if cf.Dedup.SimilarityThreshold > 0 {
		config.SimilarityThreshold = cf.Dedup.SimilarityThreshold
	}
	if cf.Dedup.MatchPolicy != "" {
		config.MatchPolicy = match.Policy(cf.Dedup.MatchPolicy)
	}

	if cf.Ledger.LockTimeout != "" {
		timeout, err := parseDuration(cf.Ledger.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid lock_timeout: %w", err)
		}
		config.LockTimeout = timeout
	}

	if cf.Classifier.Model != "" {
		config.ClassifierModel = cf.Classifier.Model
	}

	if cf.Embedding.Provider != "" {
		config.EmbeddingProvider = cf.Embedding.Provider
	}
	if cf.Embedding.Endpoint != "" {
		config.EmbeddingEndpoint = cf.Embedding.Endpoint
	}
	if cf.Embedding.Model != "" {
		config.EmbeddingModel = cf.Embedding.Model
	}

	if cf.AI.MaxRetries > 0 {
		config.AIMaxRetries = cf.AI.MaxRetries
	}
	if cf.AI.RequestsPerSecond > 0 {
		config.AIRequestsPerSecond = cf.AI.RequestsPerSecond
	}
	if cf.AI.MaxConcurrentCalls > 0 {
		config.AIMaxConcurrentCalls = cf.AI.MaxConcurrentCalls
	}

	return config, nil
}

// Load assembles the effective configuration for a project root: file
// settings over defaults, then environment overrides, then validation.
func Load(root string) (*Config, error) {
	cfg, err := LoadConfigFile(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
