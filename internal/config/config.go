package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Mongo       MongoConfig      `yaml:"mongo"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Archive     ArchiveConfig    `yaml:"archive"`
	Migration   Migration        `yaml:"migration"`
	Steps       []Step           `yaml:"steps"`
	LogLevel    string           `yaml:"log_level"`
	MetricsAddr string           `yaml:"metrics_addr"`
}

// MongoConfig points at the database holding both legacy source
// collections and normalized target collections.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// CheckpointConfig selects where per-step progress records live
type CheckpointConfig struct {
	Backend    string `yaml:"backend"`    // mongo, sqlite or memory
	Collection string `yaml:"collection"` // mongo backend
	Path       string `yaml:"path"`       // sqlite backend
}

// ArchiveConfig configures the optional pre-migration batch backup
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Migration represents migration-specific configuration
type Migration struct {
	BatchSize    int  `yaml:"batch_size"`
	DryRun       bool `yaml:"dry_run"`
	Resume       bool `yaml:"resume"`
	ShowProgress bool `yaml:"show_progress"`
}

// Step defines one migration step. A step with Sources set is composite:
// each listed collection runs as a sequential sub-step checkpointed under
// "<name>_<collection>".
type Step struct {
	Name      string   `yaml:"name"`
	Source    string   `yaml:"source"`
	Sources   []string `yaml:"sources"`
	Target    string   `yaml:"target"`
	SourceTag string   `yaml:"source_tag"`
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel:    "info",
		MetricsAddr: ":8080",
		Checkpoint: CheckpointConfig{
			Backend:    "mongo",
			Collection: "migration_checkpoints",
			Path:       "./checkpoint.db",
		},
		Migration: Migration{
			BatchSize:    500,
			ShowProgress: true,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("mongo-uri") {
		cfg.Mongo.URI, _ = flags.GetString("mongo-uri")
	}
	if flags.Changed("mongo-db") {
		cfg.Mongo.Database, _ = flags.GetString("mongo-db")
	}

	if flags.Changed("checkpoint-backend") {
		cfg.Checkpoint.Backend, _ = flags.GetString("checkpoint-backend")
	}
	if flags.Changed("checkpoint-collection") {
		cfg.Checkpoint.Collection, _ = flags.GetString("checkpoint-collection")
	}
	if flags.Changed("checkpoint-path") {
		cfg.Checkpoint.Path, _ = flags.GetString("checkpoint-path")
	}

	if flags.Changed("archive-endpoint") {
		cfg.Archive.Endpoint, _ = flags.GetString("archive-endpoint")
		cfg.Archive.Enabled = true
	}
	if flags.Changed("archive-access-key") {
		cfg.Archive.AccessKey, _ = flags.GetString("archive-access-key")
	}
	if flags.Changed("archive-secret-key") {
		cfg.Archive.SecretKey, _ = flags.GetString("archive-secret-key")
	}
	if flags.Changed("archive-secure") {
		cfg.Archive.Secure, _ = flags.GetBool("archive-secure")
	}
	if flags.Changed("archive-bucket") {
		cfg.Archive.Bucket, _ = flags.GetString("archive-bucket")
	}
	if flags.Changed("archive-prefix") {
		cfg.Archive.Prefix, _ = flags.GetString("archive-prefix")
	}

	if flags.Changed("batch-size") {
		cfg.Migration.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("dry-run") {
		cfg.Migration.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("resume") {
		cfg.Migration.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("show-progress") {
		cfg.Migration.ShowProgress, _ = flags.GetBool("show-progress")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo database is required")
	}

	switch c.Checkpoint.Backend {
	case "mongo":
		if c.Checkpoint.Collection == "" {
			return fmt.Errorf("checkpoint collection is required for the mongo backend")
		}
	case "sqlite":
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint path is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("archive endpoint is required when archiving is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive bucket is required when archiving is enabled")
		}
	}

	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	if len(c.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	seen := make(map[string]bool, len(c.Steps))
	for i, step := range c.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if seen[step.Name] {
			return fmt.Errorf("step %q is defined twice", step.Name)
		}
		seen[step.Name] = true

		if step.Source == "" && len(step.Sources) == 0 {
			return fmt.Errorf("step %q: source collection is required", step.Name)
		}
		if step.Source != "" && len(step.Sources) > 0 {
			return fmt.Errorf("step %q: source and sources are mutually exclusive", step.Name)
		}
		if step.Target == "" {
			return fmt.Errorf("step %q: target collection is required", step.Name)
		}
	}

	return nil
}
