// Package config loads and validates runtime configuration for the
// memory subsystem: durable-store wiring, provider credentials, and
// per-backend tuning defaults. Values come from a YAML file overlaid
// with environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the full runtime configuration.
type Config struct {
	Environment Environment    `yaml:"environment" validate:"required,oneof=development production"`
	Store       StoreConfig    `yaml:"store"`
	Provider    ProviderConfig `yaml:"provider"`
	Defaults    Defaults       `yaml:"defaults"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	// Driver is "memory" or "dynamodb".
	Driver    string `yaml:"driver" validate:"required,oneof=memory dynamodb"`
	TableName string `yaml:"table_name" validate:"required_if=Driver dynamodb"`
	IndexName string `yaml:"index_name"`
	Region    string `yaml:"region"`
}

// ProviderConfig configures the LLM and embedding providers. An empty
// API key leaves every backend on its degraded text path.
type ProviderConfig struct {
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	EnableBreakers bool   `yaml:"enable_breakers"`
}

// Defaults carries the tuning knobs new memory instances start from.
type Defaults struct {
	MaxItems           int           `yaml:"max_items" validate:"gt=0"`
	TTL                time.Duration `yaml:"ttl" validate:"gte=0"`
	RelevanceThreshold float64       `yaml:"relevance_threshold" validate:"gte=0,lte=1"`
	RecencyWeight      float64       `yaml:"recency_weight" validate:"gte=0,lte=1"`
	RetrievalDepth     int           `yaml:"retrieval_depth" validate:"gt=0"`
	ChunkSize          int           `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap       int           `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() Config {
	return Config{
		Environment: Development,
		Store: StoreConfig{
			Driver:    "memory",
			TableName: "memorybank-dev",
			IndexName: "OwnerNameIndex",
			Region:    "us-east-1",
		},
		Provider: ProviderConfig{
			EnableBreakers: true,
		},
		Defaults: Defaults{
			MaxItems:           1000,
			TTL:                0,
			RelevanceThreshold: 0.3,
			RecencyWeight:      0.3,
			RetrievalDepth:     2,
			ChunkSize:          1000,
			ChunkOverlap:       100,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// named by MEMORYBANK_CONFIG, and environment variable overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("MEMORYBANK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = Environment(v)
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("TABLE_NAME"); v != "" {
		cfg.Store.TableName = v
	}
	if v := os.Getenv("INDEX_NAME"); v != "" {
		cfg.Store.IndexName = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Store.Region = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Provider.OpenAIAPIKey = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.Provider.ChatModel = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Provider.EmbeddingModel = v
	}
	if v := os.Getenv("ENABLE_BREAKERS"); v != "" {
		cfg.Provider.EnableBreakers = v == "true"
	}
	if v := os.Getenv("MEMORY_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.MaxItems = n
		}
	}
	if v := os.Getenv("MEMORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Defaults.TTL = d
		}
	}
}

// Validate checks structural constraints with struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
