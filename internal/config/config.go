// Package config loads the storyboard.yaml engine configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/storyboard/internal/errors"
)

// Config is the complete engine configuration.
type Config struct {
	Log      LogConfig      `yaml:"log,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Artifact ArtifactConfig `yaml:"artifacts,omitempty"`
	Engine   EngineConfig   `yaml:"engine,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ProviderConfig configures the LLM structured-output provider.
type ProviderConfig struct {
	Name           string `yaml:"name,omitempty"`
	APIKey         string `yaml:"api_key,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	Model          string `yaml:"model,omitempty"`
	MaxTokens      int    `yaml:"max_tokens,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the provider call timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ArtifactConfig configures artifact persistence.
type ArtifactConfig struct {
	// Dir is the artifact directory; empty selects the in-memory store
	Dir string `yaml:"dir,omitempty"`
	// MaxBlobBytes bounds reference blob fetches
	MaxBlobBytes int64 `yaml:"max_blob_bytes,omitempty"`
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	// ResearchCharBudget caps injected research text per dependency
	ResearchCharBudget int `yaml:"research_char_budget,omitempty"`
	// ResearchFanOut bounds parallel research tasks (1 = serialized)
	ResearchFanOut int `yaml:"research_fan_out,omitempty"`
	// LegacyResearchScan enables the deprecated artifact-scan dependency
	// fallback for steps without explicit depends_on
	LegacyResearchScan bool `yaml:"legacy_research_scan,omitempty"`
	// EventBufferSize sizes the bounded event queue
	EventBufferSize int `yaml:"event_buffer_size,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Provider: ProviderConfig{
			Name:           "anthropic",
			APIKey:         os.Getenv("ANTHROPIC_API_KEY"),
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		Artifact: ArtifactConfig{MaxBlobBytes: 32 << 20},
		Engine: EngineConfig{
			ResearchCharBudget: 3000,
			ResearchFanOut:     1,
			EventBufferSize:    256,
		},
	}
}

// Load reads a YAML config file, expanding ${ENV} references, and overlays it
// on the defaults. A missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "yaml", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Engine.ResearchCharBudget < 0 {
		return fmt.Errorf("engine research_char_budget must be non-negative")
	}
	if c.Engine.ResearchFanOut < 0 {
		return fmt.Errorf("engine research_fan_out must be non-negative")
	}
	if c.Engine.EventBufferSize < 0 {
		return fmt.Errorf("engine event_buffer_size must be non-negative")
	}
	if c.Artifact.MaxBlobBytes < 0 {
		return fmt.Errorf("artifacts max_blob_bytes must be non-negative")
	}
	if c.Provider.MaxTokens < 0 {
		return fmt.Errorf("provider max_tokens must be non-negative")
	}
	if c.Provider.TimeoutSeconds < 0 {
		return fmt.Errorf("provider timeout_seconds must be non-negative")
	}
	return nil
}
