// Package config handles assistant configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/asistente/config.yaml, /etc/asistente/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "asistente", "config.yaml"))
	}

	paths = append(paths, "/etc/asistente/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all assistant configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	LLM      LLMConfig      `yaml:"llm"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Agent    AgentConfig    `yaml:"agent"`
	Supplier SupplierConfig `yaml:"supplier"`
	Pricing  PricingConfig  `yaml:"pricing"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the chat-completion backend.
// The assistant talks to any OpenAI-compatible endpoint; the default
// base URL points at DeepSeek.
type LLMConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`      // dialogue reasoning budget (default 400)
	Temperature   float64 `yaml:"temperature"`     // dialogue temperature (default 0)
	TimeoutSec    int     `yaml:"timeout_sec"`     // per-call HTTP timeout (default 15)
	SummaryModel  string  `yaml:"summary_model"`   // defaults to Model
	SummaryMaxTok int     `yaml:"summary_max_tok"` // default 150
	SummaryTemp   float64 `yaml:"summary_temp"`    // default 0.2
}

// CatalogConfig defines the product database and the reference branch.
// Only products with positive stock at the reference branch are visible
// to search.
type CatalogConfig struct {
	DBPath     string `yaml:"db_path"`
	BranchSlug string `yaml:"branch_slug"` // e.g. san_luis_potosi
}

// AgentConfig bounds the dialogue loop.
type AgentConfig struct {
	MaxIterations  int `yaml:"max_iterations"`   // Thought/Action cycles per turn (default 10)
	TurnTimeoutSec int `yaml:"turn_timeout_sec"` // wall-clock budget per turn (default 60)
}

// SupplierConfig defines the upstream supplier API used by inventory sync.
type SupplierConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TimeoutSec   int    `yaml:"timeout_sec"` // default 15
}

// PricingConfig controls MXN price computation.
type PricingConfig struct {
	IVA float64 `yaml:"iva"` // tax rate, e.g. 0.16
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			BaseURL:       "https://api.deepseek.com/v1",
			Model:         "deepseek-chat",
			MaxTokens:     400,
			Temperature:   0,
			TimeoutSec:    15,
			SummaryMaxTok: 150,
			SummaryTemp:   0.2,
		},
		Catalog: CatalogConfig{
			DBPath:     "catalogo.db",
			BranchSlug: "san_luis_potosi",
		},
		Agent: AgentConfig{
			MaxIterations:  10,
			TurnTimeoutSec: 60,
		},
		Supplier: SupplierConfig{
			TimeoutSec: 15,
		},
		Pricing: PricingConfig{IVA: 0.16},
	}
}

// LLMTimeout returns the configured per-call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// TurnTimeout returns the wall-clock budget for one dialogue turn.
func (c *Config) TurnTimeout() time.Duration {
	if c.Agent.TurnTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Agent.TurnTimeoutSec) * time.Second
}
