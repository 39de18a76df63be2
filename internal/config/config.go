// Package config loads pipeline configuration from an optional YAML
// file overridden by environment variables, following the same
// layered-load pattern as the teacher agent package's config loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every environment/configuration option spec.md §6 names,
// plus the verifier/LLM options SPEC_FULL.md §A.1 adds.
type Config struct {
	SearchProvider string `yaml:"search_provider"`
	SearchAPIKey   string `yaml:"-"` // secret: env-only, never round-tripped to YAML

	NLIEndpoint       string  `yaml:"nli_endpoint"`
	NLITimeoutSeconds float64 `yaml:"nli_timeout_seconds"`
	NLIVariantDefault string  `yaml:"nli_variant_default"`

	RunDeadlineSeconds int `yaml:"run_deadline_seconds"`
	WorkerPoolSize     int `yaml:"worker_pool_size"`

	VerifierCacheSize     int     `yaml:"verifier_cache_size"`
	VerifierCacheBackend  string  `yaml:"verifier_cache_backend"` // "memory" | "redis"
	VerifierTauGround     float64 `yaml:"verifier_tau_ground"`
	VerifierKappaContra   float64 `yaml:"verifier_kappa_contra"`
	VerifierTauRelevance  float64 `yaml:"verifier_tau_relevance"`
	RedisAddr             string  `yaml:"redis_addr"`

	LLMModel      string `yaml:"llm_model"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
}

// RunDeadline returns RunDeadlineSeconds as a time.Duration.
func (c *Config) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineSeconds) * time.Second
}

// NLITimeout returns NLITimeoutSeconds as a time.Duration.
func (c *Config) NLITimeout() time.Duration {
	return time.Duration(c.NLITimeoutSeconds * float64(time.Second))
}

// Default returns the baseline configuration before any file or
// environment overrides are applied.
func Default() *Config {
	return &Config{
		SearchProvider:       "simulated",
		NLIEndpoint:          "http://localhost:8501/relation",
		NLITimeoutSeconds:    10,
		NLIVariantDefault:    "default",
		RunDeadlineSeconds:   300,
		WorkerPoolSize:       4,
		VerifierCacheSize:    10000,
		VerifierCacheBackend: "memory",
		VerifierTauGround:    0.65,
		VerifierKappaContra:  0.35,
		VerifierTauRelevance: 0.45,
		RedisAddr:            "localhost:6379",
		LLMModel:             "gpt-4o-mini",
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1, got %d", c.WorkerPoolSize)
	}
	if c.RunDeadlineSeconds < 1 {
		return fmt.Errorf("run_deadline_seconds must be >= 1, got %d", c.RunDeadlineSeconds)
	}
	if c.VerifierCacheSize < 1 {
		return fmt.Errorf("verifier_cache_size must be >= 1, got %d", c.VerifierCacheSize)
	}
	if c.VerifierCacheBackend != "memory" && c.VerifierCacheBackend != "redis" {
		return fmt.Errorf("verifier_cache_backend must be \"memory\" or \"redis\", got %q", c.VerifierCacheBackend)
	}
	if c.VerifierTauGround < 0 || c.VerifierTauGround > 1 {
		return fmt.Errorf("verifier_tau_ground must be in [0,1], got %f", c.VerifierTauGround)
	}
	if c.VerifierKappaContra < 0 || c.VerifierKappaContra > 1 {
		return fmt.Errorf("verifier_kappa_contra must be in [0,1], got %f", c.VerifierKappaContra)
	}
	if c.VerifierTauRelevance < 0 || c.VerifierTauRelevance > 1 {
		return fmt.Errorf("verifier_tau_relevance must be in [0,1], got %f", c.VerifierTauRelevance)
	}
	return nil
}

// Load reads a YAML file (if path is non-empty and exists) over the
// defaults, applies environment overrides, and validates the result.
// A missing path is not an error — defaults plus environment stand in.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // error ignored: a missing .env is normal outside dev

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SEARCH_PROVIDER"); v != "" {
		cfg.SearchProvider = v
	}
	if v := os.Getenv("SEARCH_API_KEY"); v != "" {
		cfg.SearchAPIKey = v
	}
	if v := os.Getenv("NLI_ENDPOINT"); v != "" {
		cfg.NLIEndpoint = v
	}
	if v := os.Getenv("NLI_TIMEOUT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NLITimeoutSeconds = f
		}
	}
	if v := os.Getenv("NLI_VARIANT_DEFAULT"); v != "" {
		cfg.NLIVariantDefault = v
	}
	if v := os.Getenv("RUN_DEADLINE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RunDeadlineSeconds = n
		}
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("VERIFIER_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.VerifierCacheSize = n
		}
	}
	if v := os.Getenv("VERIFIER_CACHE_BACKEND"); v != "" {
		cfg.VerifierCacheBackend = v
	}
	if v := os.Getenv("VERIFIER_TAU_GROUND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.VerifierTauGround = f
		}
	}
	if v := os.Getenv("VERIFIER_KAPPA_CONTRA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.VerifierKappaContra = f
		}
	}
	if v := os.Getenv("VERIFIER_TAU_RELEVANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.VerifierTauRelevance = f
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
}

// Save writes cfg to path as YAML, creating parent directories as
// needed. Mirrors the teacher's SaveAgentConfig.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: cannot save invalid configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
