// Package config loads and validates all runtime configuration for the
// inference verification gateway.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
//
// No LLM provider key is required for the gateway to start. Ollama needs no
// key (it talks to a local daemon) and is always considered configured.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	// APIKey is the provider API key. Leave empty to disable the provider
	// (Ollama is the exception — it is enabled regardless).
	APIKey string

	// Model is the default model name sent in completion requests.
	Model string

	// RPM is the provider's own requests-per-minute budget, enforced by the
	// per-provider token bucket in internal/ratelimit. 0 falls back to the
	// gateway-wide MaxRequestsPerMinute default.
	RPM int
}

// CacheConfig controls the two-tier semantic response cache.
type CacheConfig struct {
	// RedisURL is a redis:// or rediss:// URL. Empty disables the Redis
	// backend; the gateway falls back to an in-process TTL cache.
	RedisURL string

	// SimilarityThreshold is the minimum cosine similarity for a semantic
	// (embedding) cache hit. Default: 0.95.
	SimilarityThreshold float64

	// TTL is how long cache entries live. Default: 1h.
	TTL time.Duration

	// ExcludeExact and ExcludePatterns keep specific providers or prompts
	// out of the cache entirely; each rule is matched against both the
	// provider name and the prompt.
	ExcludeExact    []string
	ExcludePatterns []string
}

// SandboxConfig bounds every code execution.
type SandboxConfig struct {
	TimeoutSeconds    int
	MemoryLimit       string
	CPUFraction       float64
	NetworkDisabled   bool
	DockerHost        string
	CleanupContainers bool
}

// RateLimitConfig controls the gateway-wide inbound request rate limit,
// independent of the per-provider token buckets.
type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

// Config is the top-level configuration container.
type Config struct {
	Port     int
	LogLevel string

	// Environment is a free-form deployment tag (e.g. "development",
	// "production") surfaced in health responses and logs.
	Environment string

	GatewayAPIKey string

	Groq         ProviderConfig
	Gemini       ProviderConfig
	OpenAI       ProviderConfig
	HuggingFace  ProviderConfig
	Ollama       ProviderConfig

	Cache           CacheConfig
	Sandbox         SandboxConfig
	RateLimit       RateLimitConfig
	RequestTimeout  time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ─────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")

	v.SetDefault("GROQ_MODEL", "llama-3.3-70b-versatile")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-pro")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("HUGGINGFACE_MODEL", "google/flan-t5-large")
	v.SetDefault("OLLAMA_MODEL", "llama3.2")

	v.SetDefault("GROQ_RPM", 30)
	v.SetDefault("GEMINI_RPM", 6)
	v.SetDefault("OPENAI_RPM", 60)
	v.SetDefault("HUGGINGFACE_RPM", 30)
	v.SetDefault("OLLAMA_RPM", 60)
	v.SetDefault("MAX_REQUESTS_PER_MINUTE", 10)
	v.SetDefault("REQUEST_TIMEOUT", "120s")

	v.SetDefault("CACHE_SIMILARITY_THRESHOLD", 0.95)
	v.SetDefault("CACHE_TTL", "1h")

	v.SetDefault("SANDBOX_TIMEOUT", 30)
	v.SetDefault("SANDBOX_MEMORY_LIMIT", "256m")
	v.SetDefault("SANDBOX_CPU_LIMIT", 0.5)
	v.SetDefault("SANDBOX_NETWORK_DISABLED", true)
	v.SetDefault("CLEANUP_CONTAINERS", true)

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		Environment: v.GetString("ENVIRONMENT"),

		GatewayAPIKey: v.GetString("GATEWAY_API_KEY"),

		Groq: ProviderConfig{
			APIKey: v.GetString("GROQ_API_KEY"),
			Model:  v.GetString("GROQ_MODEL"),
			RPM:    v.GetInt("GROQ_RPM"),
		},
		Gemini: ProviderConfig{
			APIKey: v.GetString("GOOGLE_API_KEY"),
			Model:  v.GetString("GEMINI_MODEL"),
			RPM:    v.GetInt("GEMINI_RPM"),
		},
		OpenAI: ProviderConfig{
			APIKey: v.GetString("OPENAI_API_KEY"),
			Model:  v.GetString("OPENAI_MODEL"),
			RPM:    v.GetInt("OPENAI_RPM"),
		},
		HuggingFace: ProviderConfig{
			APIKey: v.GetString("HUGGINGFACE_API_KEY"),
			Model:  v.GetString("HUGGINGFACE_MODEL"),
			RPM:    v.GetInt("HUGGINGFACE_RPM"),
		},
		Ollama: ProviderConfig{
			Model: v.GetString("OLLAMA_MODEL"),
			RPM:   v.GetInt("OLLAMA_RPM"),
		},

		Cache: CacheConfig{
			RedisURL:            v.GetString("REDIS_URL"),
			SimilarityThreshold: v.GetFloat64("CACHE_SIMILARITY_THRESHOLD"),
			TTL:                 v.GetDuration("CACHE_TTL"),
			ExcludeExact:        v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns:     v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		},

		Sandbox: SandboxConfig{
			TimeoutSeconds:    v.GetInt("SANDBOX_TIMEOUT"),
			MemoryLimit:       v.GetString("SANDBOX_MEMORY_LIMIT"),
			CPUFraction:       v.GetFloat64("SANDBOX_CPU_LIMIT"),
			NetworkDisabled:   v.GetBool("SANDBOX_NETWORK_DISABLED"),
			DockerHost:        v.GetString("DOCKER_HOST"),
			CleanupContainers: v.GetBool("CLEANUP_CONTAINERS"),
		},

		RateLimit: RateLimitConfig{
			MaxRequestsPerMinute: v.GetInt("MAX_REQUESTS_PER_MINUTE"),
		},
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as
// viper defaults. A failure here is a ConfigurationError — fatal at
// startup, never surfaced mid-request.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("config: CACHE_SIMILARITY_THRESHOLD must be in [0,1], got %f", c.Cache.SimilarityThreshold)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be a positive duration")
	}

	if c.Sandbox.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: SANDBOX_TIMEOUT must be positive")
	}
	if c.Sandbox.CPUFraction <= 0 {
		return fmt.Errorf("config: SANDBOX_CPU_LIMIT must be positive")
	}

	if c.RateLimit.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("config: MAX_REQUESTS_PER_MINUTE must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: REQUEST_TIMEOUT must be a positive duration")
	}

	return nil
}

// AtLeastOneProviderKey returns true if any key-based provider has an API
// key configured. Ollama is deliberately excluded — it needs no key and is
// always attempted, so the gateway never fails to start over missing
// credentials; an unreachable Ollama daemon simply reports unhealthy.
func (c *Config) AtLeastOneProviderKey() bool {
	return c.Groq.APIKey != "" ||
		c.Gemini.APIKey != "" ||
		c.OpenAI.APIKey != "" ||
		c.HuggingFace.APIKey != ""
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
