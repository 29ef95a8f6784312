// Package config loads the YAML configuration this system recognizes:
// hook registration, execution policy, observer/watch definitions, the LLM
// provider selection, and the store/observability/event-bridge blocks.
// Grounded on the teacher's internal/config/config.go struct-per-concern
// layout and default-filling style; the teacher's pterm console messages on
// default-filling are replaced with zerolog warnings to stay consistent
// with this repo's otherwise zerolog-only logging (see DESIGN.md).
package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"sentinel/internal/model"
)

// HookConfig declares one trigger the orchestrator's on_event handler is
// mounted at.
type HookConfig struct {
	Trigger  string `yaml:"trigger"`
	Priority int    `yaml:"priority"`
}

// OnTimeoutPolicy selects per-observer timeout handling.
type OnTimeoutPolicy string

const (
	OnTimeoutSkip OnTimeoutPolicy = "skip"
	OnTimeoutFail OnTimeoutPolicy = "fail"
)

// ExecutionConfig controls the Scheduler's concurrency and deadline policy.
type ExecutionConfig struct {
	Mode               string          `yaml:"mode"`
	MaxConcurrent      int             `yaml:"max_concurrent"`
	TimeoutPerObserver int             `yaml:"timeout_per_observer"`
	OnTimeout          OnTimeoutPolicy `yaml:"on_timeout"`
}

// ObserverRef names an observer definition to load from disk, as an
// alternative to declaring name/role/focus inline.
type ObserverRef struct {
	Ref string `yaml:"ref"`
}

// ObserverConfig declares one configured observer binding.
type ObserverConfig struct {
	Observer ObserverRef       `yaml:"observer,omitempty"`
	Name     string            `yaml:"name,omitempty"`
	Role     string            `yaml:"role,omitempty"`
	Focus    string            `yaml:"focus,omitempty"`
	Model    string            `yaml:"model"`
	Timeout  int               `yaml:"timeout"`
	Enabled  *bool             `yaml:"enabled,omitempty"`
	Watch    []model.WatchSpec `yaml:"watch"`
}

// IsEnabled returns the configured enabled flag, defaulting to true when
// unset, per SPEC_FULL.md §6.
func (o ObserverConfig) IsEnabled() bool {
	if o.Enabled == nil {
		return true
	}
	return *o.Enabled
}

// AnthropicConfig configures the Anthropic-backed provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// OpenAIConfig configures the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// GoogleConfig configures the Gemini-backed provider.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// LLMProviderConfig selects and configures the single active provider.
type LLMProviderConfig struct {
	Provider  string          `yaml:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Google    GoogleConfig    `yaml:"google,omitempty"`
}

// RedisConfig configures the Redis-backed observations store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// StoreConfig selects and configures the observations store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// ObservabilityConfig controls logging and tracing setup.
type ObservabilityConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogPath      string `yaml:"log_path,omitempty"`
	OTelEndpoint string `yaml:"otel_endpoint,omitempty"`
}

// EventBridgeConfig configures the optional Kafka-based trigger path.
// Only consulted by binaries built with the "enterprise" tag.
type EventBridgeConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers,omitempty"`
	Topic    string   `yaml:"topic,omitempty"`
	GroupID  string   `yaml:"group_id,omitempty"`
	DLQTopic string   `yaml:"dlq_topic,omitempty"`
}

// Config is the top-level configuration schema recognized by this system.
type Config struct {
	Hooks         []HookConfig        `yaml:"hooks"`
	Execution     ExecutionConfig     `yaml:"execution"`
	Observers     []ObserverConfig    `yaml:"observers"`
	LLMProvider   LLMProviderConfig   `yaml:"llm_provider"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
	EventBridge   EventBridgeConfig   `yaml:"event_bridge"`
}

// Load reads the configuration from a YAML file and fills in defaults for
// every option SPEC_FULL.md §6 declares a default for.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Hooks) == 0 {
		cfg.Hooks = []HookConfig{{Trigger: "orchestrator:complete", Priority: 5}}
		log.Warn().Msg("config_hooks_defaulted")
	}
	for i := range cfg.Hooks {
		if cfg.Hooks[i].Priority == 0 {
			cfg.Hooks[i].Priority = 5
		}
	}

	if cfg.Execution.Mode == "" {
		cfg.Execution.Mode = "parallel_sync"
	}
	if cfg.Execution.MaxConcurrent <= 0 {
		cfg.Execution.MaxConcurrent = 10
		log.Warn().Int("max_concurrent", 10).Msg("config_max_concurrent_defaulted")
	}
	if cfg.Execution.TimeoutPerObserver <= 0 {
		cfg.Execution.TimeoutPerObserver = 30
		log.Warn().Int("timeout_per_observer", 30).Msg("config_timeout_defaulted")
	}
	if cfg.Execution.OnTimeout == "" {
		cfg.Execution.OnTimeout = OnTimeoutSkip
	}

	for i := range cfg.Observers {
		if cfg.Observers[i].Timeout <= 0 {
			cfg.Observers[i].Timeout = cfg.Execution.TimeoutPerObserver
		}
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.LLMProvider.Provider == "" {
		cfg.LLMProvider.Provider = "anthropic"
	}
}
