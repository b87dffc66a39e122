// Package config loads and validates the application configuration from
// defaults, an optional YAML file and REDCLAW_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Oracle     OracleConfig     `mapstructure:"oracle" yaml:"oracle"`
	Executor   ExecutorConfig   `mapstructure:"executor" yaml:"executor"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge" yaml:"knowledge"`
	Engagement EngagementConfig `mapstructure:"engagement" yaml:"engagement"`
}

// LoggerConfig controls the zap logger and log file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// OracleProvider names a reasoning backend.
type OracleProvider string

const (
	ProviderGemini OracleProvider = "gemini"
	ProviderMock   OracleProvider = "mock"
)

// OracleModelConfig defines one reasoning model endpoint.
type OracleModelConfig struct {
	Provider    OracleProvider `mapstructure:"provider" yaml:"provider"`
	Model       string         `mapstructure:"model" yaml:"model"`
	APIKey      string         `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string         `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration  `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32        `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32        `mapstructure:"top_p" yaml:"top_p"`
	TopK        int            `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int            `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// OracleConfig configures the two-tier reasoning oracle.
type OracleConfig struct {
	Fast            OracleModelConfig `mapstructure:"fast" yaml:"fast"`
	Powerful        OracleModelConfig `mapstructure:"powerful" yaml:"powerful"`
	DecisionTimeout time.Duration     `mapstructure:"decision_timeout" yaml:"decision_timeout"`
}

// ExecutorConfig tunes the command safety policy.
type ExecutorConfig struct {
	ToolTimeout     time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	AllowedTools    []string      `mapstructure:"allowed_tools" yaml:"allowed_tools"`
	BlockedPatterns []string      `mapstructure:"blocked_patterns" yaml:"blocked_patterns"`
	AllowedHosts    []string      `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	WorkDir         string        `mapstructure:"work_dir" yaml:"work_dir"`
}

// KnowledgeConfig selects and configures the discovery store backend.
type KnowledgeConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// EngagementConfig tunes the autonomous loop.
type EngagementConfig struct {
	IterationBudget int           `mapstructure:"iteration_budget" yaml:"iteration_budget"`
	ConcurrencyCap  int           `mapstructure:"concurrency_cap" yaml:"concurrency_cap"`
	FlagThreshold   int           `mapstructure:"flag_threshold" yaml:"flag_threshold"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	ExcerptLength   int           `mapstructure:"excerpt_length" yaml:"excerpt_length"`
	HistorySize     int           `mapstructure:"history_size" yaml:"history_size"`
	SampleLimit     int           `mapstructure:"sample_limit" yaml:"sample_limit"`
	RecentWindow    int           `mapstructure:"recent_window" yaml:"recent_window"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "redclaw")
	v.SetDefault("logger.log_file", "redclaw.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("oracle.decision_timeout", "90s")
	v.SetDefault("oracle.fast.provider", "gemini")
	v.SetDefault("oracle.fast.model", "gemini-2.5-flash")
	v.SetDefault("oracle.fast.api_timeout", "60s")
	v.SetDefault("oracle.fast.temperature", 0.2)
	v.SetDefault("oracle.fast.max_tokens", 4096)
	v.SetDefault("oracle.powerful.provider", "gemini")
	v.SetDefault("oracle.powerful.model", "gemini-2.5-pro")
	v.SetDefault("oracle.powerful.api_timeout", "90s")
	v.SetDefault("oracle.powerful.temperature", 0.2)
	v.SetDefault("oracle.powerful.max_tokens", 8192)

	v.SetDefault("executor.tool_timeout", "2m")
	v.SetDefault("executor.rate_per_second", 2.0)
	v.SetDefault("executor.rate_burst", 4)

	v.SetDefault("knowledge.type", "memory")
	v.SetDefault("knowledge.dsn", "")

	v.SetDefault("engagement.iteration_budget", 50)
	v.SetDefault("engagement.concurrency_cap", 4)
	v.SetDefault("engagement.flag_threshold", 3)
	v.SetDefault("engagement.max_retries", 3)
	v.SetDefault("engagement.backoff_base", "1s")
	v.SetDefault("engagement.backoff_cap", "30s")
	v.SetDefault("engagement.excerpt_length", 2000)
	v.SetDefault("engagement.history_size", 50)
	v.SetDefault("engagement.sample_limit", 10)
	v.SetDefault("engagement.recent_window", 5)
}

// NewDefaultConfig returns a Config populated with default values only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from the optional file path, then layers
// REDCLAW_* environment variables over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("REDCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("oracle.fast.api_key", "REDCLAW_ORACLE_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("oracle.powerful.api_key", "REDCLAW_ORACLE_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("knowledge.dsn", "REDCLAW_KNOWLEDGE_DSN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if c.Engagement.IterationBudget <= 0 {
		return fmt.Errorf("engagement.iteration_budget must be positive")
	}
	if c.Engagement.ConcurrencyCap <= 0 {
		return fmt.Errorf("engagement.concurrency_cap must be positive")
	}
	if c.Engagement.FlagThreshold <= 0 {
		return fmt.Errorf("engagement.flag_threshold must be positive")
	}
	if c.Engagement.BackoffBase <= 0 || c.Engagement.BackoffCap < c.Engagement.BackoffBase {
		return fmt.Errorf("engagement backoff bounds are inconsistent")
	}
	switch c.Knowledge.Type {
	case "memory":
	case "postgres":
		if c.Knowledge.DSN == "" {
			return fmt.Errorf("knowledge.dsn is required when knowledge.type is postgres")
		}
	default:
		return fmt.Errorf("unknown knowledge store type %q", c.Knowledge.Type)
	}
	return nil
}
