// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // empty disables auth (dev only)
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | redis
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai | gemini | noop
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIModel     string `yaml:"openai_model"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	GeminiModel     string `yaml:"gemini_model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // global cap on upstream calls, 0 = unlimited
}

type CompareConfig struct {
	Concurrency     int           `yaml:"concurrency"`       // per-job analyze slots
	MaxAutoRetries  int           `yaml:"max_auto_retries"`  // automatic retry budget per segment
	TaskTimeout     time.Duration `yaml:"task_timeout"`      // deadline per analyze call, 0 disables
	MaxClipDuration time.Duration `yaml:"max_clip_duration"` // pre-flight duration limit
	MaxClipBytes    int64         `yaml:"max_clip_bytes"`    // inline transfer budget per clip
	Retention       time.Duration `yaml:"retention"`         // how long finished jobs stay pollable
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	AI      AIConfig      `yaml:"ai"`
	Compare CompareConfig `yaml:"compare"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied and no file read.
// Used by tests and the dev mode fallback when no config file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 2048
	}
	if cfg.AI.ConcurrentLimit < 0 {
		cfg.AI.ConcurrentLimit = 0
	}
	if cfg.Compare.Concurrency <= 0 {
		cfg.Compare.Concurrency = 4
	}
	if cfg.Compare.MaxAutoRetries == 0 {
		cfg.Compare.MaxAutoRetries = 1
	}
	if cfg.Compare.MaxAutoRetries < 0 {
		// negative means "no automatic retries"
		cfg.Compare.MaxAutoRetries = 0
	}
	if cfg.Compare.TaskTimeout == 0 {
		cfg.Compare.TaskTimeout = 2 * time.Minute
	}
	if cfg.Compare.TaskTimeout < 0 {
		// negative disables the per-task deadline entirely
		cfg.Compare.TaskTimeout = 0
	}
	if cfg.Compare.MaxClipDuration <= 0 {
		cfg.Compare.MaxClipDuration = 1200 * time.Second
	}
	if cfg.Compare.MaxClipBytes <= 0 {
		cfg.Compare.MaxClipBytes = 64 << 20
	}
	if cfg.Compare.Retention <= 0 {
		cfg.Compare.Retention = time.Hour
	}
	if cfg.Compare.CleanupInterval <= 0 {
		cfg.Compare.CleanupInterval = 5 * time.Minute
	}
}
