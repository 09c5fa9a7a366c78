// Package config loads warren.yml, the runtime configuration: which
// instance this process serves, how to reach Redis, which embedded bots to
// host, and the quota and rate-limit budgets applied to them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warren-hq/warren/pkg/bothandler"
	"github.com/warren-hq/warren/pkg/ratelimit"
	"github.com/warren-hq/warren/pkg/statestore"
)

// RateLimitConfig caps outbound actions per bot.
type RateLimitConfig struct {
	Burst         int `yaml:"burst,omitempty"`          // Max actions per window (default 20)
	WindowSeconds int `yaml:"window_seconds,omitempty"` // Trailing window length (default 5)
}

// Window returns the configured window as a duration.
func (r *RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// BotConfig declares one hosted embedded bot and its identity fields.
type BotConfig struct {
	Service  string `yaml:"service"`           // Registry service name, also the bot's stable ID
	FullName string `yaml:"full_name"`         // Display name shown as message sender
	Email    string `yaml:"email"`             // Reachable address of the bot
	Enabled  *bool  `yaml:"enabled,omitempty"` // Default: true
}

// IsEnabled reports whether the bot should be hosted.
func (b *BotConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Identity builds the platform identity for this bot in the given realm.
func (b *BotConfig) Identity(realm string) bothandler.Identity {
	return bothandler.Identity{
		ID:       b.Service,
		FullName: b.FullName,
		Email:    b.Email,
		Realm:    realm,
	}
}

// Config represents the top-level warren.yml configuration.
type Config struct {
	Version        string           `yaml:"version"`
	Instance       string           `yaml:"instance"`
	Realm          string           `yaml:"realm,omitempty"`
	RedisURL       string           `yaml:"redis_url,omitempty"`
	BotsDir        string           `yaml:"bots_dir,omitempty"`
	StateSizeLimit int64            `yaml:"state_size_limit,omitempty"`
	RateLimit      *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Workers        int              `yaml:"workers,omitempty"`
	Bots           []BotConfig      `yaml:"bots"`
}

// Validate performs strict validation and fills in defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}

	if len(c.Bots) == 0 {
		return fmt.Errorf("no bots defined")
	}

	servicesSeen := make(map[string]bool)
	for i, bot := range c.Bots {
		if bot.Service == "" {
			return fmt.Errorf("bot %d: service is required", i)
		}
		if bot.FullName == "" {
			return fmt.Errorf("bot '%s': full_name is required", bot.Service)
		}
		if bot.Email == "" {
			return fmt.Errorf("bot '%s': email is required", bot.Service)
		}
		if servicesSeen[bot.Service] {
			return fmt.Errorf("duplicate bot service '%s': service names must be unique", bot.Service)
		}
		servicesSeen[bot.Service] = true
	}

	// Defaults
	if c.Realm == "" {
		c.Realm = c.Instance
	}
	if c.RedisURL == "" {
		c.RedisURL = "redis://localhost:6379"
	}
	if c.BotsDir == "" {
		c.BotsDir = "./bots"
	}
	if c.StateSizeLimit == 0 {
		c.StateSizeLimit = statestore.DefaultSizeLimit
	}
	if c.StateSizeLimit < 0 {
		return fmt.Errorf("state_size_limit must be positive, got %d", c.StateSizeLimit)
	}
	if c.RateLimit == nil {
		c.RateLimit = &RateLimitConfig{}
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = ratelimit.DefaultBurst
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = int(ratelimit.DefaultWindow / time.Second)
	}
	if c.RateLimit.Burst < 0 || c.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("rate_limit burst and window_seconds must be positive")
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}

	return nil
}

// Load reads and validates warren.yml from the specified path. The
// WARREN_INSTANCE_NAME and REDIS_URL environment variables override their
// file counterparts, so one config file can serve several deployments.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if v := os.Getenv("WARREN_INSTANCE_NAME"); v != "" {
		config.Instance = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.RedisURL = v
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
