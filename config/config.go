package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every environment variable the engine reads, e.g.
// QUEUE_REDIS_URL, QUEUE_TIMEZONE, QUEUE_RATE_LIMIT_MAX.
const envPrefix = "QUEUE_"

// configPathVar optionally points at a YAML file loaded between the
// defaults and the environment overrides.
const configPathVar = "QUEUE_CONFIG_PATH"

type Config struct {
	// Server configuration
	Environment string `koanf:"environment"`
	OpsAddr     string `koanf:"ops_addr"`

	// Redis configuration
	RedisURL      string `koanf:"redis_url"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Queue configuration
	Timezone         string `koanf:"timezone"`     // IANA zone defining the service day
	BookingFee       string `koanf:"booking_fee"`  // decimal amount charged per ticket
	SubscriberBuffer int    `koanf:"subscriber_buffer"`

	// Allocation retry configuration
	AllocMaxAttempts int           `koanf:"alloc_max_attempts"`
	AllocBaseDelay   time.Duration `koanf:"alloc_base_delay"`
	AllocMaxDelay    time.Duration `koanf:"alloc_max_delay"`

	// Rate limiting
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	RateLimitMax    int           `koanf:"rate_limit_max"`

	// Display board access (bcrypt hashes; empty disables the check)
	BoardKeyHashes []string `koanf:"board_key_hashes"`

	// PubNub configuration
	PubNubPublishKey   string `koanf:"pubnub_publish_key"`
	PubNubSubscribeKey string `koanf:"pubnub_subscribe_key"`
	PubNubSecretKey    string `koanf:"pubnub_secret_key"`

	// Monitoring
	EnableMetrics bool `koanf:"enable_metrics"`

	loc *time.Location
}

func defaults() Config {
	return Config{
		Environment:      "development",
		OpsAddr:          ":8091",
		RedisURL:         "localhost:6379",
		RedisDB:          0,
		Timezone:         "UTC",
		BookingFee:       "0.00",
		SubscriberBuffer: 8,
		AllocMaxAttempts: 5,
		AllocBaseDelay:   10 * time.Millisecond,
		AllocMaxDelay:    250 * time.Millisecond,
		RateLimitWindow:  time.Minute,
		RateLimitMax:     30,
		EnableMetrics:    true,
	}
}

// Load builds the configuration in three layers: compiled defaults, an
// optional YAML file named by QUEUE_CONFIG_PATH, then QUEUE_* environment
// variables. Later layers win.
func Load() (*Config, error) {
	cfg := defaults()

	k := koanf.New(".")

	if path := os.Getenv(configPathVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		// board_key_hashes is the one list-valued key; commas separate entries.
		if key == "board_key_hashes" {
			return key, splitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", cfg.Timezone, err)
	}
	cfg.loc = loc

	return &cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.OpsAddr, validation.Required),
		validation.Field(&c.Timezone, validation.Required),
		validation.Field(&c.SubscriberBuffer, validation.Min(1)),
		validation.Field(&c.AllocMaxAttempts, validation.Min(1)),
		validation.Field(&c.AllocBaseDelay, validation.Min(time.Millisecond)),
		validation.Field(&c.RateLimitMax, validation.Min(1)),
		validation.Field(&c.RateLimitWindow, validation.Min(time.Second)),
	)
}

// Location returns the zone the service day is reckoned in. Only valid on a
// Config produced by Load.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NotifierConfigured reports whether the PubNub mirror has enough keys to
// publish.
func (c *Config) NotifierConfigured() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

// splitList turns a comma-separated value into its non-empty trimmed parts.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
