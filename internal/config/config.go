// Package config handles loading and validation of the reconnecting
// client's tunables (spec.md §6's configuration surface). Grounded on
// host-agent/internal/config/config.go: same spf13/viper layering
// (defaults, then file, then CRAZYSTREAM_*-style env prefix), same
// Validate-after-Unmarshal shape.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath mirrors host-agent's platform-specific default; this
// client ships cross-platform so it resolves relative to the working
// directory instead of a fixed Windows ProgramData path.
const DefaultConfigPath = "wsconn.yaml"

// ClientConfig holds every tunable named in spec.md §6.
type ClientConfig struct {
	MaxRetries           int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialRetryDelay    time.Duration `mapstructure:"initial_retry_delay" yaml:"initial_retry_delay"`
	MaxRetryDelay        time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay"`
	RetryBackoffBase     float64       `mapstructure:"retry_backoff_base" yaml:"retry_backoff_base"`
	// BackoffJitter is a fraction in [0,1] perturbing each computed
	// backoff delay by up to that fraction in either direction; 0
	// disables jitter entirely. Optional, off by default (SPEC_FULL.md
	// §11.1).
	BackoffJitter        float64       `mapstructure:"backoff_jitter" yaml:"backoff_jitter"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	DisconnectTimeout    time.Duration `mapstructure:"disconnect_timeout" yaml:"disconnect_timeout"`
	StabilityTimeout     time.Duration `mapstructure:"stability_timeout" yaml:"stability_timeout"`
	MaxPingInterval      time.Duration `mapstructure:"max_ping_interval" yaml:"max_ping_interval"`
	MaxPongDelay         time.Duration `mapstructure:"max_pong_delay" yaml:"max_pong_delay"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`
	MaxMessagesPerWindow int           `mapstructure:"max_messages_per_window" yaml:"max_messages_per_window"`
	MaxBytesPerMessage   int           `mapstructure:"max_bytes_per_message" yaml:"max_bytes_per_message"`
	MaxQueueSize         int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`
	MaxBufferSize        int           `mapstructure:"max_buffer_size" yaml:"max_buffer_size"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level"`
}

// Load reads configuration from the given file path, falling back to
// DefaultConfigPath if configPath is empty. Environment variables
// (WSCONN_*) override file values, mirroring the teacher's precedence.
func Load(configPath string) (*ClientConfig, error) {
	v := viper.New()

	v.SetDefault("max_retries", 10)
	v.SetDefault("initial_retry_delay", time.Second)
	v.SetDefault("max_retry_delay", 60*time.Second)
	v.SetDefault("retry_backoff_base", 2.0)
	v.SetDefault("backoff_jitter", 0.0)
	v.SetDefault("connect_timeout", 30*time.Second)
	v.SetDefault("disconnect_timeout", 5*time.Second)
	v.SetDefault("stability_timeout", 10*time.Second)
	v.SetDefault("max_ping_interval", 30*time.Second)
	v.SetDefault("max_pong_delay", 10*time.Second)
	v.SetDefault("rate_limit_window", time.Second)
	v.SetDefault("max_messages_per_window", 100)
	v.SetDefault("max_bytes_per_message", 65536)
	v.SetDefault("max_queue_size", 1000)
	v.SetDefault("max_buffer_size", 16*1024*1024)
	v.SetDefault("log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	v.SetEnvPrefix("WSCONN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		"max_retries":             "WSCONN_MAX_RETRIES",
		"initial_retry_delay":     "WSCONN_INITIAL_RETRY_DELAY",
		"max_retry_delay":         "WSCONN_MAX_RETRY_DELAY",
		"retry_backoff_base":      "WSCONN_RETRY_BACKOFF_BASE",
		"backoff_jitter":          "WSCONN_BACKOFF_JITTER",
		"connect_timeout":         "WSCONN_CONNECT_TIMEOUT",
		"disconnect_timeout":      "WSCONN_DISCONNECT_TIMEOUT",
		"stability_timeout":       "WSCONN_STABILITY_TIMEOUT",
		"max_ping_interval":       "WSCONN_MAX_PING_INTERVAL",
		"max_pong_delay":          "WSCONN_MAX_PONG_DELAY",
		"rate_limit_window":       "WSCONN_RATE_LIMIT_WINDOW",
		"max_messages_per_window": "WSCONN_MAX_MESSAGES_PER_WINDOW",
		"max_bytes_per_message":   "WSCONN_MAX_BYTES_PER_MESSAGE",
		"max_queue_size":          "WSCONN_MAX_QUEUE_SIZE",
		"max_buffer_size":         "WSCONN_MAX_BUFFER_SIZE",
		"log_level":               "WSCONN_LOG_LEVEL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			// Config file not found; rely on env vars and defaults.
		} else if os.IsNotExist(err) {
			// viper wraps os errors differently across file formats.
		} else {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Validate checks every per-field constraint spec.md §6's configuration
// table names, plus the cross-cutting budget constraints spec.md §6 and
// §9 call out explicitly: RETRY_BACKOFF_BASE^MAX_RETRIES ×
// INITIAL_RETRY_DELAY must stay under an hour, and the queue's and rate window's worst-case memory footprints
// must stay under the configured buffer budget.
func (c *ClientConfig) Validate() error {
	if c.MaxRetries < 3 || c.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be in 3..10, got %d", c.MaxRetries)
	}
	if c.InitialRetryDelay < 100*time.Millisecond {
		return fmt.Errorf("initial_retry_delay must be >= 100ms, got %s", c.InitialRetryDelay)
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		return fmt.Errorf("max_retry_delay must be >= initial_retry_delay")
	}
	if c.RetryBackoffBase <= 1.0 {
		return fmt.Errorf("retry_backoff_base must be > 1.0")
	}
	if c.BackoffJitter < 0 || c.BackoffJitter > 1 {
		return fmt.Errorf("backoff_jitter must be in 0..1, got %v", c.BackoffJitter)
	}
	if c.ConnectTimeout <= c.MaxRetryDelay {
		return fmt.Errorf("connect_timeout must be > max_retry_delay")
	}
	if c.DisconnectTimeout <= 0 {
		return fmt.Errorf("disconnect_timeout must be > 0")
	}
	if c.StabilityTimeout <= 0 {
		return fmt.Errorf("stability_timeout must be > 0")
	}
	if c.MaxPongDelay <= 0 {
		return fmt.Errorf("max_pong_delay must be > 0")
	}
	if c.MaxPingInterval <= 2*c.MaxPongDelay {
		return fmt.Errorf("max_ping_interval must be > 2x max_pong_delay")
	}
	if c.RateLimitWindow <= c.MaxRetryDelay {
		return fmt.Errorf("rate_limit_window must be > max_retry_delay")
	}
	if c.MaxMessagesPerWindow <= 0 {
		return fmt.Errorf("max_messages_per_window must be >= 1")
	}
	if c.MaxBytesPerMessage < 1024 {
		return fmt.Errorf("max_bytes_per_message must be >= 1024, got %d", c.MaxBytesPerMessage)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be >= 1")
	}
	if c.MaxBufferSize <= c.MaxBytesPerMessage {
		return fmt.Errorf("max_buffer_size must be > max_bytes_per_message")
	}

	backoffBudget := math.Pow(c.RetryBackoffBase, float64(c.MaxRetries)) * float64(c.InitialRetryDelay)
	if backoffBudget >= float64(time.Hour) {
		return fmt.Errorf("retry_backoff_base^max_retries * initial_retry_delay (%.0fs) must stay under 1 hour", backoffBudget/float64(time.Second))
	}

	windowBudget := int64(c.MaxMessagesPerWindow) * int64(c.MaxBytesPerMessage)
	if windowBudget >= int64(c.MaxBufferSize) {
		return fmt.Errorf("max_messages_per_window * max_bytes_per_message (%d) must stay under max_buffer_size (%d)", windowBudget, c.MaxBufferSize)
	}

	queueBudget := int64(c.MaxQueueSize) * int64(c.MaxBytesPerMessage)
	if queueBudget >= int64(c.MaxBufferSize) {
		return fmt.Errorf("max_queue_size * max_bytes_per_message (%d) must stay under max_buffer_size (%d)", queueBudget, c.MaxBufferSize)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	return nil
}

// worstCaseTotalBackoff sums every retry delay in the capped exponential
// sequence: initial * base^i, clamped to max, for i in [0, maxRetries).
func worstCaseTotalBackoff(maxRetries int, initial, max time.Duration, base float64) time.Duration {
	var total time.Duration
	delay := initial
	for i := 0; i < maxRetries; i++ {
		if delay > max {
			delay = max
		}
		total += delay
		delay = time.Duration(float64(delay) * base)
	}
	return total
}
