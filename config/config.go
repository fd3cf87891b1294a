// Package config provides configuration loading for swaybar
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/swaybar/bus"
	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/module"
	"github.com/c360/swaybar/pkg/retry"
)

// Config is the bar's static configuration. It is immutable once loaded.
type Config struct {
	Protocol        ProtocolConfig   `json:"protocol"`
	Aggregator      AggregatorConfig `json:"aggregator"`
	Backoff         BackoffConfig    `json:"backoff"`
	ShutdownTimeout time.Duration    `json:"shutdown_timeout"`
	Metrics         MetricsConfig    `json:"metrics"`
	NATS            NATSConfig       `json:"nats"`
	Modules         []module.Spec    `json:"modules"`
}

// ProtocolConfig controls the header sent to the host
type ProtocolConfig struct {
	ClickEvents bool `json:"click_events"`
}

// AggregatorConfig tunes frame production
type AggregatorConfig struct {
	// MinInterval is the minimum spacing between frames; 0 disables the limit
	MinInterval  time.Duration `json:"min_interval"`
	UpdateBuffer int           `json:"update_buffer"`
	ClickQueue   int           `json:"click_queue"`
}

// BackoffConfig is the retry policy shared by all modules
type BackoffConfig struct {
	Initial     time.Duration `json:"initial"`
	Max         time.Duration `json:"max"`
	Multiplier  float64       `json:"multiplier"`
	MaxAttempts int           `json:"max_attempts"`
	Jitter      bool          `json:"jitter"`
}

// MetricsConfig configures the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `json:"port"`
	Path string `json:"path"`
}

// NATSConfig is used by bus modules with the nats backend. Durations and
// max_reconnects left at zero keep the client defaults.
type NATSConfig struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Token    string `json:"token,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	Timeout       time.Duration `json:"timeout,omitempty"`
	DrainTimeout  time.Duration `json:"drain_timeout,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	PingInterval  time.Duration `json:"ping_interval,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
}

// BusConfig converts the section for the nats bus backend
func (n NATSConfig) BusConfig() bus.NATSConfig {
	return bus.NATSConfig{
		URL:           n.URL,
		Name:          n.Name,
		Token:         n.Token,
		User:          n.User,
		Password:      n.Password,
		Timeout:       n.Timeout,
		DrainTimeout:  n.DrainTimeout,
		ReconnectWait: n.ReconnectWait,
		PingInterval:  n.PingInterval,
		MaxReconnects: n.MaxReconnects,
	}
}

// Default returns the configuration used for every key a file leaves out
func Default() *Config {
	rc := retry.DefaultConfig()
	return &Config{
		Protocol: ProtocolConfig{ClickEvents: true},
		Aggregator: AggregatorConfig{
			UpdateBuffer: 64,
			ClickQueue:   8,
		},
		Backoff: BackoffConfig{
			Initial:     rc.InitialDelay,
			Max:         rc.MaxDelay,
			Multiplier:  rc.Multiplier,
			MaxAttempts: rc.MaxAttempts,
		},
		ShutdownTimeout: 5 * time.Second,
		Metrics:         MetricsConfig{Path: "/metrics"},
		NATS:            NATSConfig{URL: "nats://localhost:4222"},
	}
}

// Validate checks cross-field constraints the schema cannot express
func (c *Config) Validate() error {
	if len(c.Modules) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: no modules configured", errors.ErrMissingConfig),
			"Config", "Validate", "modules check")
	}
	for i, spec := range c.Modules {
		if err := spec.Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("module %d", i))
		}
	}

	if c.Backoff.Initial <= 0 {
		return invalidf("backoff.initial must be positive")
	}
	if c.Backoff.Max < c.Backoff.Initial {
		return invalidf("backoff.max %v is below backoff.initial %v", c.Backoff.Max, c.Backoff.Initial)
	}
	if c.Backoff.Multiplier < 1 {
		return invalidf("backoff.multiplier must be >= 1")
	}
	if c.Backoff.MaxAttempts < 0 {
		return invalidf("backoff.max_attempts cannot be negative")
	}
	if c.Aggregator.MinInterval < 0 {
		return invalidf("aggregator.min_interval cannot be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return invalidf("shutdown_timeout must be positive")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalidf("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.NATS.Timeout < 0 || c.NATS.DrainTimeout < 0 || c.NATS.ReconnectWait < 0 || c.NATS.PingInterval < 0 {
		return invalidf("nats durations cannot be negative")
	}
	if c.NATS.MaxReconnects < -1 {
		return invalidf("nats.max_reconnects must be -1 or more")
	}
	if c.NATS.Password != "" && c.NATS.User == "" {
		return invalidf("nats.password needs nats.user")
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "field check")
}

// RetryConfig converts the backoff section for pkg/retry
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Backoff.MaxAttempts,
		InitialDelay: c.Backoff.Initial,
		MaxDelay:     c.Backoff.Max,
		Multiplier:   c.Backoff.Multiplier,
		AddJitter:    c.Backoff.Jitter,
	}
}

const redacted = "[REDACTED]"

// String returns the configuration as indented JSON with NATS secrets
// redacted
func (c *Config) String() string {
	out := *c
	if out.NATS.Token != "" {
		out.NATS.Token = redacted
	}
	if out.NATS.Password != "" {
		out.NATS.Password = redacted
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
