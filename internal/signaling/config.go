// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package signaling

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines signaling server settings.
type Config struct {
	Addr string `env:"SIGNALING_ADDR" envDefault:":8080"`

	// AllowedOrigins for WebSocket upgrades and CORS, "*" allows any origin.
	AllowedOrigins []string `env:"SIGNALING_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	SendQueueSize  int   `env:"SIGNALING_SEND_QUEUE_SIZE" envDefault:"256"`
	MaxMessageSize int64 `env:"SIGNALING_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// MessageRate limits inbound messages per client per second, zero disables the limit.
	MessageRate  float64 `env:"SIGNALING_MESSAGE_RATE" envDefault:"50"`
	MessageBurst int     `env:"SIGNALING_MESSAGE_BURST" envDefault:"100"`

	PingInterval    time.Duration `env:"SIGNALING_PING_INTERVAL" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SIGNALING_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Debug bool `env:"SIGNALING_DEBUG"`
}

// LoadConfig parses the configuration from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom parses the configuration from the given environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environ})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration values.
func (cfg Config) Validate() error {
	if cfg.SendQueueSize <= 0 {
		return fmt.Errorf("send queue size should be positive: %d", cfg.SendQueueSize)
	}

	if cfg.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size should be positive: %d", cfg.MaxMessageSize)
	}

	if cfg.MessageRate < 0 {
		return fmt.Errorf("message rate should be non-negative: %f", cfg.MessageRate)
	}

	if cfg.MessageRate > 0 && cfg.MessageBurst <= 0 {
		return fmt.Errorf("message burst should be positive: %d", cfg.MessageBurst)
	}

	if cfg.PingInterval <= 0 {
		return fmt.Errorf("ping interval should be positive: %s", cfg.PingInterval)
	}

	return nil
}

func (cfg Config) originAllowed(origin string) bool {
	if origin == "" {
		// not a browser
		return true
	}

	return slices.Contains(cfg.AllowedOrigins, "*") || slices.Contains(cfg.AllowedOrigins, origin)
}
