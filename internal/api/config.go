// Package api provides the read-only HTTP API over the detection datastore.
package api

import (
	"net"
	"time"

	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/errors"
)

const componentName = "api"

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen          string // host:port
	Metrics         bool   // expose /metrics
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	return &Config{
		Listen:          settings.Server.Listen,
		Metrics:         settings.Server.Metrics,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Debug:           settings.Debug,
	}
}

// Validate checks the listen address.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.NewConfigError(componentName, "invalid listen address %q: %v", c.Listen, err)
	}
	return nil
}
