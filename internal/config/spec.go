// Package config defines the blinkd server configuration.
package config

import "time"

// ServerConfig is the root configuration for blinkd.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the TCP listener and connection handling.
type ServerSection struct {
	// Port is the TCP listening port.
	Port int `koanf:"port"`

	// MaxConnections caps concurrent clients.
	MaxConnections int `koanf:"max_connections"`

	// IdleTimeout closes connections idle for this long.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// RateLimit is the maximum commands per second per client IP.
	// Zero disables limiting.
	RateLimit int `koanf:"rate_limit"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	// MaxMemory is the byte budget for live entries.
	MaxMemory int64 `koanf:"max_memory"`

	// SweepInterval is the TTL sweeper cadence.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// MetricsSection configures the optional Prometheus endpoint.
type MetricsSection struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
