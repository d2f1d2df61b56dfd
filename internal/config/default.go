package config

import "time"

// Default configuration values.
const (
	DefaultPort           = 9001
	DefaultMaxConnections = 1024
	DefaultIdleTimeout    = 5 * time.Minute

	DefaultMaxMemory     = 1 << 30 // 1 GiB
	DefaultSweepInterval = time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Port:           DefaultPort,
			MaxConnections: DefaultMaxConnections,
			IdleTimeout:    DefaultIdleTimeout,
		},
		Storage: StorageSection{
			MaxMemory:     DefaultMaxMemory,
			SweepInterval: DefaultSweepInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
