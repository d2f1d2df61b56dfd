package config

import "fmt"

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be at least 1, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.IdleTimeout <= 0 {
		return fmt.Errorf("server.idle_timeout must be positive, got %s", cfg.Server.IdleTimeout)
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %d", cfg.Server.RateLimit)
	}
	if cfg.Storage.MaxMemory < 1 {
		return fmt.Errorf("storage.max_memory must be at least 1 byte, got %d", cfg.Storage.MaxMemory)
	}
	if cfg.Storage.SweepInterval <= 0 {
		return fmt.Errorf("storage.sweep_interval must be positive, got %s", cfg.Storage.SweepInterval)
	}
	return nil
}
