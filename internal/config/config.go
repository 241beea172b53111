// Package config loads, validates, and resolves parley configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultGreeting is seeded into a session whose store is empty.
const DefaultGreeting = "Hello! How can I help you today?"

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Responder: ResponderConfig{
			TimeoutSeconds: 60,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Session: SessionConfig{
			Greeting: DefaultGreeting,
		},
		Gateway: GatewayConfig{
			Port: 17321,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}
