package config

// Config is the root configuration for parley.
type Config struct {
	Responder ResponderConfig `yaml:"responder,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ResponderConfig points the coordinator at a remote respond endpoint.
type ResponderConfig struct {
	Endpoint       string `yaml:"endpoint,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// StorageConfig selects and locates the message store.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // sqlite file, defaults under ~/.parley/data
}

// SessionConfig tunes session behavior.
type SessionConfig struct {
	Greeting string `yaml:"greeting,omitempty"` // seeded into an empty session
}

// GatewayConfig controls the HTTP/WebSocket surface.
type GatewayConfig struct {
	Port int         `yaml:"port,omitempty"`
	Bind string      `yaml:"bind,omitempty"` // "loopback" | "lan"
	Auth GatewayAuth `yaml:"auth,omitempty"`
}

// GatewayAuth configures gateway authentication. An empty token
// disables auth (loopback-only development use).
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // trace..fatal, silent
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}
