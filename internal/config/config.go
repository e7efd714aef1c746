package config

import "time"

// AgentConfig is the root configuration for a sync agent instance.
type AgentConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Relay    RelayConfig    `yaml:"relay"`
	Session  SessionConfig  `yaml:"session"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this agent.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RelayConfig holds relay channel settings.
type RelayConfig struct {
	URL                   string        `yaml:"url"` // ws:// or wss://
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	EventBuffer           int           `yaml:"event_buffer"`
	EnablePollingFallback *bool         `yaml:"enable_polling_fallback"`
}

// SessionConfig holds per-tab connection lifecycle settings.
type SessionConfig struct {
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// GatewayConfig holds collaborator gateway settings.
type GatewayConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SendBuffer     int           `yaml:"send_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// PollingFallbackEnabled reports the effective fallback setting.
func (c *RelayConfig) PollingFallbackEnabled() bool {
	return c.EnablePollingFallback == nil || *c.EnablePollingFallback
}
