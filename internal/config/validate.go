package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *AgentConfig) Validate() error {
	if c.Relay.URL == "" {
		return errors.New("relay.url is required")
	}
	u, err := url.Parse(c.Relay.URL)
	if err != nil {
		return fmt.Errorf("relay.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay.url scheme must be ws or wss, got %q", u.Scheme)
	}

	if c.Relay.ConnectTimeout < 0 {
		return errors.New("relay.connect_timeout must not be negative")
	}
	if c.Relay.EventBuffer < 1 {
		return errors.New("relay.event_buffer must be >= 1")
	}

	if c.Session.HeartbeatInterval < 0 {
		return errors.New("session.heartbeat_interval must not be negative")
	}
	if c.Session.ReconnectBaseDelay < 0 {
		return errors.New("session.reconnect_base_delay must not be negative")
	}
	if c.Session.MaxReconnectAttempts < 1 {
		return errors.New("session.max_reconnect_attempts must be >= 1")
	}

	if c.Gateway.ListenAddr == "" {
		return errors.New("gateway.listen_addr is required")
	}
	if c.Gateway.SendBuffer < 1 {
		return errors.New("gateway.send_buffer must be >= 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	return nil
}
