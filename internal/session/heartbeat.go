package session

import "github.com/coview/sync-agent/internal/metrics"

// startHeartbeat arms the repeating app-level heartbeat, replacing any
// live ticker. Only the actor goroutine calls this.
func (s *Session) startHeartbeat() {
	s.stopHeartbeat()
	s.heartbeat = s.clock.Ticker(s.cfg.HeartbeatInterval)
}

func (s *Session) stopHeartbeat() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
}

// handleHeartbeatTick emits one fire-and-forget heartbeat. Replies are
// neither expected nor tracked: a dead peer is detected by the
// transport's own failure signal, not by missed heartbeats.
func (s *Session) handleHeartbeatTick() {
	if s.channel == nil || !s.channel.IsConnected() {
		return
	}

	if err := s.channel.SendHeartbeat(); err != nil {
		s.logger.Debug("failed to send heartbeat", "error", err)
		return
	}

	s.lastHeartbeat = s.clock.Now()
	metrics.HeartbeatsTotal.Inc()
}
