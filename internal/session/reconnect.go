package session

import (
	"fmt"

	"github.com/coview/sync-agent/internal/metrics"
)

// scheduleRetry arms a single delayed reconnect after a transient
// failure. Delays double per attempt (1s, 2s, 4s, 8s, 16s by default);
// past the ceiling the failure is surfaced as terminal and nothing is
// armed. Only the actor goroutine calls this.
func (s *Session) scheduleRetry() {
	s.attempts++

	if s.attempts > s.cfg.MaxReconnectAttempts {
		s.state = StateDisconnected
		metrics.RetriesExhaustedTotal.Inc()
		s.logger.Error("giving up after repeated connection failures", "attempts", s.cfg.MaxReconnectAttempts)
		s.content.ConnectionError(fmt.Sprintf(
			"could not reach the sync server after %d attempts", s.cfg.MaxReconnectAttempts))
		return
	}

	delay := s.cfg.ReconnectBaseDelay << (s.attempts - 1)

	s.releaseRetry()
	s.retry = s.clock.Timer(delay)
	s.state = StateReconnecting
	metrics.ReconnectsScheduledTotal.Inc()

	s.logger.Info("reconnect scheduled", "attempt", s.attempts, "delay", delay)
}

// handleRetryFire re-dials with the parameters of the last attempt.
func (s *Session) handleRetryFire() {
	s.retry = nil
	p := s.lastParams
	s.connect(p.VideoProgress, p.VideoState, p.RoomID, true)
}

func (s *Session) releaseRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}
