package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive is the number of live tab sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_sessions_active",
		Help: "Number of live tab sessions",
	})

	// ConnectsTotal counts successful relay connections.
	ConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_relay_connects_total",
		Help: "Total successful relay connections",
	})

	// ConnectFailuresTotal counts failed or timed-out relay dials.
	ConnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_relay_connect_failures_total",
		Help: "Total failed or timed-out relay connection attempts",
	})

	// ReconnectsScheduledTotal counts armed reconnect timers.
	ReconnectsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_reconnects_scheduled_total",
		Help: "Total reconnect retries scheduled after transient failures",
	})

	// RetriesExhaustedTotal counts sessions that gave up reconnecting.
	RetriesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_retries_exhausted_total",
		Help: "Total times the reconnect budget was exhausted",
	})

	// HeartbeatsTotal counts heartbeats sent to the relay.
	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_heartbeats_total",
		Help: "Total heartbeats sent to the relay",
	})

	// RemoteUpdatesTotal counts remote playback updates forwarded to
	// content collaborators.
	RemoteUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_remote_updates_total",
		Help: "Total remote playback updates forwarded to content collaborators",
	})

	// LocalUpdatesTotal counts local playback updates forwarded to the relay.
	LocalUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_local_updates_total",
		Help: "Total local playback updates forwarded to the relay",
	})

	// InvalidMessagesTotal counts undecodable or unknown inbound
	// collaborator messages, by stream.
	InvalidMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_invalid_messages_total",
		Help: "Total invalid inbound collaborator messages",
	}, []string{"stream"})

	// CollaboratorsConnected is the number of connected collaborators, by kind.
	CollaboratorsConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_collaborators_connected",
		Help: "Number of connected collaborators",
	}, []string{"kind"})

	// TransportOpensTotal counts established relay channels, by transport.
	TransportOpensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_relay_transport_opens_total",
		Help: "Total relay channels established, by transport",
	}, []string{"transport"})
)
