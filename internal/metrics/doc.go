// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session lifecycle: connects, failures, scheduled reconnects,
//     exhausted retry budgets
//   - Relay traffic: heartbeats, local and remote playback updates
//   - Collaborator gateway: connected collaborators, invalid messages
//   - Transport selection: WebSocket vs long-polling opens
package metrics
