// Package gateway exposes the agent's collaborator surface.
//
// Endpoints:
//   - GET /ws/tab?tab=…&url=…  content collaborator stream; its lifetime
//     is the tab's lifetime (upgrade = attach, close = detach)
//   - GET /ws/popup            popup collaborator stream
//   - GET /healthz             agent and per-tab status
//   - GET /metrics             Prometheus metrics
//
// Outbound notifications are queued per connection and drained by a
// single writer goroutine, so session actors never block on a slow
// collaborator.
package gateway
