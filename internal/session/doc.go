// Package session implements the per-tab connection lifecycle.
//
// Each Session is a single-goroutine actor that owns one tab's entire
// connection state: the relay channel, the finite-state machine
// (disconnected/connecting/connected/reconnecting), the connect timeout,
// the exponential-backoff retry timer and the heartbeat ticker. Exported
// methods post operations onto the actor; channel events and timer fires
// arrive on the same select loop, so no locking is needed and a new state
// transition can never interleave with a pending one.
//
// Timer discipline: each purpose (connect timeout, retry, heartbeat) has
// at most one live handle, and arming a handle releases its predecessor.
// The select loop reads only the currently armed handle's channel, so a
// superseded timer's fire can never reach the state machine.
package session
