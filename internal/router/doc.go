// Package router dispatches collaborator messages into tab sessions.
//
// Two independent inbound streams exist: the per-tab content stream and
// the process-wide popup stream. Each raw message is decoded into its
// sealed variant set and dispatched to the owning session; an error is
// scoped to the single message that caused it and never affects other
// tabs.
//
// The PopupHub tracks the most recently connected popup and fans session
// notifications out to it, dropping them when no popup is connected.
package router
