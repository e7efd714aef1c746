// Package tabs implements the tab registry.
//
// The Registry owns the tabId → session mapping: a session is created
// when a tab's content collaborator attaches and torn down atomically
// when it detaches. There is no ambient global; main constructs one
// Registry and hands it to the router and gateway.
package tabs
