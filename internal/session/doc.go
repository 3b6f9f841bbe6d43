// Package session owns live bridge sessions.
//
// Ownership boundary:
// - session identity and peer info, fixed at connect
// - application-attached attributes
// - the registry: create once, remove once, snapshot for introspection
//
// Only the relay reader goroutine creates and removes sessions. Any goroutine
// may look up, snapshot, or touch attributes.
package session
