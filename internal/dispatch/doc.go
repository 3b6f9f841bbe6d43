// Package dispatch turns inbound envelopes into application callbacks.
//
// Per session id the lifecycle is absent -> live -> absent:
// - connect creates the session, then calls OnConnect
// - message calls OnMessage for a live session, otherwise drops
// - disconnect removes the session, then calls OnDisconnect, otherwise drops
//
// Callbacks run on the caller's goroutine, one at a time, in arrival order.
// A failing or panicking callback is logged and counted; dispatch goes on.
package dispatch
