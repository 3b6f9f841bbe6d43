// Package protocol owns the relay envelope contract and its JSON codec.
//
// Ownership boundary:
// - inbound envelope (bridge -> relay): command, session, data, address, port
// - outbound envelope (relay -> bridge): data plus exactly one of session or broadcast
// - error taxonomy shared by framing, dispatch, and the outbound gateway
//
// Framing lives in the frame subpackage; this package never sees a sentinel byte.
package protocol
