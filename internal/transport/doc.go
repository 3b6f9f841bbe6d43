// Package transport opens the single bridge link a relay runs over.
//
// Stream networks (tcp, unix) either listen and accept exactly one bridge
// connection, or dial the bridge with retry and backoff. The udp network binds
// a local port and exchanges one envelope per datagram with the bridge.
package transport
