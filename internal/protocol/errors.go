package protocol

import "errors"

var (
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
	ErrUnknownSession    = errors.New("protocol: unknown session")
	ErrDuplicateSession  = errors.New("protocol: duplicate session")
	ErrTransportClosed   = errors.New("protocol: transport closed")
	ErrWriteFailure      = errors.New("protocol: write failure")
	ErrInvalidRouting    = errors.New("protocol: outbound envelope needs exactly one of session or broadcast")
)
