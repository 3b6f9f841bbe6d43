package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeInbound serializes a bridge -> relay envelope. It is used by bridges
// and test harnesses; the relay itself only decodes inbound envelopes.
func EncodeInbound(e Inbound) ([]byte, error) {
	if !e.Command.Valid() {
		return nil, fmt.Errorf("%w: invalid command %q", ErrMalformedEnvelope, e.Command)
	}
	if e.Session.Empty() {
		return nil, fmt.Errorf("%w: missing session", ErrMalformedEnvelope)
	}
	return marshal(e)
}

// EncodeOutbound serializes a relay -> bridge envelope.
func EncodeOutbound(o Outbound) ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return marshal(o)
}

// marshal keeps payload text as-is (no HTML escaping) and strips the encoder's
// trailing newline. Control bytes, NUL included, are always \u-escaped.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
