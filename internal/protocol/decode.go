package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeInbound parses one bridge -> relay envelope. Every failure wraps
// ErrMalformedEnvelope.
func DecodeInbound(b []byte) (Inbound, error) {
	var e Inbound
	if err := unmarshal(b, &e); err != nil {
		return Inbound{}, err
	}
	if e.Command == "" {
		return Inbound{}, fmt.Errorf("%w: missing command", ErrMalformedEnvelope)
	}
	if !e.Command.Valid() {
		return Inbound{}, fmt.Errorf("%w: unknown command %q", ErrMalformedEnvelope, e.Command)
	}
	if e.Session.Empty() {
		return Inbound{}, fmt.Errorf("%w: missing session", ErrMalformedEnvelope)
	}
	return e, nil
}

// DecodeOutbound parses one relay -> bridge envelope.
func DecodeOutbound(b []byte) (Outbound, error) {
	var o Outbound
	if err := unmarshal(b, &o); err != nil {
		return Outbound{}, err
	}
	if err := o.Validate(); err != nil {
		return Outbound{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return o, nil
}

func unmarshal(b []byte, out any) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(b, out); err != nil {
		if errors.Is(err, ErrMalformedEnvelope) {
			return err
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %q: expected %s, got %s", ErrMalformedEnvelope, typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return nil
}
