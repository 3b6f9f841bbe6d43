package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestInboundRoundTrip(t *testing.T) {
	cases := []Inbound{
		{Command: CommandConnect, Session: "1", Address: "127.0.0.1", Port: 9},
		{Command: CommandMessage, Session: "1", Data: StringPtr("setname:bob")},
		{Command: CommandMessage, Session: "abc", Data: StringPtr("")},
		{Command: CommandMessage, Session: "2", Data: StringPtr("<b>&amp;</b> é世 \x00 tail")},
		{Command: CommandDisconnect, Session: "1"},
	}
	for _, in := range cases {
		raw, err := EncodeInbound(in)
		if err != nil {
			t.Fatalf("encode %+v: %v", in, err)
		}
		out, err := DecodeInbound(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round-trip mismatch: in=%+v out=%+v", in, out)
		}
		again, err := EncodeInbound(out)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if !bytes.Equal(raw, again) {
			t.Fatalf("re-encode mismatch: %s vs %s", raw, again)
		}
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	cases := []Outbound{
		Unicast("1", "hi"),
		BroadcastAll("x"),
		Unicast("42", ""),
	}
	for _, in := range cases {
		raw, err := EncodeOutbound(in)
		if err != nil {
			t.Fatalf("encode %+v: %v", in, err)
		}
		out, err := DecodeOutbound(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if out != in {
			t.Fatalf("round-trip mismatch: in=%+v out=%+v", in, out)
		}
	}
}

func TestEncodeOutboundWireShape(t *testing.T) {
	raw, err := EncodeOutbound(Unicast("1", "a<b"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `{"session":"1","data":"a<b"}` {
		t.Fatalf("unexpected unicast wire: %s", raw)
	}
	raw, err = EncodeOutbound(BroadcastAll("x"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `{"broadcast":true,"data":"x"}` {
		t.Fatalf("unexpected broadcast wire: %s", raw)
	}
}

func TestEncodedEnvelopeNeverContainsNUL(t *testing.T) {
	raw, err := EncodeOutbound(Unicast("1", "a\x00b\x00"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		t.Fatalf("encoded envelope contains raw NUL: %q", raw)
	}
	out, err := DecodeOutbound(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data != "a\x00b\x00" {
		t.Fatalf("payload altered: %q", out.Data)
	}
}

func TestEncodeOutboundRejectsBadRouting(t *testing.T) {
	if _, err := EncodeOutbound(Outbound{Data: "x"}); !errors.Is(err, ErrInvalidRouting) {
		t.Fatalf("expected ErrInvalidRouting for no route, got %v", err)
	}
	if _, err := EncodeOutbound(Outbound{Session: "1", Broadcast: true, Data: "x"}); !errors.Is(err, ErrInvalidRouting) {
		t.Fatalf("expected ErrInvalidRouting for two routes, got %v", err)
	}
}

func TestDecodeInboundNumericSession(t *testing.T) {
	e, err := DecodeInbound([]byte(`{"session":12345,"command":"connect","data":null,"address":"10.0.0.1","port":5000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Session != "12345" {
		t.Fatalf("unexpected session: %q", e.Session)
	}
	if e.Data != nil {
		t.Fatalf("expected absent data, got %q", *e.Data)
	}
	if e.Address != "10.0.0.1" || e.Port != 5000 {
		t.Fatalf("unexpected peer: %s:%d", e.Address, e.Port)
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"not json":         `hello`,
		"truncated":        `{"command":"message","session":"1","da`,
		"array":            `[1,2]`,
		"null":             `null`,
		"missing command":  `{"session":"1"}`,
		"missing session":  `{"command":"message"}`,
		"blank session":    `{"command":"message","session":"  "}`,
		"unknown command":  `{"command":"reboot","session":"1"}`,
		"port type":        `{"command":"connect","session":"1","port":"x"}`,
		"data type":        `{"command":"message","session":"1","data":5}`,
		"session type":     `{"command":"message","session":true}`,
		"session object":   `{"command":"message","session":{}}`,
		"command type":     `{"command":7,"session":"1"}`,
		"trailing garbage": `{"command":"message","session":"1"} x`,
	}
	for name, raw := range cases {
		if _, err := DecodeInbound([]byte(raw)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("%s: expected ErrMalformedEnvelope, got %v", name, err)
		}
	}
}

func TestDecodeOutboundMalformed(t *testing.T) {
	if _, err := DecodeOutbound([]byte(`{"data":"x"}`)); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
	if _, err := DecodeOutbound([]byte(`{"broadcast":"yes","data":"x"}`)); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}
