package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Command is the inbound lifecycle verb carried by every bridge envelope.
type Command string

const (
	CommandConnect    Command = "connect"
	CommandMessage    Command = "message"
	CommandDisconnect Command = "disconnect"
)

func (c Command) Valid() bool {
	switch c {
	case CommandConnect, CommandMessage, CommandDisconnect:
		return true
	default:
		return false
	}
}

// SessionID is the bridge-assigned opaque session identifier.
//
// The bridge may emit it as a JSON string or a JSON number; both decode to the
// same textual id. It always encodes as a JSON string.
type SessionID string

func (id *SessionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("%w: empty session", ErrMalformedEnvelope)
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: session: %v", ErrMalformedEnvelope, err)
		}
		*id = SessionID(s)
		return nil
	case 'n':
		*id = ""
		return nil
	default:
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("%w: session must be a string or number", ErrMalformedEnvelope)
		}
		*id = SessionID(n.String())
		return nil
	}
}

func (id SessionID) String() string {
	return string(id)
}

// Empty reports whether the id is blank after trimming.
func (id SessionID) Empty() bool {
	return strings.TrimSpace(string(id)) == ""
}

// Inbound is one bridge -> relay envelope.
type Inbound struct {
	Command Command   `json:"command"`
	Session SessionID `json:"session"`
	// Data is nil when the bridge sent null or omitted it.
	Data    *string `json:"data"`
	Address string  `json:"address,omitempty"`
	Port    int     `json:"port,omitempty"`
}

// Payload returns Data or "" when absent.
func (e Inbound) Payload() string {
	if e.Data == nil {
		return ""
	}
	return *e.Data
}

// Outbound is one relay -> bridge envelope. Exactly one of Session or
// Broadcast routes it.
type Outbound struct {
	Session   SessionID `json:"session,omitempty"`
	Broadcast bool      `json:"broadcast,omitempty"`
	Data      string    `json:"data"`
}

// Unicast builds an outbound envelope for one session.
func Unicast(id SessionID, data string) Outbound {
	return Outbound{Session: id, Data: data}
}

// BroadcastAll builds an outbound envelope the bridge fans out to every client.
func BroadcastAll(data string) Outbound {
	return Outbound{Broadcast: true, Data: data}
}

func (o Outbound) Validate() error {
	hasSession := !o.Session.Empty()
	if hasSession == o.Broadcast {
		return ErrInvalidRouting
	}
	return nil
}

// StringPtr is a convenience for building Inbound.Data.
func StringPtr(s string) *string {
	return &s
}
