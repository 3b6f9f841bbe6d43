package dispatch

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/session"
	"github.com/danmuck/iorelay/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type nopOutbound struct{}

func (nopOutbound) Send(protocol.SessionID, string) error { return nil }
func (nopOutbound) Broadcast(string) error               { return nil }
func (nopOutbound) Sessions() []*session.Session          { return nil }

// recorder logs every callback as "event:session[:data]".
type recorder struct {
	events []string
	fail   map[string]error
	panics map[string]bool
}

func (r *recorder) note(event string, s *session.Session, extra string) error {
	entry := event + ":" + s.ID.String()
	if extra != "" {
		entry += ":" + extra
	}
	r.events = append(r.events, entry)
	if r.panics[event] {
		panic("boom in " + event)
	}
	return r.fail[event]
}

func (r *recorder) OnConnect(_ Outbound, s *session.Session) error {
	return r.note("connect", s, "")
}

func (r *recorder) OnMessage(_ Outbound, s *session.Session, data string) error {
	return r.note("message", s, data)
}

func (r *recorder) OnDisconnect(_ Outbound, s *session.Session) error {
	return r.note("disconnect", s, "")
}

func connect(id protocol.SessionID) protocol.Inbound {
	return protocol.Inbound{Command: protocol.CommandConnect, Session: id, Address: "127.0.0.1", Port: 9000}
}

func message(id protocol.SessionID, data string) protocol.Inbound {
	return protocol.Inbound{Command: protocol.CommandMessage, Session: id, Data: protocol.StringPtr(data)}
}

func disconnect(id protocol.SessionID) protocol.Inbound {
	return protocol.Inbound{Command: protocol.CommandDisconnect, Session: id}
}

func newDispatcher(t *testing.T, h Handler, policy session.DuplicatePolicy) (*Dispatcher, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry(policy)
	return New("dispatch-test", reg, h, nopOutbound{}), reg
}

func TestDispatchLifecycleOrdering(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	d, reg := newDispatcher(t, rec, session.DuplicateOverwrite)

	steps := []struct {
		env  protocol.Inbound
		want Outcome
	}{
		{connect("1"), Delivered},
		{message("1", "a"), Delivered},
		{message("1", "b"), Delivered},
		{disconnect("1"), Delivered},
		{message("1", "late"), DroppedUnknownSession},
		{disconnect("1"), DroppedUnknownSession},
	}
	for i, step := range steps {
		if got := d.Dispatch(step.env); got != step.want {
			t.Fatalf("step %d: got %s want %s", i, got, step.want)
		}
	}

	want := []string{"connect:1", "message:1:a", "message:1:b", "disconnect:1"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events=%q want=%q", rec.events, want)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestDispatchUnknownSessionNeverReachesHandler(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	d, reg := newDispatcher(t, rec, session.DuplicateOverwrite)

	if got := d.Dispatch(message("99", "x")); got != DroppedUnknownSession {
		t.Fatalf("message: got %s", got)
	}
	if got := d.Dispatch(disconnect("99")); got != DroppedUnknownSession {
		t.Fatalf("disconnect: got %s", got)
	}
	if len(rec.events) != 0 || reg.Len() != 0 {
		t.Fatalf("unexpected side effects: events=%q len=%d", rec.events, reg.Len())
	}
}

func TestDispatchUnknownSessionLogsError(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = prev }()

	d, _ := newDispatcher(t, &recorder{}, session.DuplicateOverwrite)
	d.Dispatch(message("42", "x"))

	out := buf.String()
	if !strings.Contains(out, protocol.ErrUnknownSession.Error()) || !strings.Contains(out, `"session":"42"`) {
		t.Fatalf("drop log missing unknown session error: %s", out)
	}
}

func TestDispatchMessageWithoutDataDeliversEmpty(t *testing.T) {
	testlog.Start(t)
	var got *string
	d, _ := newDispatcher(t, HandlerFuncs{
		Message: func(_ Outbound, _ *session.Session, data string) error {
			got = &data
			return nil
		},
	}, session.DuplicateOverwrite)

	d.Dispatch(connect("1"))
	d.Dispatch(protocol.Inbound{Command: protocol.CommandMessage, Session: "1"})
	if got == nil || *got != "" {
		t.Fatalf("expected empty payload delivery, got %v", got)
	}
}

func TestDispatchCallbackErrorKeepsState(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{fail: map[string]error{"connect": errors.New("app refused")}}
	d, reg := newDispatcher(t, rec, session.DuplicateOverwrite)

	if got := d.Dispatch(connect("1")); got != CallbackFailed {
		t.Fatalf("expected CallbackFailed, got %s", got)
	}
	if _, ok := reg.Lookup("1"); !ok {
		t.Fatalf("session must stay registered after OnConnect failure")
	}
	if got := d.Dispatch(message("1", "still here")); got != Delivered {
		t.Fatalf("expected follow-up delivery, got %s", got)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{panics: map[string]bool{"message": true, "disconnect": true}}
	d, reg := newDispatcher(t, rec, session.DuplicateOverwrite)

	d.Dispatch(connect("1"))
	if got := d.Dispatch(message("1", "x")); got != CallbackFailed {
		t.Fatalf("expected CallbackFailed on panic, got %s", got)
	}
	if got := d.Dispatch(disconnect("1")); got != CallbackFailed {
		t.Fatalf("expected CallbackFailed on panic, got %s", got)
	}
	if reg.Len() != 0 {
		t.Fatalf("disconnect must remove the session even when OnDisconnect panics")
	}
	if got := d.Dispatch(connect("2")); got != Delivered {
		t.Fatalf("dispatch must continue after panics, got %s", got)
	}
}

func TestSafeCallWrapsPanic(t *testing.T) {
	stack, err := safeCall(func() error { panic(fmt.Sprintf("bad %d", 1)) })
	if !errors.Is(err, ErrCallbackPanic) || len(stack) == 0 {
		t.Fatalf("expected ErrCallbackPanic with stack, got err=%v stack=%d", err, len(stack))
	}
	stack, err = safeCall(func() error { return nil })
	if err != nil || stack != nil {
		t.Fatalf("unexpected result for clean call: err=%v", err)
	}
}

func TestDispatchDuplicatePolicies(t *testing.T) {
	testlog.Start(t)

	rec := &recorder{}
	d, reg := newDispatcher(t, rec, session.DuplicateReject)
	d.Dispatch(connect("1"))
	if got := d.Dispatch(connect("1")); got != DroppedDuplicate {
		t.Fatalf("reject: got %s", got)
	}
	if !reflect.DeepEqual(rec.events, []string{"connect:1"}) || reg.Len() != 1 {
		t.Fatalf("reject: unexpected events %q", rec.events)
	}

	rec = &recorder{}
	d, reg = newDispatcher(t, rec, session.DuplicateOverwrite)
	d.Dispatch(connect("1"))
	first, _ := reg.Lookup("1")
	if got := d.Dispatch(connect("1")); got != Delivered {
		t.Fatalf("overwrite: got %s", got)
	}
	second, _ := reg.Lookup("1")
	if first == second {
		t.Fatalf("overwrite must install a fresh session")
	}
	if !reflect.DeepEqual(rec.events, []string{"connect:1", "connect:1"}) {
		t.Fatalf("overwrite: unexpected events %q", rec.events)
	}
}

func TestNopHandler(t *testing.T) {
	testlog.Start(t)
	d, _ := newDispatcher(t, Nop(), session.DuplicateOverwrite)
	for _, env := range []protocol.Inbound{connect("1"), message("1", "x"), disconnect("1")} {
		if got := d.Dispatch(env); got != Delivered {
			t.Fatalf("%s: got %s", env.Command, got)
		}
	}
}
