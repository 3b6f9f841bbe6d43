package apps

import (
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/iorelay/internal/dispatch"
	"github.com/danmuck/iorelay/internal/testutil/testlog"
)

func TestDefaultRegistry(t *testing.T) {
	testlog.Start(t)
	r := Default()
	if got := r.Names(); !reflect.DeepEqual(got, []string{"chat", "echo"}) {
		t.Fatalf("unexpected names: %v", got)
	}
	for _, name := range []string{"chat", " ECHO "} {
		h, err := r.New(name)
		if err != nil || h == nil {
			t.Fatalf("New(%q): h=%v err=%v", name, h, err)
		}
	}
	if _, err := r.New("irc"); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("expected ErrAppNotFound, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	nop := func() dispatch.Handler { return dispatch.Nop() }
	if err := r.Register("nop", nop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("NOP", nop); !errors.Is(err, ErrAppExists) {
		t.Fatalf("expected ErrAppExists, got %v", err)
	}
	if err := r.Register("", nop); err == nil {
		t.Fatalf("expected error for blank name")
	}
}
