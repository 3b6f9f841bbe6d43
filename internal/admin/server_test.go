package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/iorelay/internal/apps/chat"
	"github.com/danmuck/iorelay/internal/relay"
	"github.com/danmuck/iorelay/internal/testutil/bridgetest"
	"github.com/danmuck/iorelay/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode body: %v", path, err)
		}
	}
	return rec.Code, body
}

func TestHealthAndReadyBeforeAttach(t *testing.T) {
	testlog.Start(t)
	s := New("relay-admin", "chat", Options{})

	code, body := get(t, s, "/health")
	if code != http.StatusOK || body["status"] != "ok" || body["app"] != "chat" {
		t.Fatalf("unexpected health: %d %v", code, body)
	}
	code, body = get(t, s, "/ready")
	if code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("expected not ready: %d %v", code, body)
	}
	if code, _ := get(t, s, "/sessions"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for sessions, got %d", code)
	}
}

func TestSessionsReflectRelay(t *testing.T) {
	testlog.Start(t)
	bridge, conn := bridgetest.New(t)
	r := relay.New(conn, chat.New(), relay.WithID("relay-admin"))
	go func() { _ = r.Run(context.Background()) }()
	defer r.Close()

	s := New("relay-admin", "chat", Options{CorsOrigins: []string{"http://localhost:3000"}})
	s.Attach(r)

	bridge.Connect("1", "10.0.0.1", 4000)
	bridge.Connect("2", "10.0.0.2", 4001)
	bridge.Message("1", "setname:bob")
	bridge.Message("1", "echo:sync")
	bridge.Expect()

	code, body := get(t, s, "/ready")
	if code != http.StatusOK || body["ready"] != true || body["sessions"] != float64(2) {
		t.Fatalf("unexpected ready: %d %v", code, body)
	}

	code, body = get(t, s, "/sessions")
	if code != http.StatusOK || body["count"] != float64(2) || body["relay"] != "relay-admin" {
		t.Fatalf("unexpected sessions: %d %v", code, body)
	}
	list := body["sessions"].([]any)
	first := list[0].(map[string]any)
	if first["id"] != "1" || first["client"] != "client-10.0.0.1:4000" {
		t.Fatalf("unexpected first session: %v", first)
	}
	attrs := first["attrs"].(map[string]any)
	if attrs[chat.NameKey] != "bob" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}

	if code, body := get(t, s, "/sessions/2"); code != http.StatusOK || body["port"] != float64(4001) {
		t.Fatalf("unexpected session 2: %d %v", code, body)
	}
	if code, _ := get(t, s, "/sessions/9"); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}

	_ = r.Close()
	<-r.Done()
	if code, _ := get(t, s, "/ready"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected not ready after relay stop, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New("relay-metrics", "echo", Options{})
	get(t, s, "/health")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "iorelay_http_requests_total") {
		t.Fatalf("metrics missing http counter: %d", rec.Code)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New("relay-serve", "echo", Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestSessionsRequireToken(t *testing.T) {
	testlog.Start(t)
	_, conn := bridgetest.New(t)
	r := relay.New(conn, chat.New())
	go func() { _ = r.Run(context.Background()) }()
	defer r.Close()

	s := New("relay-token", "chat", Options{Token: "s3cret"})
	s.Attach(r)

	if code, _ := get(t, s, "/sessions"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if code, _ := get(t, s, "/health"); code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", code)
	}
}
