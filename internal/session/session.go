package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/iorelay/internal/protocol"
)

// Session is one logical client connection, live from connect to disconnect.
type Session struct {
	ID          protocol.SessionID
	Address     string
	Port        int
	ConnectedAt time.Time

	mu    sync.RWMutex
	attrs map[string]any
}

func newSession(id protocol.SessionID, address string, port int, now time.Time) *Session {
	return &Session{
		ID:          id,
		Address:     address,
		Port:        port,
		ConnectedAt: now,
		attrs:       make(map[string]any),
	}
}

// Set attaches application state, e.g. a display name.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

// GetString returns the attribute as a string, "" when absent or not a string.
func (s *Session) GetString(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

// Attrs returns a copy of the attached attributes.
func (s *Session) Attrs() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// String returns "client-ADDRESS:PORT".
func (s *Session) String() string {
	return fmt.Sprintf("client-%s:%d", s.Address, s.Port)
}
