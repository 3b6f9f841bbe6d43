package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/iorelay/internal/protocol"
)

var ErrDuplicateSession = protocol.ErrDuplicateSession

// DuplicatePolicy decides what a connect for an already-live id does.
type DuplicatePolicy string

const (
	// DuplicateOverwrite replaces the live session; its attributes are lost.
	DuplicateOverwrite DuplicatePolicy = "overwrite"
	// DuplicateReject keeps the live session and refuses the new connect.
	DuplicateReject DuplicatePolicy = "reject"
)

func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DuplicateOverwrite:
		return DuplicateOverwrite, nil
	case DuplicateReject:
		return DuplicateReject, nil
	default:
		return "", fmt.Errorf("session: unknown duplicate policy %q", raw)
	}
}

// Registry maps live session ids to sessions.
type Registry struct {
	mu     sync.RWMutex
	items  map[protocol.SessionID]*Session
	policy DuplicatePolicy
	now    func() time.Time
}

func NewRegistry(policy DuplicatePolicy) *Registry {
	if policy == "" {
		policy = DuplicateOverwrite
	}
	return &Registry{
		items:  make(map[protocol.SessionID]*Session),
		policy: policy,
		now:    time.Now,
	}
}

func (r *Registry) Policy() DuplicatePolicy {
	return r.policy
}

// Create registers a new session. Under DuplicateOverwrite the replaced live
// session, if any, is returned as the second value.
func (r *Registry) Create(id protocol.SessionID, address string, port int) (*Session, *Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, live := r.items[id]
	if live && r.policy == DuplicateReject {
		return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	s := newSession(id, address, port, r.now())
	r.items[id] = s
	if !live {
		prev = nil
	}
	return s, prev, nil
}

func (r *Registry) Lookup(id protocol.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	return s, ok
}

// Remove deletes and returns the live session, or false if absent.
func (r *Registry) Remove(id protocol.SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, false
	}
	delete(r.items, id)
	return s, true
}

// All returns a snapshot ordered by id. Later registry changes do not affect it.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
