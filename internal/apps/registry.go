package apps

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/iorelay/internal/apps/chat"
	"github.com/danmuck/iorelay/internal/apps/echo"
	"github.com/danmuck/iorelay/internal/dispatch"
)

var (
	ErrAppExists   = errors.New("apps: application already registered")
	ErrAppNotFound = errors.New("apps: application not found")
)

// Factory builds a fresh handler for one relay.
type Factory func() dispatch.Handler

// Registry maps application names to handler factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default has the bundled chat and echo applications.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(chat.Name, func() dispatch.Handler { return chat.New() })
	_ = r.Register(echo.Name, func() dispatch.Handler { return echo.New() })
	return r
}

func (r *Registry) Register(name string, f Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || f == nil {
		return fmt.Errorf("apps: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrAppExists, name)
	}
	r.factories[name] = f
	return nil
}

// New builds the handler registered under name.
func (r *Registry) New(name string) (dispatch.Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrAppNotFound, name, strings.Join(r.Names(), ", "))
	}
	return f(), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
