package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/iorelay/internal/auth"
	"github.com/danmuck/iorelay/internal/observability"
	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Version is reported by /health.
var Version = "0.1.0"

// Relay is the read-only view the admin server needs of a running relay.
type Relay interface {
	ID() string
	Sessions() []*session.Session
	Session(id protocol.SessionID) (*session.Session, bool)
	Done() <-chan struct{}
}

type SessionView struct {
	ID          string         `json:"id"`
	Client      string         `json:"client"`
	Address     string         `json:"address"`
	Port        int            `json:"port"`
	ConnectedAt time.Time      `json:"connected_at"`
	Attrs       map[string]any `json:"attrs,omitempty"`
}

func viewOf(s *session.Session) SessionView {
	return SessionView{
		ID:          s.ID.String(),
		Client:      s.String(),
		Address:     s.Address,
		Port:        s.Port,
		ConnectedAt: s.ConnectedAt,
		Attrs:       s.Attrs(),
	}
}

// Server is the introspection HTTP surface. It comes up before the bridge
// link does; /ready turns true once a relay is attached and running.
type Server struct {
	name    string
	app     string
	started time.Time
	router  *gin.Engine

	mu    sync.RWMutex
	relay Relay
}

// Options tune the admin server. A non-empty Token guards the session
// endpoints with a bearer token.
type Options struct {
	CorsOrigins []string
	Token       string
}

func New(name, app string, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, name))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:    name,
		app:     app,
		started: time.Now(),
		router:  r,
	}
	s.registerRoutes(opts.Token)
	return s
}

// Attach points the server at a relay. Passing nil detaches it.
func (s *Server) Attach(r Relay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relay = r
}

func (s *Server) current() (Relay, bool) {
	s.mu.RLock()
	r := s.relay
	s.mu.RUnlock()
	if r == nil {
		return nil, false
	}
	select {
	case <-r.Done():
		return r, false
	default:
		return r, true
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(token string) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"relay":   s.name,
			"app":     s.app,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		r, running := s.current()
		status := http.StatusOK
		if !running {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"ready":  running,
			"uptime": time.Since(s.started).String(),
			"relay":  s.name,
		}
		if r != nil {
			body["sessions"] = len(r.Sessions())
		}
		c.JSON(status, body)
	})

	sessions := s.router.Group("/sessions")
	if token != "" {
		sessions.Use(auth.Require(auth.StaticToken{Token: token}))
	}

	sessions.GET("", func(c *gin.Context) {
		r, _ := s.current()
		if r == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bridge not connected"})
			return
		}
		snap := r.Sessions()
		views := make([]SessionView, 0, len(snap))
		for _, sess := range snap {
			views = append(views, viewOf(sess))
		}
		c.JSON(http.StatusOK, gin.H{
			"relay":    r.ID(),
			"count":    len(views),
			"sessions": views,
		})
	})

	sessions.GET("/:id", func(c *gin.Context) {
		r, _ := s.current()
		if r == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bridge not connected"})
			return
		}
		sess, ok := r.Session(protocol.SessionID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		c.JSON(http.StatusOK, viewOf(sess))
	})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("admin http listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
