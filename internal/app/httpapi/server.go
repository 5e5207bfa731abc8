// Package httpapi serves the marketplace views over HTTP and a websocket.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/marketplace/internal/app/system"
	"github.com/R3E-Network/marketplace/internal/middleware"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

var _ system.Service = (*Server)(nil)

// Options configures the HTTP surface.
type Options struct {
	ListenAddr     string
	AllowedOrigins []string
	// RateLimit caps requests per second per client. Zero disables it.
	RateLimit float64
	Burst     int
}

// Server is the HTTP view surface, managed as a system.Service.
type Server struct {
	opts    Options
	handler http.Handler
	hub     *liveHub
	limiter *middleware.RateLimiter
	log     *logger.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer builds the router and middleware chain. Nothing listens until
// Start.
func NewServer(deps Deps, opts Options) (*Server, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
		deps.Logger = log
	}
	hub := newLiveHub(opts.AllowedOrigins)
	h, err := newHandler(deps, hub)
	if err != nil {
		return nil, err
	}

	router := h.routes()
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware())

	var chain http.Handler = router
	var limiter *middleware.RateLimiter
	if opts.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(opts.RateLimit, opts.Burst, log)
		chain = limiter.Handler(chain)
	}
	if len(opts.AllowedOrigins) > 0 {
		chain = middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(chain)
	}
	chain = middleware.TracingMiddleware(chain)

	return &Server{
		opts:    opts,
		handler: chain,
		hub:     hub,
		limiter: limiter,
		log:     log,
	}, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Name() string { return "http" }

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr := s.opts.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.limiter != nil {
		s.limiter.StartCleanup(runCtx, time.Minute)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()

	s.srv = srv
	s.listener = l
	s.cancel = cancel
	s.done = done
	s.log.Infof("HTTP server listening on %s", l.Addr())
	return nil
}

// Addr reports the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes live connections and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel, done := s.srv, s.cancel, s.done
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.hub.closeAll()
	cancel()
	shutdownCtx, stop := context.WithTimeout(ctx, 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-done
	s.log.Info("HTTP server stopped")
	return nil
}
