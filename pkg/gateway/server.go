package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/harun/ideascout/internal/observability"
	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/research"
)

// Researcher answers research queries
type Researcher interface {
	Research(ctx context.Context, query string, opts ...research.RunOption) (*research.Result, error)
}

// CheckpointReader reads checkpoint history for inspection
type CheckpointReader interface {
	History(ctx context.Context, sessionID string) ([]checkpoint.Checkpoint, error)
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	AllowOrigins []string

	// Per client IP; zero disables the check
	RequestsPerMinute int
	MaxConcurrent     int
	SweepInterval     time.Duration

	Researcher  Researcher
	Checkpoints CheckpointReader
	Logger      zerolog.Logger
}

// Server is the HTTP and websocket front of the research orchestrator
type Server struct {
	addr        string
	echo        *echo.Echo
	upgrader    websocket.Upgrader
	researcher  Researcher
	checkpoints CheckpointReader
	limiters    *limiterRegistry
	logger      zerolog.Logger

	listener       net.Listener
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	sweepInterval  time.Duration
	sweepCancel    context.CancelFunc
	sweepWG        sync.WaitGroup
}

// NewServer creates a server with all routes registered
func NewServer(cfg Config) (*Server, error) {
	observability.EnsureRegistered()

	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Researcher == nil {
		return nil, fmt.Errorf("researcher is required")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint reader is required")
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	s := &Server{
		addr:          net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		researcher:    cfg.Researcher,
		checkpoints:   cfg.Checkpoints,
		limiters:      newLimiterRegistry(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		logger:        cfg.Logger,
		sweepInterval: cfg.SweepInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowOrigins),
		},
	}

	s.echo = s.newEcho(cfg.AllowOrigins)
	return s, nil
}

func (s *Server) newEcho(allowOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: newRequestID,
	}))
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(observability.MetricsHandler()))
	e.GET("/sessions/:id/checkpoints", s.handleCheckpoints)

	e.POST("/research", s.handleResearch, s.rateLimit, s.trackInFlight)
	e.GET("/research/stream", s.handleStream, s.rateLimit, s.trackInFlight)

	return e
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.echo.Listener = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.startSweeper()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight research until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")
	s.stopSweeper()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if err := s.echo.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) startSweeper() {
	if !s.limiters.enabled() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.sweepCancel = cancel
	s.sweepWG.Add(1)

	go func() {
		defer s.sweepWG.Done()

		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.limiters.sweep(); n > 0 {
					s.logger.Debug().Int("removed", n).Msg("Swept idle rate limiters")
				}
			}
		}
	}()
}

func (s *Server) stopSweeper() {
	if s.sweepCancel != nil {
		s.sweepCancel()
		s.sweepCancel = nil
	}
	s.sweepWG.Wait()
}

func originChecker(allowOrigins []string) func(r *http.Request) bool {
	if lo.Contains(allowOrigins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowOrigins, origin)
	}
}
