package gateway

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/ideascout/internal/tracing"
)

func newRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return tracing.NewTraceID()
	}
	return id
}

// requestContext carries the request id into the tracing context
func requestContext(c echo.Context) {
	id := c.Response().Header().Get(echo.HeaderXRequestID)
	if id == "" {
		return
	}
	req := c.Request()
	c.SetRequest(req.WithContext(tracing.WithRequestID(req.Context(), id)))
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		BeforeNextFunc: func(c echo.Context) {
			requestContext(c)
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = s.logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("HTTP request")
			return nil
		},
	})
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiters.enabled() {
			return next(c)
		}

		limiter := s.limiters.get(c.RealIP())
		ok, reason := limiter.Acquire()
		if !ok {
			return echo.NewHTTPError(http.StatusTooManyRequests, reason)
		}
		defer limiter.Release()

		return next(c)
	}
}

func (s *Server) trackInFlight(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Add must not race the Wait in Shutdown
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		return next(c)
	}
}
