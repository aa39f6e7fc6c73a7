package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/research"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadWait  = 30 * time.Second
)

// Stream frame types besides the research event types
const (
	FrameResult = "result"
	FrameError  = "error"
)

// StreamResult is the final frame of a successful stream
type StreamResult struct {
	Type string `json:"type"`
	ResearchResponse
}

// StreamError is the final frame of a failed stream
type StreamError struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// streamConn serializes writes; observer events and the final frame share one connection
type streamConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger zerolog.Logger
}

func (sc *streamConn) send(v any) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := sc.conn.WriteJSON(v); err != nil {
		sc.logger.Debug().Err(err).Msg("Failed to write stream frame")
	}
}

func (sc *streamConn) close(code int, text string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	_ = sc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
	_ = sc.conn.Close()
}

// handleStream runs one research request per connection, streaming its events
func (s *Server) handleStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	sc := &streamConn{conn: conn, logger: logger}
	defer sc.close(websocket.CloseNormalClosure, "")

	_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Debug().Err(err).Msg("Stream closed before request")
		return nil
	}
	_ = conn.SetReadDeadline(time.Time{})

	var req ResearchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.send(StreamError{Type: FrameError, Status: http.StatusBadRequest, Detail: "invalid request body"})
		return nil
	}

	opts, err := req.options()
	if err != nil {
		code, detail := statusFor(err)
		sc.send(StreamError{Type: FrameError, Status: code, Detail: detail})
		return nil
	}

	// A read error after the request means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	logger.Info().Str("profile", req.Profile).Msg("Gateway received research stream")

	opts = append(opts, research.WithObserver(research.ObserverFunc(func(e research.Event) {
		sc.send(e)
	})))

	res, err := s.researcher.Research(ctx, req.Query, opts...)
	if err != nil {
		code, detail := statusFor(err)
		sc.send(StreamError{Type: FrameError, Status: code, Detail: detail})
		return nil
	}

	sc.send(StreamResult{Type: FrameResult, ResearchResponse: newResearchResponse(res)})
	return nil
}
