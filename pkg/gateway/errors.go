package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/research"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Detail string `json:"detail"`
}

const genericDetail = "Failed to process request"

// statusFor maps a research failure to an HTTP status and caller-facing detail
func statusFor(err error) (int, string) {
	var exhausted *research.RetryExhaustedError
	var decode *research.PayloadDecodeError

	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, research.ErrUnknownProfile):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &decode):
		return http.StatusBadGateway, decode.Error()
	case errors.As(err, &exhausted):
		return http.StatusInternalServerError, exhausted.Reason()
	case errors.Is(err, research.ErrLoopLimit):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, checkpoint.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, checkpoint.ErrInvalidSessionID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, genericDetail
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, detail := http.StatusInternalServerError, genericDetail
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			detail = fmt.Sprint(he.Message)
		}
	} else {
		code, detail = statusFor(err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, ErrorResponse{Detail: detail})
	}
	if writeErr != nil {
		s.logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
