package gateway

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/research"
)

// ResearchRequest is the body of POST /research and the first websocket frame
type ResearchRequest struct {
	Query   string `json:"query"`
	Profile string `json:"profile,omitempty"`
}

// ResearchResponse is the body of a successful POST /research
type ResearchResponse struct {
	Result    any    `json:"result"`
	SessionID string `json:"session_id"`
	Attempts  int    `json:"attempts"`
	Profile   string `json:"profile"`
}

// CheckpointsResponse is the body of GET /sessions/:id/checkpoints
type CheckpointsResponse struct {
	SessionID   string                  `json:"session_id"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
}

func newResearchResponse(res *research.Result) ResearchResponse {
	return ResearchResponse{
		Result:    res.Output(),
		SessionID: res.SessionID,
		Attempts:  res.Attempts,
		Profile:   res.Profile,
	}
}

// options validates the request and resolves its profile
func (req ResearchRequest) options() ([]research.RunOption, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, research.ErrEmptyQuery
	}
	if req.Profile == "" {
		return nil, nil
	}
	profile, err := research.ProfileByName(req.Profile)
	if err != nil {
		return nil, err
	}
	return []research.RunOption{research.WithProfile(profile)}, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResearch(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	opts, err := req.options()
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("profile", req.Profile).Msg("Gateway received research request")

	res, err := s.researcher.Research(ctx, req.Query, opts...)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newResearchResponse(res))
}

func (s *Server) handleCheckpoints(c echo.Context) error {
	sessionID := c.Param("id")
	if err := checkpoint.ValidateSessionID(sessionID); err != nil {
		return err
	}

	history, err := s.checkpoints.History(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, CheckpointsResponse{SessionID: sessionID, Checkpoints: history})
}
