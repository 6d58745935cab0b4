package httpserver

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/longrec/internal/catalog"
	"github.com/tphakala/longrec/internal/diskspace"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/recorder"
)

// StartRequest is the body of POST /api/v1/start.
type StartRequest struct {
	// Path is relative to the configured output directory. Empty picks a
	// timestamped name.
	Path    string `json:"path"`
	Discard bool   `json:"discard"`
	// MaxDuration uses Go duration syntax ("90m"). Empty falls back to the
	// configured maximum.
	MaxDuration string `json:"max_duration"`
}

// LiveResponse is the most recent captured block.
type LiveResponse struct {
	Captured time.Time `json:"captured"`
	Frames   int       `json:"frames"`
	Channels int       `json:"channels"`
	Status   string    `json:"status"`
	Peak     int       `json:"peak"`
	Samples  []int16   `json:"samples"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports liveness and the space left for recordings.
type HealthResponse struct {
	Status string          `json:"status"`
	Disk   *diskspace.Info `json:"disk,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if info, err := diskspace.Usage(s.settings.Recorder.OutputDir); err == nil {
		resp.Disk = &info
	} else {
		s.log.Debug("disk usage unavailable", logger.Error(err))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.rec.Status())
}

func (s *Server) metadata(c echo.Context) error {
	return c.JSON(http.StatusOK, s.rec.Metadata())
}

func (s *Server) start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	maxDuration := s.settings.Recorder.MaxDuration
	if req.MaxDuration != "" {
		d, err := time.ParseDuration(req.MaxDuration)
		if err != nil || d < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid max_duration"})
		}
		maxDuration = d
	}

	var path string
	if !req.Discard {
		if req.Path != "" && !filepath.IsLocal(req.Path) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "path must stay inside the output directory"})
		}
		path = s.settings.Recorder.TargetPath(req.Path, time.Now())
	}

	if s.rec.IsRecording() {
		return c.JSON(http.StatusConflict, errorResponse{Error: "already recording"})
	}
	if err := s.rec.Start(path, maxDuration); err != nil {
		return s.recorderError(c, err)
	}
	return c.JSON(http.StatusOK, s.rec.Status())
}

func (s *Server) stop(c echo.Context) error {
	if !s.rec.IsRecording() {
		return c.JSON(http.StatusOK, s.rec.Status())
	}
	id := s.rec.Status().SessionID
	if err := s.rec.Stop(); err != nil {
		return s.recorderError(c, err)
	}

	// counters come from the stop summary so the final flush is included
	final := s.rec.Status()
	if ev, ok := s.rec.LastStop(); ok && ev.SessionID == id {
		final.SessionID = ev.SessionID
		final.Path = ev.Path
		final.BlocksCaptured = ev.BlocksCaptured
		final.BlocksWritten = ev.BlocksWritten
		final.BlocksSkipped = ev.BlocksSkipped
		final.Flushes = ev.Flushes
	}
	return c.JSON(http.StatusOK, final)
}

func (s *Server) live(c echo.Context) error {
	b := s.rec.LastBlock()
	if b == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, LiveResponse{
		Captured: b.Captured,
		Frames:   b.Frames,
		Channels: b.Channels,
		Status:   b.Status.String(),
		Peak:     peak(b.Samples),
		Samples:  b.Samples,
	})
}

func (s *Server) listSessions(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
		}
		limit = n
	}
	sessions, err := s.catalog.Sessions(limit)
	if err != nil {
		s.log.Error("failed to list sessions", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "catalog unavailable"})
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) getSession(c echo.Context) error {
	session, err := s.catalog.Session(c.Param("id"))
	if err != nil {
		if catalog.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
		}
		s.log.Error("failed to load session", logger.String("session_id", c.Param("id")), logger.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "catalog unavailable"})
	}
	return c.JSON(http.StatusOK, session)
}

// recorderError maps recorder failures onto HTTP status codes.
func (s *Server) recorderError(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, recorder.ErrAlreadyExists):
		code = http.StatusConflict
	case errors.Is(err, recorder.ErrDevice):
		code = http.StatusServiceUnavailable
	case errors.IsCategory(err, errors.CategoryFormat),
		errors.IsCategory(err, errors.CategoryConfiguration),
		errors.IsCategory(err, errors.CategoryValidation):
		code = http.StatusBadRequest
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("recorder request failed", logger.Error(err))
	}
	return c.JSON(code, errorResponse{Error: err.Error()})
}

func peak(samples []int16) int {
	m := 0
	for _, v := range samples {
		a := int(v)
		if a < 0 {
			a = -a
		}
		m = max(m, a)
	}
	return m
}
