package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/models"
	"github.com/brettboylen/linkedin-agent/pipeline"
)

const (
	defaultActivityLimit = 100
	defaultLogLimit      = 200
	maskPrefix           = "****"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func jsonError(c echo.Context, status int, err error) error {
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) startRun(c echo.Context) error {
	err := s.runner.Start(c.Request().Context())
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, s.runner.Status())
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		return jsonError(c, http.StatusConflict, err)
	case pipeline.IsConfigError(err):
		return jsonError(c, http.StatusBadRequest, err)
	default:
		s.log.WithError(err).Error("Failed to start run")
		return jsonError(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) stopRun(c echo.Context) error {
	if !s.runner.Stop() {
		return c.JSON(http.StatusOK, messageResponse{Message: "Agent is not running"})
	}
	return c.JSON(http.StatusAccepted, s.runner.Status())
}

func (s *Server) runStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) getSettings(c echo.Context) error {
	settings, err := pipeline.LoadSettings(c.Request().Context(), s.store, s.cfg.Defaults)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, settings.Masked())
}

// putSettings replaces the stored settings. A masked key, as returned by
// GET, leaves the stored key in place.
func (s *Server) putSettings(c echo.Context) error {
	var incoming models.Settings
	if err := c.Bind(&incoming); err != nil {
		return jsonError(c, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
	}

	ctx := c.Request().Context()
	current, err := pipeline.LoadSettings(ctx, s.store, s.cfg.Defaults)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	if strings.HasPrefix(incoming.GeminiAPIKey, maskPrefix) {
		incoming.GeminiAPIKey = current.GeminiAPIKey
	}
	if strings.HasPrefix(incoming.MistralAPIKey, maskPrefix) {
		incoming.MistralAPIKey = current.MistralAPIKey
	}

	if err := pipeline.SaveSettings(ctx, s.store, incoming); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	saved, err := pipeline.LoadSettings(ctx, s.store, s.cfg.Defaults)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	s.log.WithField("targets", len(saved.TargetProfiles)).Info("Settings updated")
	return c.JSON(http.StatusOK, saved.Masked())
}

func (s *Server) getStats(c echo.Context) error {
	counters, err := s.counters.Snapshot(c.Request().Context())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, counters)
}

func (s *Server) resetStats(c echo.Context) error {
	if err := s.counters.Reset(c.Request().Context()); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listActivities(c echo.Context) error {
	limit, err := queryLimit(c, defaultActivityLimit)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}

	activities, err := s.activities.Recent(c.Request().Context(), limit)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, activities)
}

func (s *Server) activitySummary(c echo.Context) error {
	summary, err := s.activities.Summary(c.Request().Context())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) clearActivities(c echo.Context) error {
	if err := s.activities.Clear(c.Request().Context()); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listLogs(c echo.Context) error {
	limit, err := queryLimit(c, defaultLogLimit)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}

	entries, err := s.oplog.Recent(c.Request().Context(), limit)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// exportLogs downloads the whole operational log as a JSON file
func (s *Server) exportLogs(c echo.Context) error {
	entries, err := s.oplog.Recent(c.Request().Context(), 0)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	filename := fmt.Sprintf("linkedin-agent-logs-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.JSONPretty(http.StatusOK, entries, "  ")
}

func (s *Server) clearLogs(c echo.Context) error {
	if err := s.oplog.Clear(c.Request().Context()); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) clearCommentedPosts(c echo.Context) error {
	if err := s.store.Delete(c.Request().Context(), db.KeyCommentedPostIDs); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	s.log.Info("Commented post registry cleared")
	return c.NoContent(http.StatusNoContent)
}

// queryLimit reads ?limit=, where 0 means everything
func queryLimit(c echo.Context, fallback int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}
