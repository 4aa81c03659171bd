package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/code-100-precent/calltrack/internal/analytics"
	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// ListCalls GET /calls
func (h *Handlers) ListCalls(c *gin.Context) {
	loc := h.calls.Location()
	from, err := parseTimeParam(c.Query("from"), loc, false)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	to, err := parseTimeParam(c.Query("to"), loc, true)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			response.Fail(c, "invalid limit", nil)
			return
		}
	}

	calls, err := h.calls.ListCalls(c.Request.Context(), analytics.CallFilter{
		TrackedNumberID: c.Query("tracked_number_id"),
		Status:          c.Query("status"),
		AgentID:         c.Query("agent_id"),
		Q:               strings.TrimSpace(c.Query("q")),
		From:            from,
		To:              to,
		Limit:           limit,
	})
	if err != nil {
		logger.Error("list calls", zap.Error(err))
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "success", calls)
}

// GetCall GET /calls/:id
func (h *Handlers) GetCall(c *gin.Context) {
	detail, err := h.calls.GetCall(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrCallNotFound) {
		response.AbortWithStatusJSON(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logger.Error("get call", zap.String("id", c.Param("id")), zap.Error(err))
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "success", detail)
}

// GetCallMetrics GET /calls/metrics?from=&to=&tracked_number_id=&agent_id=&tz=
func (h *Handlers) GetCallMetrics(c *gin.Context) {
	loc := h.calls.Location()
	if tz := c.Query("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			response.Fail(c, "invalid tz", nil)
			return
		}
		loc = l
	}
	from, err := parseTimeParam(c.Query("from"), loc, false)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	to, err := parseTimeParam(c.Query("to"), loc, true)
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}

	w, err := h.calls.ResolveWindow(analytics.Window{From: from, To: to})
	if err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	result, err := h.calls.GetMetrics(c.Request.Context(), w, analytics.Filter{
		TrackedNumberID: c.Query("tracked_number_id"),
		AgentID:         c.Query("agent_id"),
	}, loc)
	if err != nil {
		logger.Error("call metrics", zap.Error(err))
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "success", result)
}

// LiveCalls GET /calls/live, websocket feed of lifecycle events
func (h *Handlers) LiveCalls(c *gin.Context) {
	if err := h.wsHub.ServeWS(c.Writer, c.Request); err != nil {
		logger.Warn("live feed upgrade failed", zap.Error(err))
	}
}

// parseTimeParam accepts RFC3339 or a bare date in loc. A bare date used as an
// upper bound covers the whole day.
func parseTimeParam(raw string, loc *time.Location, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	if upper {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return d, nil
}
