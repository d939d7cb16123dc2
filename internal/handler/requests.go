package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"github.com/GoPolymarket/reqlog/internal/service"
	"github.com/gin-gonic/gin"
)

// RecordingToggle switches draft creation on and off at runtime.
type RecordingToggle interface {
	Enabled() bool
	SetEnabled(enabled bool)
}

type RequestHandler struct {
	svc    *service.RecorderService
	toggle RecordingToggle
}

func NewRequestHandler(svc *service.RecorderService, toggle RecordingToggle) *RequestHandler {
	return &RequestHandler{svc: svc, toggle: toggle}
}

// Register mounts the admin routes on g.
func (h *RequestHandler) Register(g gin.IRoutes) {
	g.GET("/requests", h.List)
	g.DELETE("/requests", h.Purge)
	g.GET("/requests/recent", h.Recent)
	g.GET("/requests/latest-unfinished", h.LatestUnfinished)
	g.GET("/requests/:id", h.Get)
	g.GET("/stats", h.Stats)
	g.GET("/recording", h.GetRecording)
	g.PUT("/recording", h.PutRecording)
}

func (h *RequestHandler) List(c *gin.Context) {
	q, err := parseRequestQuery(c)
	if err != nil {
		c.Error(err)
		return
	}

	records, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *RequestHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *RequestHandler) Recent(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		c.Error(err)
		return
	}
	records, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *RequestHandler) LatestUnfinished(c *gin.Context) {
	rec, err := h.svc.MostRecentUnfinished(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if rec == nil {
		c.Error(apperrors.NewNotFound("no unfinished request record"))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Purge deletes records older than ?older_than= (a Go duration or a number of days).
func (h *RequestHandler) Purge(c *gin.Context) {
	raw := c.Query("older_than")
	if raw == "" {
		c.Error(apperrors.NewInvalidRequest("older_than is required"))
		return
	}
	olderThan, err := ParseRetention(raw)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	removed, err := h.svc.Purge(c.Request.Context(), olderThan)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Stats returns daily counters for ?day= (defaults to today, UTC).
func (h *RequestHandler) Stats(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		day = model.StatsDay(time.Now())
	}
	st, err := h.svc.DailyStats(c.Request.Context(), day)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type recordingState struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *RequestHandler) GetRecording(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.toggle.Enabled()})
}

func (h *RequestHandler) PutRecording(c *gin.Context) {
	var req recordingState
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.toggle.SetEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": h.toggle.Enabled()})
}

func parseRequestQuery(c *gin.Context) (model.RequestQuery, error) {
	var q model.RequestQuery
	limit, err := parseLimit(c)
	if err != nil {
		return q, err
	}
	q.Limit = limit

	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return q, apperrors.NewInvalidRequest(err.Error())
		}
		q.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return q, apperrors.NewInvalidRequest(err.Error())
		}
		q.To = &t
	}
	q.Method = strings.ToUpper(c.Query("method"))
	q.PathPrefix = c.Query("path")
	if raw := c.Query("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return q, apperrors.NewInvalidRequest("invalid status")
		}
		q.StatusCode = status
	}
	if raw := c.Query("finished"); raw != "" {
		finished, err := strconv.ParseBool(raw)
		if err != nil {
			return q, apperrors.NewInvalidRequest("invalid finished flag")
		}
		q.Finished = &finished
	}
	return q, nil
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, apperrors.NewInvalidRequest("invalid limit")
	}
	return limit, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}

// ParseRetention accepts a Go duration ("72h") or a whole number of days ("30").
func ParseRetention(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, err := strconv.Atoi(raw); err == nil {
		if days <= 0 {
			return 0, fmt.Errorf("retention must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	return d, nil
}
