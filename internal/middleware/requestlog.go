package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/filter"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"github.com/GoPolymarket/reqlog/internal/pkg/logger"
	"github.com/GoPolymarket/reqlog/internal/pkg/metrics"
	"github.com/GoPolymarket/reqlog/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextDraftID holds the id of the draft created for the current request.
	ContextDraftID   = "requestlog_draft_id"
	contextStartedAt = "requestlog_started_at"

	HeaderRequestedWith = "X-Requested-With"
)

// RequestLogHooks records admitted requests in two phases: a draft when the
// handler is about to run, and the finished record once the response is ready.
// The draft id travels in the gin context, so each response only ever
// completes its own draft.
type RequestLogHooks struct {
	recorder *service.RecorderService
	chain    *filter.Chain
	methods  *filter.MethodRule
	cfg      config.RequestLogConfig
	enabled  atomic.Bool
}

func NewRequestLogHooks(cfg config.RequestLogConfig, recorder *service.RecorderService) *RequestLogHooks {
	h := &RequestLogHooks{
		recorder: recorder,
		chain:    filter.New(cfg),
		methods:  filter.NewMethodRule(cfg.ValidMethodNames),
		cfg:      cfg,
	}
	h.enabled.Store(cfg.Enabled)
	return h
}

// Enabled reports whether new drafts are being created.
func (h *RequestLogHooks) Enabled() bool {
	return h.enabled.Load()
}

func (h *RequestLogHooks) SetEnabled(enabled bool) {
	h.enabled.Store(enabled)
}

// Middleware must be the outermost request-log handler so it observes the
// final status code.
func (h *RequestLogHooks) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextStartedAt, time.Now())
		c.Next()
		h.OnResponseReady(c)
	}
}

// ViewStart belongs right before the handlers, after any auth middleware.
func (h *RequestLogHooks) ViewStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.OnViewStart(c); err != nil {
			logger.LogError(c.Request.Context(), err, "request logging skipped",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		}
		c.Next()
	}
}

// OnViewStart creates and persists a draft for an admitted request. Errors
// only mean this request will not be logged.
func (h *RequestLogHooks) OnViewStart(c *gin.Context) error {
	if !h.Enabled() {
		return nil
	}
	if c.GetString(ContextDraftID) != "" {
		return nil
	}
	if _, ok := c.Get(contextStartedAt); !ok {
		c.Set(contextStartedAt, time.Now())
	}

	if ok, rule := h.chain.Admit(h.requestContext(c)); !ok {
		metrics.FilterRejects.WithLabelValues("view", rule).Inc()
		return nil
	}

	body, err := readBody(c.Request)
	if err != nil {
		return apperrors.New(apperrors.ErrInvalidRequest, "failed to read request body", err)
	}

	draft, err := h.recorder.CreateDraft(persistContext(c), service.DraftInput{
		IP:     c.ClientIP(),
		Path:   c.Request.URL.Path,
		Method: c.Request.Method,
		Body:   body,
	})
	if err != nil {
		return err
	}
	c.Set(ContextDraftID, draft.ID)
	return nil
}

// OnResponseReady completes, discards or ignores this request's draft. It
// never touches the response.
func (h *RequestLogHooks) OnResponseReady(c *gin.Context) {
	if !h.methods.Allows(c.Request.Method) {
		return
	}

	ctx := persistContext(c)
	draftID := c.GetString(ContextDraftID)
	status := c.Writer.Status()

	if status < http.StatusBadRequest && h.cfg.OnlyErrors {
		if draftID != "" {
			if err := h.recorder.Discard(ctx, draftID); err != nil {
				logger.LogError(ctx, err, "failed to discard request record", "draft_id", draftID)
			}
		}
		return
	}

	rc := h.requestContext(c)
	if ok, rule := h.chain.Admit(rc); !ok {
		metrics.FilterRejects.WithLabelValues("response", rule).Inc()
		return
	}
	if draftID == "" {
		return
	}

	_, err := h.recorder.Finalize(ctx, draftID, service.ResponseInfo{
		StatusCode:   status,
		ResponseTime: h.elapsed(c),
		Method:       c.Request.Method,
		Query:        c.Request.URL.RawQuery,
		Referer:      c.Request.Referer(),
		UserAgent:    rc.UserAgent,
		Language:     c.GetHeader("Accept-Language"),
		IP:           rc.RemoteIP,
		IsSecure:     isSecure(c.Request),
		IsAjax:       rc.Ajax,
		Username:     rc.Username,
	})
	switch {
	case err == nil:
	case apperrors.IsType(err, apperrors.ErrValidation):
		logger.Warn("bad request",
			"error", err.Error(),
			"status_code", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", rc.RemoteIP,
			"draft_id", draftID,
		)
	default:
		logger.LogError(ctx, err, "failed to finalize request record",
			"draft_id", draftID,
			"path", c.Request.URL.Path,
		)
	}
}

func (h *RequestLogHooks) requestContext(c *gin.Context) filter.RequestContext {
	return filter.RequestContext{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Ajax:      IsAjax(c.Request),
		RemoteIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Username:  h.username(c),
	}
}

func (h *RequestLogHooks) username(c *gin.Context) string {
	if user := c.GetString(gin.AuthUserKey); user != "" {
		return user
	}
	if h.cfg.UsernameHeader != "" {
		return strings.TrimSpace(c.GetHeader(h.cfg.UsernameHeader))
	}
	return ""
}

func (h *RequestLogHooks) elapsed(c *gin.Context) time.Duration {
	if v, ok := c.Get(contextStartedAt); ok {
		if start, ok := v.(time.Time); ok {
			return time.Since(start)
		}
	}
	return 0
}

func IsAjax(r *http.Request) bool {
	return r.Header.Get(HeaderRequestedWith) == "XMLHttpRequest"
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// readBody drains the body and puts an identical reader back for the handler.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// persistContext keeps store writes alive when the client goes away mid-request.
func persistContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
