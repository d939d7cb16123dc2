package middleware

import (
	"errors"
	"log/slog"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"github.com/GoPolymarket/reqlog/internal/pkg/logger"
	"github.com/GoPolymarket/reqlog/internal/service"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last c.Error as an AppError body. The client IP in
// the log line follows the same policy as stored records.
func ErrorHandler(cfg config.RequestLogConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		level, msg := errorLogEntry(appErr)
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", service.RecordedIP(cfg, c.ClientIP()),
		}
		if level >= slog.LevelError {
			fields = append(fields, "error", appErr.Error())
		} else {
			fields = append(fields, "reason", appErr.Message)
		}
		logger.Get().Log(c.Request.Context(), level, msg, fields...)

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}

// errorLogEntry picks the level and message an AppError is logged with.
func errorLogEntry(appErr *apperrors.AppError) (slog.Level, string) {
	switch appErr.Type {
	case apperrors.ErrStore:
		return slog.LevelError, "request store unavailable"
	case apperrors.ErrValidation:
		return slog.LevelWarn, "request record failed validation"
	case apperrors.ErrInvalidEncoding:
		return slog.LevelWarn, "request body is not valid UTF-8"
	case apperrors.ErrAuthFailed, apperrors.ErrRateLimited:
		return slog.LevelWarn, "admin access denied"
	case apperrors.ErrInvalidRequest, apperrors.ErrNotFound:
		return slog.LevelInfo, "admin request rejected"
	}
	if appErr.HTTPStatus >= 500 {
		return slog.LevelError, "internal server error"
	}
	return slog.LevelWarn, appErr.Message
}
