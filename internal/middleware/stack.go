package middleware

import (
	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/gin-gonic/gin"
)

// Global returns the router-wide middleware in mounting order. The request-log
// hook is outermost so it observes the status written by Recovery (panics) and
// by ErrorHandler.
func Global(hooks *RequestLogHooks, cfg config.RequestLogConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		hooks.Middleware(),
		gin.Recovery(),
		ErrorHandler(cfg),
		MetricsMiddleware(),
	}
}
