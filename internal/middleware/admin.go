package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAdminKey = "X-Admin-Key"
	AdminUsername  = "admin"
)

// AdminMiddleware guards the admin API with a shared key. Authenticated
// requests carry AdminUsername under gin.AuthUserKey.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			abortWith(c, apperrors.New(apperrors.ErrAuthFailed, "admin key not configured", nil))
			return
		}
		key := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Auth.AdminKey)) != 1 {
			abortWith(c, apperrors.New(apperrors.ErrAuthFailed, "invalid admin key", nil))
			return
		}
		c.Set(gin.AuthUserKey, AdminUsername)
		c.Next()
	}
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err)
}
