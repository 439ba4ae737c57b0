package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
)

const HeaderAdminKey = "X-Admin-Key"

// Admin guards the audit inspection endpoints with a shared key. An install
// without a configured key has no admin surface at all.
func Admin(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Admin.Key == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, &apperrors.AppError{
				Type:       apperrors.ErrUnauthenticated,
				Message:    "admin key not configured",
				HTTPStatus: http.StatusForbidden,
			})
			return
		}
		if c.GetHeader(HeaderAdminKey) != cfg.Admin.Key {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				apperrors.NewUnauthenticated("invalid admin key"))
			return
		}
		c.Next()
	}
}
