package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ledgergate/ledgergate/internal/config"
)

// Pipeline returns the global pre-routing stages in their load-bearing order:
// error mapping wraps everything, protective headers are attached before any
// stage can reject, the cross-origin check runs before the rate limiter so a
// denied origin never consumes rate budget, and rate limiting is last.
// Auth and audit are registered per route group, after this chain.
func Pipeline(cfg *config.Config, store RateLimitStore) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		ErrorHandler(),
		Headers(),
		CORS(cfg.CORS),
		Metrics(),
		RateLimit(store),
	}
}
