package middleware

import (
	"net/http"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/ratelimit"
	"github.com/gin-gonic/gin"
)

func NewHTTPRateLimitPerIP(limiter *ratelimit.PerIP) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
