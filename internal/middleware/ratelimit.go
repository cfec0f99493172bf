package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qikhub/backend/pkg/response"
)

// AllowFunc asks the rate-limit backend whether a request for key may proceed.
type AllowFunc func(c *gin.Context, key string) (bool, error)

// RateLimitByParam returns a middleware limiting requests per URL parameter value
// (e.g. one bucket per device on the ping route). On limiter failure the request
// is allowed through: throttling is protection, not a correctness gate.
func RateLimitByParam(allow AllowFunc, param, prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := prefix + ":" + c.Param(param)
		ok, err := allow(c, key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}
		if !ok {
			c.JSON(http.StatusTooManyRequests, response.Body{Success: false, Error: "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
