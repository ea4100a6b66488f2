package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/application/apikey"
	"github.com/vizflow/vizflow/internal/application/ratelimit"
	"github.com/vizflow/vizflow/pkg/models"
)

const ContextKeyAPIKey = "api_key"

// EmbedAuthMiddleware authenticates the embed endpoint's API key (header
// or query param) and enforces its rate limit before the handler runs.
// Grounded on the teacher's rest/middleware_ratelimit_redis.go for the
// allow/deny plus Retry-After shape, adapted to key off an API key instead
// of a user/IP.
func EmbedAuthMiddleware(keys *apikey.Service, limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := extractAPIKey(c)
		if rawKey == "" {
			respondAPIError(c, NewAPIError("UNAUTHORIZED", "api key required", http.StatusUnauthorized))
			c.Abort()
			return
		}

		key, err := keys.Authenticate(c.Request.Context(), rawKey)
		if err != nil {
			respondAPIError(c, err)
			c.Abort()
			return
		}

		result := limiter.Allow(c.Request.Context(), key.KeyHash, key.RateLimit)
		if !result.Allowed {
			c.Header("Retry-After", result.RetryAfter.Truncate(1).String())
			respondAPIError(c, ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Set(ContextKeyAPIKey, key)
		c.Next()
	}
}

// GetAPIKey extracts the authenticated API key set by EmbedAuthMiddleware.
func GetAPIKey(c *gin.Context) (models.APIKey, bool) {
	v, ok := c.Get(ContextKeyAPIKey)
	if !ok {
		return models.APIKey{}, false
	}
	return v.(models.APIKey), true
}

func extractAPIKey(c *gin.Context) string {
	if h := c.GetHeader("X-API-Key"); h != "" {
		return h
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("key")
}
