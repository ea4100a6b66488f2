package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/vizflow/vizflow/internal/domain/livehub"
)

// ContextKeyTenantID is the gin context key RequireAuth/OptionalAuth set
// on success.
const ContextKeyTenantID = "tenant_id"

// AuthMiddleware authenticates REST requests against the same tenant JWT
// livehub.JWTAuth validates for WebSocket connections, so both transports
// share one token format (spec.md §4.5, §6). Grounded on the teacher's
// middleware_auth.go for the RequireAuth/OptionalAuth shape.
type AuthMiddleware struct {
	auth livehub.Authenticator
}

// NewAuthMiddleware constructs an AuthMiddleware.
func NewAuthMiddleware(auth livehub.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth rejects the request with 401 unless it carries a valid
// tenant token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := m.auth.Authenticate(c.Request)
		if err != nil {
			respondAPIError(c, NewAPIError("UNAUTHORIZED", "authentication required", 401))
			c.Abort()
			return
		}
		c.Set(ContextKeyTenantID, tenantID)
		c.Next()
	}
}

// GetTenantID extracts the authenticated tenant id from the gin context.
func GetTenantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyTenantID)
	if !ok {
		return "", false
	}
	return v.(string), true
}
