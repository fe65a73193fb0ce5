package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware extracts the bearer token, verifies it, and injects the Actor
// into the request context. If no valid token is present the request
// proceeds without an actor; handlers decide whether that is acceptable.
//
// This design allows:
// - Public endpoints (no auth required)
// - Protected endpoints (RequireAuth / RequireRole)
// - Optional auth endpoints (use the actor if available)
func Middleware(parser *TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			slog.Debug("no authorization header provided")
			c.Next()
			return
		}

		actor, err := parser.ParseAuthorizationHeader(header)
		if err != nil {
			slog.Warn("failed to parse bearer token",
				"error", err,
				"path", c.Request.URL.Path,
			)
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireAuth aborts with 401 when the request carries no authenticated actor.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetActor(c.Request.Context()) == nil {
			slog.Warn("authentication required but not provided",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequireRole aborts with 403 when the authenticated actor does not hold the
// given role. Implies RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c.Request.Context())
		if actor == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !actor.HasRole(role) {
			slog.Warn("actor lacks required role",
				"actor", actor.ID,
				"role", role,
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}
