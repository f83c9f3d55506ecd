package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rideshare/internal/auth"
	"rideshare/internal/domain"
)

const actorKey = "actor"

// TokenParser resolves a session token to an actor.
type TokenParser interface {
	ParseToken(token string) (domain.Actor, error)
}

// RequireAuth resolves the caller from the bearer token once per request and
// stores the actor on both the gin and the request context.
func RequireAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && websocketUpgrade(c) {
			// Browsers cannot set headers on websocket handshakes.
			if t := c.Query("access_token"); t != "" {
				header = "Bearer " + t
			}
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		actor, err := parser.ParseToken(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "invalid session token")
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortUnauthorized(c, "authentication required")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "role " + string(actor.Role) + " may not use this endpoint",
		})
	}
}

// ActorFrom returns the actor resolved by RequireAuth.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

func websocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": msg,
	})
}
