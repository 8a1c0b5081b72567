package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const subjectContextKey = "Subject"

// TokenValidator checks a bearer token and returns its subject.
// Implemented by license.Manager.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// AuthMiddleware enforces bearer token auth for protected routes.
func AuthMiddleware(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_AUTH_HEADER",
				"error": "invalid Authorization header",
			})
			return
		}

		subject, err := auth.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(subjectContextKey, subject)
		c.Next()
	}
}

// CurrentSubject returns the authenticated operator from context.
func CurrentSubject(c *gin.Context) string {
	return c.GetString(subjectContextKey)
}
