package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by Middleware.
const (
	ContextUserID = "userID"
	ContextEmail  = "userEmail"
	ContextToken  = "accessToken"
)

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's identity on the gin context.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			abort(c, ErrAuthenticationRequired)
			return
		}
		token := strings.TrimSpace(parts[1])

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrAuthenticationRequired) || errors.Is(err, ErrInvalidToken) {
				abort(c, err)
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Internal server error",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// UserID returns the authenticated user's ID, or "" outside Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func abort(c *gin.Context, err error) {
	msg, code := "Authentication required", "AUTH_REQUIRED"
	if errors.Is(err, ErrInvalidToken) {
		msg, code = "Invalid token", "INVALID_TOKEN"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}
