package auth

import (
	"net/http"
	"strings"

	"LanChat/internal/apperror"

	"github.com/gin-gonic/gin"
)

const identityKey = "lanchat.identity"

// Middleware verifies the bearer token and stores the identity on the gin context.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			abort(c, apperror.ErrMissingToken)
			return
		}

		id, err := v.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireAdmin must run after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok || !id.IsAdmin() {
			abort(c, apperror.ErrAdminOnly)
			return
		}
		c.Next()
	}
}

// FromContext returns the identity set by Middleware.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func abort(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": apperror.PublicMessage(err),
	})
}
