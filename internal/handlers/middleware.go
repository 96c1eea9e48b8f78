package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/anonymouswhite07/bulkwala-backend/internal/cookie"
	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
)

const claimsKey = "auth_claims"

// RequireAuth gates protected routes on a valid access token, taken
// from the accessToken cookie or an Authorization bearer header.
func (h *AuthHandler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookie.AccessCookie)
		if err != nil || token == "" {
			token = security.ExtractBearer(c.GetHeader("Authorization"))
		}
		if token == "" {
			unauthorized(c, CodeUnauthorized, "authentication required")
			c.Abort()
			return
		}

		claims, err := security.ParseAccessToken(token, []byte(h.Cfg.AccessSecret))
		if err != nil {
			unauthorized(c, CodeUnauthorized, "invalid or expired access token")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *security.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, ok := v.(*security.Claims)
	if !ok {
		return nil
	}
	return claims
}
