// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// AuthRequired resolves the caller account from a bearer token.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token)
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthTokenExpired))
			c.Abort()
			return
		}

		c.Set(utils.CallerKey, claims.Caller())
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired(admin common.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, exists := utils.GetCallerFromContext(c)
		if !exists || admin == (common.Address{}) || caller != admin {
			utils.ForbiddenResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAdminAccessDenied))
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth sets the caller when a valid token is present.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims, err := utils.ValidateJWT(token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(utils.CallerKey, claims.Caller())
		c.Next()
	}
}

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
