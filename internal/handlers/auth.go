// internal/handlers/auth.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// AuthHandler reports the identity carried by a bearer token. Tokens themselves
// are issued out of band by the server's token command.
type AuthHandler struct {
	modules *services.ModuleRegistryService
}

func NewAuthHandler(modules *services.ModuleRegistryService) *AuthHandler {
	return &AuthHandler{
		modules: modules,
	}
}

// GET /auth/me
func (h *AuthHandler) GetCaller(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	utils.SuccessResponse(c, gin.H{
		"address":  caller,
		"is_admin": h.modules.RequireAdmin(caller) == nil,
	})
}
