// internal/handlers/license_token.go
package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type LicenseTokenHandler struct {
	licenseTokenService *services.LicenseTokenService
}

func NewLicenseTokenHandler(licenseTokenService *services.LicenseTokenService) *LicenseTokenHandler {
	return &LicenseTokenHandler{
		licenseTokenService: licenseTokenService,
	}
}

type transferLicenseTokenRequest struct {
	To common.Address `json:"to" binding:"required"`
}

// GET /license-tokens?owner=&licensor_ip_id=
func (h *LicenseTokenHandler) GetLicenseTokens(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	searchParams := services.LicenseTokenSearchParams{
		PaginationParams: params,
	}

	if c.Query("owner") != "" {
		owner, ok := addressQuery(c, "owner")
		if !ok {
			return
		}
		searchParams.Owner = &owner
	}
	if c.Query("licensor_ip_id") != "" {
		licensor, ok := addressQuery(c, "licensor_ip_id")
		if !ok {
			return
		}
		searchParams.LicensorIPID = &licensor
	}

	tokens, total, err := h.licenseTokenService.SearchLicenseTokens(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(tokens, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /license-tokens/:id
func (h *LicenseTokenHandler) GetLicenseToken(c *gin.Context) {
	tokenID, ok := uint64Param(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	token, err := h.licenseTokenService.GetLicenseToken(ctx, tokenID)
	if err != nil {
		respondError(c, err)
		return
	}
	revoked, err := h.licenseTokenService.IsLicenseTokenRevoked(ctx, tokenID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_token": token,
		"revoked":       revoked,
	})
}

// POST /license-tokens/:id/transfer
func (h *LicenseTokenHandler) TransferLicenseToken(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	tokenID, ok := uint64Param(c, "id")
	if !ok {
		return
	}

	var req transferLicenseTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.licenseTokenService.TransferLicenseToken(c.Request.Context(), caller, tokenID, req.To); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"license_token_id": tokenID,
		"owner":            req.To,
	})
}
