// internal/handlers/verification.go
package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// VerificationHandler exposes the read-only checks a license template runs before
// minting or linking, so clients can dry-run them.
type VerificationHandler struct {
	modules *services.ModuleRegistryService
}

func NewVerificationHandler(modules *services.ModuleRegistryService) *VerificationHandler {
	return &VerificationHandler{
		modules: modules,
	}
}

type verifyMintRequest struct {
	LicenseTemplate common.Address `json:"license_template" binding:"required"`
	LicenseTermsID  uint64         `json:"license_terms_id" binding:"required"`
	LicensorIPID    common.Address `json:"licensor_ip_id" binding:"required"`
	Licensee        common.Address `json:"licensee" binding:"required"`
	Amount          uint64         `json:"amount" binding:"required"`
}

type verifyDerivativeRequest struct {
	LicenseTemplate common.Address   `json:"license_template" binding:"required"`
	ChildIPID       common.Address   `json:"child_ip_id" binding:"required"`
	ParentIPIDs     []common.Address `json:"parent_ip_ids" binding:"required,min=1"`
	LicenseTermsIDs []uint64         `json:"license_terms_ids" binding:"required,min=1"`
	Licensee        common.Address   `json:"licensee" binding:"required"`
}

type verifyCompatibleRequest struct {
	LicenseTemplate common.Address `json:"license_template" binding:"required"`
	LicenseTermsIDs []uint64       `json:"license_terms_ids" binding:"required,min=1"`
}

// POST /verify/mint
func (h *VerificationHandler) VerifyMint(c *gin.Context) {
	var req verifyMintRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	template, err := h.modules.LicenseTemplate(ctx, req.LicenseTemplate)
	if err != nil {
		respondError(c, err)
		return
	}
	valid, err := template.VerifyMintLicenseToken(ctx, req.LicenseTermsID, req.Licensee, req.LicensorIPID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"valid": valid})
}

// POST /verify/derivative
func (h *VerificationHandler) VerifyDerivative(c *gin.Context) {
	var req verifyDerivativeRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.ParentIPIDs) != len(req.LicenseTermsIDs) {
		respondError(c, services.ErrParentTermsLengthMismatch)
		return
	}
	ctx := c.Request.Context()

	template, err := h.modules.LicenseTemplate(ctx, req.LicenseTemplate)
	if err != nil {
		respondError(c, err)
		return
	}
	valid, err := template.VerifyRegisterDerivativeForAllParents(ctx, req.ChildIPID, req.ParentIPIDs, req.LicenseTermsIDs, req.Licensee)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"valid": valid})
}

// POST /verify/compatible
func (h *VerificationHandler) VerifyCompatible(c *gin.Context) {
	var req verifyCompatibleRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	template, err := h.modules.LicenseTemplate(ctx, req.LicenseTemplate)
	if err != nil {
		respondError(c, err)
		return
	}
	compatible, err := template.VerifyCompatibleLicenses(ctx, req.LicenseTermsIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"compatible": compatible})
}
