// internal/handlers/admin.go
package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// AdminHandler serves protocol administration and the module allow-lists.
type AdminHandler struct {
	protocol *services.Protocol
}

func NewAdminHandler(protocol *services.Protocol) *AdminHandler {
	return &AdminHandler{
		protocol: protocol,
	}
}

type whitelistRequest struct {
	Address common.Address `json:"address" binding:"required"`
	Allowed bool           `json:"allowed"`
}

type defaultTermsRequest struct {
	LicenseTemplate common.Address `json:"license_template" binding:"required"`
	LicenseTermsID  uint64         `json:"license_terms_id" binding:"required"`
}

type mintCurrencyRequest struct {
	Token  common.Address `json:"token" binding:"required"`
	To     common.Address `json:"to" binding:"required"`
	Amount uint64         `json:"amount" binding:"required"`
}

// GET /protocol
func (h *AdminHandler) GetProtocolStatus(c *gin.Context) {
	defaults, err := h.protocol.Registry.GetDefaultLicenseTerms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"paused":           h.protocol.Paused(),
		"admin":            h.protocol.Modules.Admin(),
		"license_template": h.protocol.PILTemplate.Address(),
		"royalty_policy":   h.protocol.LAPPolicy.Address(),
		"group_pool":       h.protocol.EvenSplitPool.Address(),
		"default_terms":    defaults,
		"total_shares":     services.TotalRoyaltyShares,
	})
}

// GET /modules?kind=
func (h *AdminHandler) GetModules(c *gin.Context) {
	modules, err := h.protocol.Modules.ListModules(c.Request.Context(), models.ModuleKind(c.Query("kind")))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"modules": modules})
}

// POST /admin/pause
func (h *AdminHandler) Pause(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	if err := h.protocol.Pause(c.Request.Context(), caller); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyProtocolPaused),
		"paused":  true,
	})
}

// POST /admin/unpause
func (h *AdminHandler) Unpause(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	if err := h.protocol.Unpause(c.Request.Context(), caller); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyProtocolUnpaused),
		"paused":  false,
	})
}

// POST /admin/modules
func (h *AdminHandler) RegisterModule(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.RegisterModuleRequest
	if !bindJSON(c, &req) {
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	address := common.HexToAddress(req.Address)
	if err := h.protocol.Modules.RegisterModule(c.Request.Context(), caller, address, req.Kind, req.Name); err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{"module": req})
}

// DELETE /admin/modules/:kind/:address
func (h *AdminHandler) RemoveModule(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	address, ok := addressParam(c, "address")
	if !ok {
		return
	}
	kind := models.ModuleKind(c.Param("kind"))

	if err := h.protocol.Modules.RemoveModule(c.Request.Context(), caller, address, kind); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"kind":    kind,
		"address": address,
		"removed": true,
	})
}

// POST /admin/license-templates
func (h *AdminHandler) RegisterLicenseTemplate(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req whitelistRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.protocol.Registry.RegisterLicenseTemplate(c.Request.Context(), caller, req.Address); err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{"license_template": req.Address})
}

// PUT /admin/default-terms
func (h *AdminHandler) SetDefaultLicenseTerms(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req defaultTermsRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.protocol.Registry.SetDefaultLicenseTerms(c.Request.Context(), caller, req.LicenseTemplate, req.LicenseTermsID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"default_terms": req})
}

// PUT /admin/royalty-policies
func (h *AdminHandler) WhitelistRoyaltyPolicy(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req whitelistRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.protocol.Royalty.WhitelistRoyaltyPolicy(c.Request.Context(), caller, req.Address, req.Allowed); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"royalty_policy": req})
}

// PUT /admin/royalty-tokens
func (h *AdminHandler) WhitelistRoyaltyToken(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req whitelistRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.protocol.Royalty.WhitelistRoyaltyToken(c.Request.Context(), caller, req.Address, req.Allowed); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"royalty_token": req})
}

// POST /admin/ip-assets/:id/disputes
func (h *AdminHandler) TagIP(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req services.TagIPRequest
	if !bindJSON(c, &req) {
		return
	}

	dispute, err := h.protocol.Disputes.TagIP(c.Request.Context(), caller, ipID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{"dispute": dispute})
}

// PUT /admin/disputes/:dispute_id/resolve
func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	disputeID, ok := uint64Param(c, "dispute_id")
	if !ok {
		return
	}

	if err := h.protocol.Disputes.ResolveDispute(c.Request.Context(), caller, uint(disputeID)); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"dispute_id": disputeID,
		"resolved":   true,
	})
}

// POST /admin/tokens/mint
func (h *AdminHandler) MintCurrency(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req mintCurrencyRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.protocol.Tokens.Mint(ctx, caller, req.Token, req.To, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	balance, err := h.protocol.Tokens.BalanceOf(ctx, req.Token, req.To)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"token":   req.Token,
		"account": req.To,
		"balance": balance,
	})
}
