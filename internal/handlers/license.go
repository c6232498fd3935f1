// internal/handlers/license.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// LicenseHandler serves the PIL terms store and the licensing module.
type LicenseHandler struct {
	templateService  *services.PILTemplate
	registryService  *services.LicenseRegistryService
	licensingService *services.LicensingService
}

func NewLicenseHandler(templateService *services.PILTemplate, registryService *services.LicenseRegistryService, licensingService *services.LicensingService) *LicenseHandler {
	return &LicenseHandler{
		templateService:  templateService,
		registryService:  registryService,
		licensingService: licensingService,
	}
}

// POST /license-terms
func (h *LicenseHandler) RegisterLicenseTerms(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var terms services.PILTerms
	if !bindJSON(c, &terms) {
		return
	}

	termsID, err := h.templateService.RegisterLicenseTerms(c.Request.Context(), caller, terms)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":          i18n.T(utils.GetLangFromContext(c), i18n.KeyLicenseTermsRegistered),
		"license_template": h.templateService.Address(),
		"license_terms_id": termsID,
	})
}

// GET /license-terms
func (h *LicenseHandler) GetLicenseTermsSummary(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.templateService.TotalRegisteredLicenseTerms(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	defaults, err := h.registryService.GetDefaultLicenseTerms(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_template": h.templateService.Address(),
		"total":            total,
		"default":          defaults,
	})
}

// POST /license-terms/lookup
func (h *LicenseHandler) LookupLicenseTerms(c *gin.Context) {
	var terms services.PILTerms
	if !bindJSON(c, &terms) {
		return
	}

	termsID, err := h.templateService.GetLicenseTermsID(c.Request.Context(), terms)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"license_terms_id": termsID,
		"registered":       termsID != 0,
	})
}

// GET /license-terms/:id
func (h *LicenseHandler) GetLicenseTerms(c *gin.Context) {
	termsID, ok := uint64Param(c, "id")
	if !ok {
		return
	}

	terms, err := h.templateService.GetLicenseTerms(c.Request.Context(), termsID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"license_template": h.templateService.Address(),
		"license_terms_id": termsID,
		"terms":            terms,
	})
}

// PUT /license-terms/approvals
func (h *LicenseHandler) SetApproval(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.SetApprovalRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.templateService.SetApproval(c.Request.Context(), caller, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"approval": req})
}

// GET /license-terms/approvals?parent_ip_id=&terms_id=&child_ip_id=
func (h *LicenseHandler) IsDerivativeApproved(c *gin.Context) {
	parentIPID, ok := parseAddress(c, "parent_ip_id", c.Query("parent_ip_id"))
	if !ok {
		return
	}
	childIPID, ok := parseAddress(c, "child_ip_id", c.Query("child_ip_id"))
	if !ok {
		return
	}
	termsID, ok := uint64Query(c, "terms_id")
	if !ok {
		return
	}

	approved, err := h.templateService.IsDerivativeApproved(c.Request.Context(), parentIPID, termsID, childIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"approved": approved})
}

// POST /licensing/attach
func (h *LicenseHandler) AttachLicenseTerms(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.AttachLicenseTermsRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.licensingService.AttachLicenseTerms(c.Request.Context(), caller, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyLicenseTermsAttached),
		"license": req,
	})
}

// POST /licensing/mint
func (h *LicenseHandler) MintLicenseTokens(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.MintLicenseTokensRequest
	if !bindJSON(c, &req) {
		return
	}

	startID, err := h.licensingService.MintLicenseTokens(c.Request.Context(), caller, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":        i18n.T(utils.GetLangFromContext(c), i18n.KeyLicenseTokensMinted),
		"start_token_id": startID,
		"end_token_id":   startID + req.Amount - 1,
		"amount":         req.Amount,
	})
}

// POST /licensing/predict-fee
func (h *LicenseHandler) PredictMintingLicenseFee(c *gin.Context) {
	caller, _ := utils.GetCallerFromContext(c)

	var req services.MintLicenseTokensRequest
	if !bindJSON(c, &req) {
		return
	}

	fee, err := h.licensingService.PredictMintingLicenseFee(c.Request.Context(), caller, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"minting_fee": fee})
}

// POST /licensing/derivatives
func (h *LicenseHandler) RegisterDerivative(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.RegisterDerivativeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.licensingService.RegisterDerivative(c.Request.Context(), caller, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message":       i18n.T(utils.GetLangFromContext(c), i18n.KeyDerivativeRegistered),
		"child_ip_id":   req.ChildIPID,
		"parent_ip_ids": req.ParentIPIDs,
	})
}

// POST /licensing/derivatives/with-tokens
func (h *LicenseHandler) RegisterDerivativeWithLicenseTokens(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.RegisterDerivativeWithTokensRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.licensingService.RegisterDerivativeWithLicenseTokens(ctx, caller, &req); err != nil {
		respondError(c, err)
		return
	}
	parents, err := h.registryService.GetParentIPs(ctx, req.ChildIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message":       i18n.T(utils.GetLangFromContext(c), i18n.KeyDerivativeRegistered),
		"child_ip_id":   req.ChildIPID,
		"parent_ip_ids": parents,
	})
}

// PUT /licensing/config
func (h *LicenseHandler) SetLicensingConfig(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.SetLicensingConfigRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.licensingService.SetLicensingConfig(c.Request.Context(), caller, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message":          i18n.T(utils.GetLangFromContext(c), i18n.KeyLicensingConfigSet),
		"licensing_config": req,
	})
}
