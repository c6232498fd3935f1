// internal/handlers/ip_asset.go
package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type IPAssetHandler struct {
	ipService       *services.IPService
	registryService *services.LicenseRegistryService
	disputeService  *services.DisputeService
}

func NewIPAssetHandler(ipService *services.IPService, registryService *services.LicenseRegistryService, disputeService *services.DisputeService) *IPAssetHandler {
	return &IPAssetHandler{
		ipService:       ipService,
		registryService: registryService,
		disputeService:  disputeService,
	}
}

type parentLicense struct {
	ParentIPID common.Address           `json:"parent_ip_id"`
	License    services.AttachedLicense `json:"license"`
}

// POST /ip-assets
func (h *IPAssetHandler) RegisterIPAsset(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.RegisterIPRequest
	if !bindJSON(c, &req) {
		return
	}

	asset, err := h.ipService.RegisterIP(c.Request.Context(), caller, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(utils.GetLangFromContext(c), i18n.KeyIPRegistered),
		"ip_asset": asset,
	})
}

// GET /ip-assets/:id
func (h *IPAssetHandler) GetIPAsset(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	asset, err := h.ipService.GetIPAsset(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	template, err := h.registryService.GetLicenseTemplate(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	expireTime, err := h.registryService.GetExpireTime(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	expired, err := h.registryService.IsExpiredNow(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	isDerivative, err := h.registryService.IsDerivativeIP(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	disputed, err := h.disputeService.IsTagged(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"ip_asset":         asset,
		"license_template": template,
		"expire_time":      expireTime,
		"expired":          expired,
		"is_derivative":    isDerivative,
		"disputed":         disputed,
	})
}

// PUT /ip-assets/:id/permissions
func (h *IPAssetHandler) SetPermission(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req services.SetPermissionRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.ipService.SetPermission(c.Request.Context(), caller, ipID, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"permission": req})
}

// GET /ip-assets/:id/permissions?signer=&action=
func (h *IPAssetHandler) HasPermission(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	signer, ok := parseAddress(c, "signer", c.Query("signer"))
	if !ok {
		return
	}
	action := c.Query("action")

	allowed, err := h.ipService.HasPermission(c.Request.Context(), ipID, signer, action)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"signer":  signer,
		"action":  action,
		"allowed": allowed,
	})
}

// GET /ip-assets/:id/licenses
func (h *IPAssetHandler) GetAttachedLicenses(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	count, err := h.registryService.GetAttachedLicenseTermsCount(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	licenses := make([]services.AttachedLicense, 0, count)
	for i := 0; i < int(count); i++ {
		license, err := h.registryService.GetAttachedLicenseTerms(ctx, ipID, i)
		if err != nil {
			respondError(c, err)
			return
		}
		licenses = append(licenses, license)
	}
	defaults, err := h.registryService.GetDefaultLicenseTerms(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"licenses": licenses,
		"default":  defaults,
	})
}

// GET /ip-assets/:id/licensing-config?license_template=&license_terms_id=
func (h *IPAssetHandler) GetLicensingConfig(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	template, ok := addressQuery(c, "license_template")
	if !ok {
		return
	}
	termsID, ok := uint64Query(c, "license_terms_id")
	if !ok {
		return
	}

	config, err := h.registryService.GetLicensingConfig(c.Request.Context(), ipID, template, termsID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"licensing_config": config})
}

// GET /ip-assets/:id/parents
func (h *IPAssetHandler) GetParents(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	parents, err := h.registryService.GetParentIPs(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	result := make([]parentLicense, 0, len(parents))
	for _, parent := range parents {
		license, err := h.registryService.GetParentLicenseTerms(ctx, ipID, parent)
		if err != nil {
			respondError(c, err)
			return
		}
		result = append(result, parentLicense{ParentIPID: parent, License: license})
	}
	utils.SuccessResponse(c, gin.H{"parents": result})
}

// GET /ip-assets/:id/derivatives
func (h *IPAssetHandler) GetDerivatives(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	count, err := h.registryService.GetDerivativeIPCount(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	derivatives := make([]common.Address, 0, count)
	for i := 0; i < int(count); i++ {
		child, err := h.registryService.GetDerivativeIP(ctx, ipID, i)
		if err != nil {
			respondError(c, err)
			return
		}
		derivatives = append(derivatives, child)
	}
	utils.SuccessResponse(c, gin.H{"derivatives": derivatives})
}

// GET /ip-assets/:id/ancestors
func (h *IPAssetHandler) GetAncestors(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	ancestors, err := h.registryService.GetAncestors(c.Request.Context(), ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ancestors == nil {
		ancestors = []common.Address{}
	}
	utils.SuccessResponse(c, gin.H{"ancestors": ancestors})
}

// GET /ip-assets/:id/disputes
func (h *IPAssetHandler) GetDisputes(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	disputes, err := h.disputeService.GetDisputes(c.Request.Context(), ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"disputes": disputes})
}
