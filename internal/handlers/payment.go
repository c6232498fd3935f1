// internal/handlers/payment.go
package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// PaymentHandler serves royalty payments and the royalty vaults.
type PaymentHandler struct {
	royaltyService *services.RoyaltyService
	vaultService   *services.RoyaltyVaultService
}

func NewPaymentHandler(royaltyService *services.RoyaltyService, vaultService *services.RoyaltyVaultService) *PaymentHandler {
	return &PaymentHandler{
		royaltyService: royaltyService,
		vaultService:   vaultService,
	}
}

type registerExternalPolicyRequest struct {
	Policy common.Address `json:"policy" binding:"required"`
}

type claimRevenueRequest struct {
	Holder      common.Address   `json:"holder" binding:"required"`
	SnapshotIDs []uint64         `json:"snapshot_ids" binding:"required,min=1"`
	Tokens      []common.Address `json:"tokens" binding:"required,min=1"`
}

type collectRoyaltyTokensRequest struct {
	AncestorIPID common.Address `json:"ancestor_ip_id" binding:"required"`
}

// POST /royalty/pay
func (h *PaymentHandler) PayRoyaltyOnBehalf(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.PayRoyaltyRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.royaltyService.PayRoyaltyOnBehalf(c.Request.Context(), caller, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"payment": req})
}

// POST /royalty/external-policies
func (h *PaymentHandler) RegisterExternalRoyaltyPolicy(c *gin.Context) {
	var req registerExternalPolicyRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.royaltyService.RegisterExternalRoyaltyPolicy(c.Request.Context(), req.Policy); err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{"policy": req.Policy})
}

// GET /royalty/vaults/:id
func (h *PaymentHandler) GetVault(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	vault, err := h.vaultService.GetVault(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	ancestors, err := h.vaultService.GetAncestorRoyalties(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	revenue, err := h.vaultService.GetRevenueTokens(ctx, ipID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"vault":          vault,
		"ancestors":      ancestors,
		"revenue_tokens": revenue,
	})
}

// POST /royalty/vaults/:id/snapshots
func (h *PaymentHandler) Snapshot(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	snapshotID, err := h.vaultService.Snapshot(c.Request.Context(), caller, ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{"snapshot_id": snapshotID})
}

// GET /royalty/vaults/:id/snapshots
func (h *PaymentHandler) GetSnapshots(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	snapshots, err := h.vaultService.Snapshots(c.Request.Context(), ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"snapshots": snapshots})
}

// GET /royalty/vaults/:id/snapshots/:snapshot_id
func (h *PaymentHandler) GetSnapshotPools(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	snapshotID, ok := uint64Param(c, "snapshot_id")
	if !ok {
		return
	}

	pools, err := h.vaultService.GetSnapshotPools(c.Request.Context(), ipID, snapshotID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"snapshot_id": snapshotID,
		"pools":       pools,
	})
}

// POST /royalty/vaults/:id/claims
//
// One snapshot and one token claim a single pool; several snapshots of one token or
// several tokens of one snapshot claim in a batch.
func (h *PaymentHandler) ClaimRevenue(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req claimRevenueRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.SnapshotIDs) > 1 && len(req.Tokens) > 1 {
		utils.BadRequestResponse(c, "claim either several snapshots of one token or several tokens of one snapshot", nil)
		return
	}

	ctx := c.Request.Context()
	claimed := make(map[common.Address]uint64)
	switch {
	case len(req.Tokens) > 1:
		result, err := h.vaultService.ClaimByTokenBatch(ctx, caller, ipID, req.Holder, req.SnapshotIDs[0], req.Tokens)
		if err != nil {
			respondError(c, err)
			return
		}
		claimed = result
	case len(req.SnapshotIDs) > 1:
		amount, err := h.vaultService.ClaimBySnapshotBatch(ctx, caller, ipID, req.Holder, req.SnapshotIDs, req.Tokens[0])
		if err != nil {
			respondError(c, err)
			return
		}
		claimed[req.Tokens[0]] = amount
	default:
		amount, err := h.vaultService.Claim(ctx, caller, ipID, req.Holder, req.SnapshotIDs[0], req.Tokens[0])
		if err != nil {
			respondError(c, err)
			return
		}
		claimed[req.Tokens[0]] = amount
	}

	utils.SuccessResponse(c, gin.H{
		"holder":  req.Holder,
		"claimed": claimed,
	})
}

// GET /royalty/vaults/:id/claimable?holder=&token=&snapshot_id=
//
// Without a snapshot id the advisory share of revenue not yet snapshotted is returned.
func (h *PaymentHandler) GetClaimableRevenue(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	holder, ok := parseAddress(c, "holder", c.Query("holder"))
	if !ok {
		return
	}
	token, ok := parseAddress(c, "token", c.Query("token"))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if c.Query("snapshot_id") == "" {
		pending, err := h.vaultService.PendingClaimableRevenue(ctx, ipID, holder, token)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.SuccessResponse(c, gin.H{"pending": pending})
		return
	}

	snapshotID, ok := uint64Query(c, "snapshot_id")
	if !ok {
		return
	}
	claimable, err := h.vaultService.ClaimableRevenue(ctx, ipID, holder, snapshotID, token)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"snapshot_id": snapshotID,
		"claimable":   claimable,
	})
}

// POST /royalty/vaults/:id/collect
func (h *PaymentHandler) CollectRoyaltyTokens(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req collectRoyaltyTokensRequest
	if !bindJSON(c, &req) {
		return
	}

	shares, err := h.vaultService.CollectRoyaltyTokens(c.Request.Context(), caller, ipID, req.AncestorIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"ancestor_ip_id": req.AncestorIPID,
		"shares":         shares,
	})
}

// POST /royalty/vaults/:id/shares/transfer
func (h *PaymentHandler) TransferShares(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req services.TransferSharesRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.vaultService.TransferShares(c.Request.Context(), caller, ipID, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"transfer": req})
}

// GET /royalty/vaults/:id/shares
func (h *PaymentHandler) GetShareHolders(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	holders, err := h.vaultService.ShareHolders(c.Request.Context(), ipID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"total_shares": services.TotalRoyaltyShares,
		"holders":      holders,
	})
}

// GET /royalty/vaults/:id/shares/:holder?snapshot_id=
func (h *PaymentHandler) GetShareBalance(c *gin.Context) {
	ipID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	holder, ok := addressParam(c, "holder")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if c.Query("snapshot_id") != "" {
		snapshotID, ok := uint64Query(c, "snapshot_id")
		if !ok {
			return
		}
		balance, err := h.vaultService.ShareBalanceOfAt(ctx, ipID, holder, snapshotID)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.SuccessResponse(c, gin.H{
			"holder":      holder,
			"snapshot_id": snapshotID,
			"balance":     balance,
		})
		return
	}

	balance, err := h.vaultService.ShareBalanceOf(ctx, ipID, holder)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"holder":  holder,
		"balance": balance,
	})
}
