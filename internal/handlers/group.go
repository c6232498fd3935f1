// internal/handlers/group.go
package handlers

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type GroupHandler struct {
	groupService *services.GroupService
}

func NewGroupHandler(groupService *services.GroupService) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
	}
}

type claimGroupRewardRequest struct {
	Token      common.Address `json:"token" binding:"required"`
	MemberIPID common.Address `json:"member_ip_id" binding:"required"`
}

// POST /groups
func (h *GroupHandler) RegisterGroup(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}

	var req services.RegisterGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.groupService.RegisterGroup(c.Request.Context(), caller, &req); err != nil {
		respondError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyGroupRegistered),
		"group":   req,
	})
}

// GET /groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupIPID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	group, err := h.groupService.GetGroup(ctx, groupIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	members, err := h.groupService.GetGroupMembers(ctx, groupIPID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"group":   group,
		"members": members,
	})
}

// POST /groups/:id/members
func (h *GroupHandler) AddGroupMembers(c *gin.Context) {
	h.updateMembers(c, h.groupService.AddGroupMembers)
}

// DELETE /groups/:id/members
func (h *GroupHandler) RemoveGroupMembers(c *gin.Context) {
	h.updateMembers(c, h.groupService.RemoveGroupMembers)
}

func (h *GroupHandler) updateMembers(c *gin.Context, update func(ctx context.Context, caller, groupIPID common.Address, memberIPIDs []common.Address) error) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	groupIPID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req services.GroupMembersRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := update(ctx, caller, groupIPID, req.MemberIPIDs); err != nil {
		respondError(c, err)
		return
	}
	members, err := h.groupService.GetGroupMembers(ctx, groupIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"members": members})
}

// POST /groups/:id/collect
func (h *GroupHandler) CollectGroupRoyalties(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	groupIPID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req services.CollectGroupRoyaltiesRequest
	if !bindJSON(c, &req) {
		return
	}

	collected, err := h.groupService.CollectGroupRoyalties(c.Request.Context(), caller, groupIPID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"token":     req.Token,
		"collected": collected,
	})
}

// POST /groups/:id/claim
func (h *GroupHandler) ClaimGroupReward(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	groupIPID, ok := addressParam(c, "id")
	if !ok {
		return
	}

	var req claimGroupRewardRequest
	if !bindJSON(c, &req) {
		return
	}

	claimed, err := h.groupService.ClaimGroupReward(c.Request.Context(), caller, groupIPID, req.Token, req.MemberIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"member_ip_id": req.MemberIPID,
		"token":        req.Token,
		"claimed":      claimed,
	})
}

// GET /groups/:id/rewards?token=&member_ip_id=
func (h *GroupHandler) GetPendingReward(c *gin.Context) {
	groupIPID, ok := addressParam(c, "id")
	if !ok {
		return
	}
	token, ok := parseAddress(c, "token", c.Query("token"))
	if !ok {
		return
	}
	memberIPID, ok := parseAddress(c, "member_ip_id", c.Query("member_ip_id"))
	if !ok {
		return
	}

	pending, err := h.groupService.PendingGroupReward(c.Request.Context(), groupIPID, token, memberIPID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"member_ip_id": memberIPID,
		"token":        token,
		"pending":      pending,
	})
}
