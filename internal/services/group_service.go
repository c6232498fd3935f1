// internal/services/group_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

// GroupService aggregates IPs into group IPs whose revenue is split by a reward pool.
type GroupService struct {
	db           *gorm.DB
	exec         *Executor
	events       *EventService
	modules      *ModuleRegistryService
	registry     *LicenseRegistryService
	vaults       *RoyaltyVaultService
	tokens       *TokenService
	ips          IPAssetRegistry
	access       AccessController
	disputes     DisputeOracle
	maxGroupSize int
}

type RegisterGroupRequest struct {
	GroupIPID  common.Address `json:"group_ip_id" binding:"required"`
	RewardPool common.Address `json:"reward_pool" binding:"required"`
}

type GroupMembersRequest struct {
	MemberIPIDs []common.Address `json:"member_ip_ids" binding:"required"`
}

type CollectGroupRoyaltiesRequest struct {
	Token       common.Address `json:"token" binding:"required"`
	SnapshotIDs []uint64       `json:"snapshot_ids" binding:"required"`
}

func NewGroupService(
	db *gorm.DB,
	exec *Executor,
	events *EventService,
	modules *ModuleRegistryService,
	registry *LicenseRegistryService,
	vaults *RoyaltyVaultService,
	tokens *TokenService,
	ips IPAssetRegistry,
	access AccessController,
	disputes DisputeOracle,
	maxGroupSize int,
) *GroupService {
	return &GroupService{
		db:           db,
		exec:         exec,
		events:       events,
		modules:      modules,
		registry:     registry,
		vaults:       vaults,
		tokens:       tokens,
		ips:          ips,
		access:       access,
		disputes:     disputes,
		maxGroupSize: maxGroupSize,
	}
}

// RegisterGroup turns a registered IP with no parents into a group IP.
func (s *GroupService) RegisterGroup(ctx context.Context, caller common.Address, req *RegisterGroupRequest) error {
	return s.exec.Execute(ctx, "registerGroup", func(ctx context.Context) error {
		registered, err := s.ips.IsRegistered(ctx, req.GroupIPID)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("%s: %w", req.GroupIPID.Hex(), ErrIPNotRegistered)
		}
		if err := s.requirePermission(ctx, req.GroupIPID, caller, ActionRegisterGroup); err != nil {
			return err
		}

		isGroup, err := s.IsGroup(ctx, req.GroupIPID)
		if err != nil {
			return err
		}
		if isGroup {
			return fmt.Errorf("%s: %w", req.GroupIPID.Hex(), ErrAlreadyGroup)
		}
		isDerivative, err := s.registry.IsDerivativeIP(ctx, req.GroupIPID)
		if err != nil {
			return err
		}
		if isDerivative {
			return fmt.Errorf("%s: %w", req.GroupIPID.Hex(), ErrGroupCannotBeDerivative)
		}
		if _, err := s.modules.GroupRewardPool(ctx, req.RewardPool); err != nil {
			return err
		}

		group := models.IPGroup{GroupIPID: req.GroupIPID.Hex(), RewardPool: req.RewardPool.Hex()}
		if err := database.Conn(ctx, s.db).Create(&group).Error; err != nil {
			return fmt.Errorf("failed to register group: %w", err)
		}
		return s.events.Emit(ctx, models.EventGroupRegistered, req.GroupIPID, caller, map[string]interface{}{
			"reward_pool": req.RewardPool.Hex(),
		})
	})
}

func (s *GroupService) AddGroupMembers(ctx context.Context, caller, groupIPID common.Address, memberIPIDs []common.Address) error {
	if len(memberIPIDs) == 0 {
		return ErrEmptyBatch
	}

	return s.exec.Execute(ctx, "addGroupMembers", func(ctx context.Context) error {
		group, pool, err := s.mutableGroup(ctx, caller, groupIPID)
		if err != nil {
			return err
		}

		count, err := s.memberCount(ctx, groupIPID)
		if err != nil {
			return err
		}
		if s.maxGroupSize > 0 && count+int64(len(memberIPIDs)) > int64(s.maxGroupSize) {
			return fmt.Errorf("%d members: %w", count+int64(len(memberIPIDs)), ErrGroupSizeExceeded)
		}

		groupLicenses, err := s.attachedLicenses(ctx, groupIPID)
		if err != nil {
			return err
		}

		conn := database.Conn(ctx, s.db)
		for _, memberIPID := range memberIPIDs {
			if err := s.verifyMember(ctx, groupIPID, memberIPID, groupLicenses); err != nil {
				return err
			}
			member := models.GroupMember{GroupIPID: group.GroupIPID, MemberIPID: memberIPID.Hex()}
			if err := conn.Create(&member).Error; err != nil {
				return fmt.Errorf("failed to add group member: %w", err)
			}
			if err := pool.AddIP(ctx, groupIPID, memberIPID); err != nil {
				return err
			}
		}

		return s.events.Emit(ctx, models.EventGroupMembersAdded, groupIPID, caller, map[string]interface{}{
			"members": hexAddresses(memberIPIDs),
		})
	})
}

func (s *GroupService) verifyMember(ctx context.Context, groupIPID, memberIPID common.Address, groupLicenses []AttachedLicense) error {
	registered, err := s.ips.IsRegistered(ctx, memberIPID)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%s: %w", memberIPID.Hex(), ErrIPNotRegistered)
	}

	isGroup, err := s.IsGroup(ctx, memberIPID)
	if err != nil {
		return err
	}
	if isGroup {
		return fmt.Errorf("%s: %w", memberIPID.Hex(), ErrGroupMemberIsGroup)
	}

	disputed, err := s.disputes.IsTagged(ctx, memberIPID)
	if err != nil {
		return err
	}
	if disputed {
		return fmt.Errorf("%s: %w", memberIPID.Hex(), ErrIPDisputed)
	}
	expired, err := s.registry.IsExpiredNow(ctx, memberIPID)
	if err != nil {
		return err
	}
	if expired {
		return fmt.Errorf("%s: %w", memberIPID.Hex(), ErrIPExpired)
	}

	isMember, err := s.IsGroupMember(ctx, groupIPID, memberIPID)
	if err != nil {
		return err
	}
	if isMember {
		return fmt.Errorf("%s: %w", memberIPID.Hex(), ErrAlreadyGroupMember)
	}

	for _, license := range groupLicenses {
		attached, err := s.registry.HasIPAttachedLicenseTerms(ctx, memberIPID, license.Template, license.TermsID)
		if err != nil {
			return err
		}
		if !attached {
			return fmt.Errorf("%s lacks terms %d: %w", memberIPID.Hex(), license.TermsID, ErrMemberMissingGroupLicense)
		}
	}
	return nil
}

func (s *GroupService) RemoveGroupMembers(ctx context.Context, caller, groupIPID common.Address, memberIPIDs []common.Address) error {
	if len(memberIPIDs) == 0 {
		return ErrEmptyBatch
	}

	return s.exec.Execute(ctx, "removeGroupMembers", func(ctx context.Context) error {
		group, pool, err := s.mutableGroup(ctx, caller, groupIPID)
		if err != nil {
			return err
		}

		conn := database.Conn(ctx, s.db)
		for _, memberIPID := range memberIPIDs {
			result := conn.Where("group_ip_id = ? AND member_ip_id = ?", group.GroupIPID, memberIPID.Hex()).Delete(&models.GroupMember{})
			if result.Error != nil {
				return fmt.Errorf("failed to remove group member: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%s: %w", memberIPID.Hex(), ErrNotGroupMember)
			}
			if err := pool.RemoveIP(ctx, groupIPID, memberIPID); err != nil {
				return err
			}
		}

		return s.events.Emit(ctx, models.EventGroupMembersRemoved, groupIPID, caller, map[string]interface{}{
			"members": hexAddresses(memberIPIDs),
		})
	})
}

// mutableGroup loads a group the caller manages. Groups with derivatives are frozen.
func (s *GroupService) mutableGroup(ctx context.Context, caller, groupIPID common.Address) (*models.IPGroup, GroupRewardPool, error) {
	group, err := s.GetGroup(ctx, groupIPID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requirePermission(ctx, groupIPID, caller, ActionManageGroup); err != nil {
		return nil, nil, err
	}

	frozen, err := s.registry.HasDerivativeIPs(ctx, groupIPID)
	if err != nil {
		return nil, nil, err
	}
	if frozen {
		return nil, nil, fmt.Errorf("%s: %w", groupIPID.Hex(), ErrGroupFrozen)
	}

	pool, err := s.modules.GroupRewardPool(ctx, common.HexToAddress(group.RewardPool))
	if err != nil {
		return nil, nil, err
	}
	return group, pool, nil
}

// CollectGroupRoyalties claims the group's vault revenue for the snapshots and
// deposits it into the group's reward pool.
func (s *GroupService) CollectGroupRoyalties(ctx context.Context, caller, groupIPID common.Address, req *CollectGroupRoyaltiesRequest) (uint64, error) {
	if len(req.SnapshotIDs) == 0 {
		return 0, ErrEmptyBatch
	}

	var collected uint64
	err := s.exec.Execute(ctx, "collectGroupRoyalties", func(ctx context.Context) error {
		group, err := s.GetGroup(ctx, groupIPID)
		if err != nil {
			return err
		}
		poolAddress := common.HexToAddress(group.RewardPool)
		pool, err := s.modules.GroupRewardPool(ctx, poolAddress)
		if err != nil {
			return err
		}

		amount, err := s.vaults.claimSnapshots(ctx, groupIPID, groupIPID, req.SnapshotIDs, req.Token)
		if err != nil {
			return err
		}
		collected = amount
		if amount == 0 {
			return nil
		}

		if err := s.tokens.transfer(ctx, req.Token, groupIPID, poolAddress, amount); err != nil {
			return err
		}
		if err := pool.DepositReward(ctx, groupIPID, req.Token, amount); err != nil {
			return err
		}
		return s.events.Emit(ctx, models.EventGroupRoyaltiesCollected, groupIPID, caller, map[string]interface{}{
			"token":  req.Token.Hex(),
			"amount": amount,
		})
	})
	if err != nil {
		return 0, err
	}
	return collected, nil
}

// ClaimGroupReward pays a member its pending reward; anyone may trigger it.
func (s *GroupService) ClaimGroupReward(ctx context.Context, caller, groupIPID, token, memberIPID common.Address) (uint64, error) {
	var claimed uint64
	err := s.exec.Execute(ctx, "claimGroupReward", func(ctx context.Context) error {
		group, err := s.GetGroup(ctx, groupIPID)
		if err != nil {
			return err
		}
		poolAddress := common.HexToAddress(group.RewardPool)
		pool, err := s.modules.GroupRewardPool(ctx, poolAddress)
		if err != nil {
			return err
		}

		amount, err := pool.ClaimReward(ctx, groupIPID, token, memberIPID)
		if err != nil {
			return err
		}
		claimed = amount
		if amount == 0 {
			return nil
		}

		if err := s.tokens.transfer(ctx, token, poolAddress, memberIPID, amount); err != nil {
			return err
		}
		return s.events.Emit(ctx, models.EventGroupRewardClaimed, groupIPID, caller, map[string]interface{}{
			"member": memberIPID.Hex(),
			"token":  token.Hex(),
			"amount": amount,
		})
	})
	if err != nil {
		return 0, err
	}
	return claimed, nil
}

func (s *GroupService) PendingGroupReward(ctx context.Context, groupIPID, token, memberIPID common.Address) (uint64, error) {
	group, err := s.GetGroup(ctx, groupIPID)
	if err != nil {
		return 0, err
	}
	pool, err := s.modules.GroupRewardPool(ctx, common.HexToAddress(group.RewardPool))
	if err != nil {
		return 0, err
	}
	return pool.PendingReward(ctx, groupIPID, token, memberIPID)
}

func (s *GroupService) GetGroup(ctx context.Context, groupIPID common.Address) (*models.IPGroup, error) {
	var group models.IPGroup
	if err := database.Conn(ctx, s.db).Where("group_ip_id = ?", groupIPID.Hex()).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", groupIPID.Hex(), ErrNotGroup)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &group, nil
}

func (s *GroupService) IsGroup(ctx context.Context, ipID common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.IPGroup{}).Where("group_ip_id = ?", ipID.Hex()).Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *GroupService) IsGroupMember(ctx context.Context, groupIPID, memberIPID common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.GroupMember{}).
		Where("group_ip_id = ? AND member_ip_id = ?", groupIPID.Hex(), memberIPID.Hex()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *GroupService) GetGroupMembers(ctx context.Context, groupIPID common.Address) ([]common.Address, error) {
	var rows []models.GroupMember
	if err := database.Conn(ctx, s.db).Where("group_ip_id = ?", groupIPID.Hex()).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	members := make([]common.Address, 0, len(rows))
	for _, row := range rows {
		members = append(members, common.HexToAddress(row.MemberIPID))
	}
	return members, nil
}

func (s *GroupService) memberCount(ctx context.Context, groupIPID common.Address) (int64, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.GroupMember{}).Where("group_ip_id = ?", groupIPID.Hex()).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

// attachedLicenses lists the group's explicitly attached terms.
func (s *GroupService) attachedLicenses(ctx context.Context, groupIPID common.Address) ([]AttachedLicense, error) {
	count, err := s.registry.GetAttachedLicenseTermsCount(ctx, groupIPID)
	if err != nil {
		return nil, err
	}
	licenses := make([]AttachedLicense, 0, count)
	for i := 0; i < int(count); i++ {
		license, err := s.registry.GetAttachedLicenseTerms(ctx, groupIPID, i)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, license)
	}
	return licenses, nil
}

func (s *GroupService) requirePermission(ctx context.Context, ipID, caller common.Address, action string) error {
	allowed, err := s.access.HasPermission(ctx, ipID, caller, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%s on %s: %w", action, ipID.Hex(), ErrPermissionDenied)
	}
	return nil
}

func hexAddresses(addresses []common.Address) []string {
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, address.Hex())
	}
	return out
}
