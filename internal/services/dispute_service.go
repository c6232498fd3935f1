// internal/services/dispute_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// DisputeService records dispute tags raised by the protocol admin. An IP with any
// unresolved tag is disputed.
type DisputeService struct {
	db      *gorm.DB
	exec    *Executor
	events  *EventService
	modules *ModuleRegistryService
}

type TagIPRequest struct {
	Tag      string `json:"tag" validate:"required,max=64"`
	Evidence string `json:"evidence,omitempty"`
}

func NewDisputeService(db *gorm.DB, exec *Executor, events *EventService, modules *ModuleRegistryService) *DisputeService {
	return &DisputeService{
		db:      db,
		exec:    exec,
		events:  events,
		modules: modules,
	}
}

func (s *DisputeService) TagIP(ctx context.Context, caller, ipID common.Address, req *TagIPRequest) (*models.DisputeTag, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := s.modules.RequireAdmin(caller); err != nil {
		return nil, err
	}

	dispute := &models.DisputeTag{
		IPID:     ipID.Hex(),
		Tag:      req.Tag,
		Evidence: req.Evidence,
		TaggedBy: caller.Hex(),
	}
	err := s.exec.Execute(ctx, "tagIP", func(ctx context.Context) error {
		if err := database.Conn(ctx, s.db).Create(dispute).Error; err != nil {
			return fmt.Errorf("failed to tag IP: %w", err)
		}
		return s.events.Emit(ctx, models.EventDisputeTagged, ipID, caller, map[string]interface{}{
			"dispute_id": dispute.ID,
			"tag":        req.Tag,
		})
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *DisputeService) ResolveDispute(ctx context.Context, caller common.Address, disputeID uint) error {
	if err := s.modules.RequireAdmin(caller); err != nil {
		return err
	}

	return s.exec.Execute(ctx, "resolveDispute", func(ctx context.Context) error {
		conn := database.Conn(ctx, s.db)

		var dispute models.DisputeTag
		if err := conn.First(&dispute, disputeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("dispute %d: %w", disputeID, ErrDisputeNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}
		if dispute.Resolved {
			return nil
		}

		if err := conn.Model(&dispute).Update("resolved", true).Error; err != nil {
			return fmt.Errorf("failed to resolve dispute: %w", err)
		}
		return s.events.Emit(ctx, models.EventDisputeResolved, common.HexToAddress(dispute.IPID), caller, map[string]interface{}{
			"dispute_id": dispute.ID,
		})
	})
}

func (s *DisputeService) IsTagged(ctx context.Context, ipID common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.DisputeTag{}).
		Where("ip_id = ? AND resolved = ?", ipID.Hex(), false).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *DisputeService) GetDisputes(ctx context.Context, ipID common.Address) ([]models.DisputeTag, error) {
	var disputes []models.DisputeTag
	if err := database.Conn(ctx, s.db).Where("ip_id = ?", ipID.Hex()).Order("id").Find(&disputes).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch disputes: %w", err)
	}
	return disputes, nil
}
