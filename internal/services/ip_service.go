// internal/services/ip_service.go
package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// IPService is the built-in identity registry and access controller: an IP is
// identified by an address derived from the NFT it wraps and is owned by one account.
type IPService struct {
	db     *gorm.DB
	exec   *Executor
	events *EventService
	clock  Clock
}

type RegisterIPRequest struct {
	ChainID       uint64 `json:"chain_id" validate:"required"`
	TokenContract string `json:"token_contract" validate:"required,eth_addr,nonzero_addr"`
	TokenID       uint64 `json:"token_id"`
	Name          string `json:"name,omitempty" validate:"max=255"`
}

type SetPermissionRequest struct {
	Signer  string `json:"signer" validate:"required,eth_addr,nonzero_addr"`
	Action  string `json:"action" validate:"permission_action"`
	Allowed bool   `json:"allowed"`
}

func NewIPService(db *gorm.DB, exec *Executor, events *EventService, clock Clock) *IPService {
	return &IPService{
		db:     db,
		exec:   exec,
		events: events,
		clock:  clock,
	}
}

// IPID derives the IP identifier of an NFT.
func IPID(chainID uint64, tokenContract common.Address, tokenID uint64) common.Address {
	hash := crypto.Keccak256(
		common.LeftPadBytes(binary.BigEndian.AppendUint64(nil, chainID), 32),
		tokenContract.Bytes(),
		common.LeftPadBytes(binary.BigEndian.AppendUint64(nil, tokenID), 32),
	)
	return common.BytesToAddress(hash[12:])
}

func (s *IPService) RegisterIP(ctx context.Context, owner common.Address, req *RegisterIPRequest) (*models.IPAsset, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}

	ipID := IPID(req.ChainID, common.HexToAddress(req.TokenContract), req.TokenID)
	asset := &models.IPAsset{
		IPID:          ipID.Hex(),
		Owner:         owner.Hex(),
		ChainID:       req.ChainID,
		TokenContract: common.HexToAddress(req.TokenContract).Hex(),
		TokenID:       req.TokenID,
		Name:          req.Name,
	}

	err := s.exec.Execute(ctx, "registerIP", func(ctx context.Context) error {
		registered, err := s.IsRegistered(ctx, ipID)
		if err != nil {
			return err
		}
		if registered {
			return fmt.Errorf("%s: %w", ipID.Hex(), ErrIPAlreadyRegistered)
		}

		asset.RegisteredAt = unixNow(s.clock)
		if err := database.Conn(ctx, s.db).Create(asset).Error; err != nil {
			return fmt.Errorf("failed to register IP: %w", err)
		}

		return s.events.Emit(ctx, models.EventIPRegistered, ipID, owner, map[string]interface{}{
			"chain_id":       req.ChainID,
			"token_contract": asset.TokenContract,
			"token_id":       req.TokenID,
		})
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *IPService) GetIPAsset(ctx context.Context, ipID common.Address) (*models.IPAsset, error) {
	var asset models.IPAsset
	if err := database.Conn(ctx, s.db).Where("ip_id = ?", ipID.Hex()).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIPAssetNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &asset, nil
}

func (s *IPService) IsRegistered(ctx context.Context, ipID common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.IPAsset{}).Where("ip_id = ?", ipID.Hex()).Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *IPService) OwnerOf(ctx context.Context, ipID common.Address) (common.Address, error) {
	asset, err := s.GetIPAsset(ctx, ipID)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(asset.Owner), nil
}

// HasPermission allows the IP itself, its owner, and signers granted the action
// (or every action) by the owner.
func (s *IPService) HasPermission(ctx context.Context, ipID, caller common.Address, action string) (bool, error) {
	if caller == (common.Address{}) {
		return false, nil
	}
	if caller == ipID {
		return true, nil
	}

	owner, err := s.OwnerOf(ctx, ipID)
	if err != nil {
		if errors.Is(err, ErrIPAssetNotFound) {
			return false, nil
		}
		return false, err
	}
	if owner == caller {
		return true, nil
	}

	var grants []models.IPPermission
	if err := database.Conn(ctx, s.db).
		Where("ip_id = ? AND signer = ? AND action IN (?, ?)", ipID.Hex(), caller.Hex(), action, "").
		Find(&grants).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}

	// A specific grant overrides the wildcard.
	allowed := false
	for _, grant := range grants {
		if grant.Action == action {
			return grant.Allowed, nil
		}
		allowed = grant.Allowed
	}
	return allowed, nil
}

func (s *IPService) SetPermission(ctx context.Context, caller, ipID common.Address, req *SetPermissionRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return s.exec.Execute(ctx, "setPermission", func(ctx context.Context) error {
		owner, err := s.OwnerOf(ctx, ipID)
		if err != nil {
			return err
		}
		if caller != owner && caller != ipID {
			return fmt.Errorf("only the IP owner can grant permissions: %w", ErrPermissionDenied)
		}

		signer := common.HexToAddress(req.Signer).Hex()
		conn := database.Conn(ctx, s.db)

		var grant models.IPPermission
		err = conn.Where("ip_id = ? AND signer = ? AND action = ?", ipID.Hex(), signer, req.Action).First(&grant).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			grant = models.IPPermission{IPID: ipID.Hex(), Signer: signer, Action: req.Action, Allowed: req.Allowed}
			if err := conn.Create(&grant).Error; err != nil {
				return fmt.Errorf("failed to store permission: %w", err)
			}
		case err != nil:
			return fmt.Errorf("database error: %w", err)
		default:
			if err := conn.Model(&grant).Update("allowed", req.Allowed).Error; err != nil {
				return fmt.Errorf("failed to store permission: %w", err)
			}
		}
		return nil
	})
}

func (s *IPService) requirePermission(ctx context.Context, ipID, caller common.Address, action string) error {
	allowed, err := s.HasPermission(ctx, ipID, caller, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%s on %s by %s: %w", action, ipID.Hex(), caller.Hex(), ErrPermissionDenied)
	}
	return nil
}
