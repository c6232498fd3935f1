// internal/services/license_token_service.go
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

// LicenseTokenService is the license NFT ledger. Token ids are sequential from 1.
type LicenseTokenService struct {
	db       *gorm.DB
	exec     *Executor
	events   *EventService
	modules  *ModuleRegistryService
	ips      IPAssetRegistry
	disputes DisputeOracle
	clock    Clock
}

type LicenseTokenSearchParams struct {
	utils.PaginationParams
	Owner        *common.Address `json:"owner,omitempty"`
	LicensorIPID *common.Address `json:"licensor_ip_id,omitempty"`
}

// derivativeLicenses is what a set of license tokens entitles a child to.
type derivativeLicenses struct {
	template  common.Address
	licensors []common.Address
	termsIDs  []uint64
}

func NewLicenseTokenService(db *gorm.DB, exec *Executor, events *EventService, modules *ModuleRegistryService, ips IPAssetRegistry, disputes DisputeOracle, clock Clock) *LicenseTokenService {
	return &LicenseTokenService{
		db:       db,
		exec:     exec,
		events:   events,
		modules:  modules,
		ips:      ips,
		disputes: disputes,
		clock:    clock,
	}
}

func (s *LicenseTokenService) mintLicenseTokens(ctx context.Context, licensorIPID, template common.Address, termsID, amount uint64, receiver common.Address) (uint64, error) {
	tmpl, err := s.modules.LicenseTemplate(ctx, template)
	if err != nil {
		return 0, err
	}
	now := unixNow(s.clock)
	expiresAt, err := tmpl.GetExpireTime(ctx, termsID, now)
	if err != nil {
		return 0, err
	}
	transferable, err := tmpl.IsLicenseTransferable(ctx, termsID)
	if err != nil {
		return 0, err
	}

	conn := database.Conn(ctx, s.db)
	var lastID uint64
	if err := conn.Model(&models.LicenseToken{}).Select("COALESCE(MAX(token_id), 0)").Scan(&lastID).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	startID := lastID + 1

	tokens := make([]models.LicenseToken, 0, amount)
	for i := uint64(0); i < amount; i++ {
		tokens = append(tokens, models.LicenseToken{
			TokenID:      startID + i,
			LicensorIPID: licensorIPID.Hex(),
			Template:     template.Hex(),
			TermsID:      termsID,
			Owner:        receiver.Hex(),
			Transferable: transferable,
			ExpiresAt:    expiresAt,
			MintedAt:     now,
		})
	}
	if err := conn.CreateInBatches(tokens, 100).Error; err != nil {
		return 0, fmt.Errorf("failed to mint license tokens: %w", err)
	}
	return startID, nil
}

func (s *LicenseTokenService) GetLicenseToken(ctx context.Context, tokenID uint64) (*models.LicenseToken, error) {
	var token models.LicenseToken
	if err := database.Conn(ctx, s.db).Where("token_id = ?", tokenID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokenNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &token, nil
}

func (s *LicenseTokenService) SearchLicenseTokens(ctx context.Context, params LicenseTokenSearchParams) ([]models.LicenseToken, int64, error) {
	query := database.Conn(ctx, s.db).Model(&models.LicenseToken{}).Where("burned = ?", false)
	if params.Owner != nil {
		query = query.Where("owner = ?", params.Owner.Hex())
	}
	if params.LicensorIPID != nil {
		query = query.Where("licensor_ip_id = ?", params.LicensorIPID.Hex())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count license tokens: %w", err)
	}

	var tokens []models.LicenseToken
	if err := utils.Paginate(query, params.PaginationParams, "token_id", "minted_at", "expires_at").Find(&tokens).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch license tokens: %w", err)
	}
	return tokens, total, nil
}

// IsLicenseTokenRevoked reports whether the token's licensor is under dispute.
func (s *LicenseTokenService) IsLicenseTokenRevoked(ctx context.Context, tokenID uint64) (bool, error) {
	token, err := s.GetLicenseToken(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return s.disputes.IsTagged(ctx, common.HexToAddress(token.LicensorIPID))
}

// validateLicenseTokensForDerivative checks each token is live and held by the caller,
// the child IP or its owner, and that all tokens share one template.
func (s *LicenseTokenService) validateLicenseTokensForDerivative(ctx context.Context, caller, childIPID common.Address, tokenIDs []uint64) (*derivativeLicenses, error) {
	if len(tokenIDs) == 0 {
		return nil, ErrNoLicenseTokens
	}

	childOwner, err := s.ips.OwnerOf(ctx, childIPID)
	if err != nil {
		return nil, err
	}

	now := unixNow(s.clock)
	licenses := &derivativeLicenses{}
	for i, tokenID := range tokenIDs {
		token, err := s.GetLicenseToken(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if token.Burned {
			return nil, fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokenBurned)
		}
		if token.ExpiresAt != 0 && token.ExpiresAt < now {
			return nil, fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokenExpired)
		}

		owner := common.HexToAddress(token.Owner)
		if owner != caller && owner != childOwner && owner != childIPID {
			return nil, fmt.Errorf("token %d: %w", tokenID, ErrNotLicenseTokenOwner)
		}

		revoked, err := s.disputes.IsTagged(ctx, common.HexToAddress(token.LicensorIPID))
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokenRevoked)
		}

		template := common.HexToAddress(token.Template)
		if i == 0 {
			licenses.template = template
		} else if template != licenses.template {
			return nil, fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokensTemplateMismatch)
		}
		licenses.licensors = append(licenses.licensors, common.HexToAddress(token.LicensorIPID))
		licenses.termsIDs = append(licenses.termsIDs, token.TermsID)
	}
	return licenses, nil
}

func (s *LicenseTokenService) burnLicenseTokens(ctx context.Context, tokenIDs []uint64) error {
	if err := database.Conn(ctx, s.db).Model(&models.LicenseToken{}).
		Where("token_id IN ?", tokenIDs).
		Update("burned", true).Error; err != nil {
		return fmt.Errorf("failed to burn license tokens: %w", err)
	}
	return nil
}

// TransferLicenseToken moves a token between accounts. Non-transferable tokens may
// only leave the licensor IP.
func (s *LicenseTokenService) TransferLicenseToken(ctx context.Context, caller common.Address, tokenID uint64, to common.Address) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	return s.exec.Execute(ctx, "transferLicenseToken", func(ctx context.Context) error {
		token, err := s.GetLicenseToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if token.Burned {
			return fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokenBurned)
		}
		if common.HexToAddress(token.Owner) != caller {
			return fmt.Errorf("token %d: %w", tokenID, ErrNotLicenseTokenOwner)
		}
		if !token.Transferable && caller != common.HexToAddress(token.LicensorIPID) {
			return fmt.Errorf("token %d: %w", tokenID, ErrLicenseTokenNotTransferable)
		}

		if err := database.Conn(ctx, s.db).Model(token).Update("owner", to.Hex()).Error; err != nil {
			return fmt.Errorf("failed to transfer license token: %w", err)
		}
		return s.events.Emit(ctx, models.EventLicenseTokenTransferred, common.HexToAddress(token.LicensorIPID), caller, map[string]interface{}{
			"token_id": tokenID,
			"from":     caller.Hex(),
			"to":       to.Hex(),
		})
	})
}
