// internal/services/royalty_service.go
package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/models"
)

// RoyaltyService is the royalty module: it keeps the policy and currency allow-lists,
// forwards licensing events to royalty policies and routes payments into vaults.
type RoyaltyService struct {
	db       *gorm.DB
	exec     *Executor
	events   *EventService
	modules  *ModuleRegistryService
	tokens   *TokenService
	vaults   *RoyaltyVaultService
	ips      IPAssetRegistry
	disputes DisputeOracle
}

type PayRoyaltyRequest struct {
	ReceiverIPID common.Address `json:"receiver_ip_id" binding:"required"`
	PayerIPID    common.Address `json:"payer_ip_id"`
	Token        common.Address `json:"token" binding:"required"`
	Amount       uint64         `json:"amount" binding:"required"`
}

func NewRoyaltyService(
	db *gorm.DB,
	exec *Executor,
	events *EventService,
	modules *ModuleRegistryService,
	tokens *TokenService,
	vaults *RoyaltyVaultService,
	ips IPAssetRegistry,
	disputes DisputeOracle,
) *RoyaltyService {
	return &RoyaltyService{
		db:       db,
		exec:     exec,
		events:   events,
		modules:  modules,
		tokens:   tokens,
		vaults:   vaults,
		ips:      ips,
		disputes: disputes,
	}
}

// WhitelistRoyaltyPolicy adds or removes a royalty policy. Admin only.
func (s *RoyaltyService) WhitelistRoyaltyPolicy(ctx context.Context, caller, policy common.Address, allowed bool) error {
	if allowed {
		return s.modules.RegisterModule(ctx, caller, policy, models.ModuleKindRoyaltyPolicy, "")
	}
	return s.modules.RemoveModule(ctx, caller, policy, models.ModuleKindRoyaltyPolicy)
}

// WhitelistRoyaltyToken adds or removes a currency token. Admin only.
func (s *RoyaltyService) WhitelistRoyaltyToken(ctx context.Context, caller, token common.Address, allowed bool) error {
	if allowed {
		return s.modules.RegisterModule(ctx, caller, token, models.ModuleKindCurrencyToken, "")
	}
	return s.modules.RemoveModule(ctx, caller, token, models.ModuleKindCurrencyToken)
}

// RegisterExternalRoyaltyPolicy lets anyone register a policy that is bound to an
// implementation with the royalty policy capability.
func (s *RoyaltyService) RegisterExternalRoyaltyPolicy(ctx context.Context, policy common.Address) error {
	impl, _ := s.modules.Implementation(policy)
	if _, ok := impl.(RoyaltyPolicy); !ok {
		return fmt.Errorf("%s: %w", policy.Hex(), ErrRoyaltyPolicyNotWhitelisted)
	}
	return s.exec.Execute(ctx, "registerExternalRoyaltyPolicy", func(ctx context.Context) error {
		whitelisted, err := s.modules.IsRegistered(ctx, models.ModuleKindRoyaltyPolicy, policy)
		if err != nil || whitelisted {
			return err
		}
		return s.modules.register(ctx, models.ModuleKindExternalRoyaltyPolicy, policy, "")
	})
}

func (s *RoyaltyService) IsWhitelistedRoyaltyToken(ctx context.Context, token common.Address) (bool, error) {
	return s.modules.IsRegistered(ctx, models.ModuleKindCurrencyToken, token)
}

func (s *RoyaltyService) onLicenseMinting(ctx context.Context, ipID, policy common.Address, royaltyPercent uint32, externalData []byte) error {
	impl, err := s.modules.RoyaltyPolicy(ctx, policy)
	if err != nil {
		return err
	}
	return impl.OnLicenseMinting(ctx, ipID, royaltyPercent, externalData)
}

func (s *RoyaltyService) onLinkToParents(ctx context.Context, ipID, policy common.Address, parentIPIDs []common.Address, royaltyPercents []uint32, externalData []byte) error {
	if len(parentIPIDs) == 0 {
		return ErrNoParentIP
	}
	impl, err := s.modules.RoyaltyPolicy(ctx, policy)
	if err != nil {
		return err
	}
	return impl.OnLinkToParents(ctx, ipID, parentIPIDs, royaltyPercents, externalData)
}

// PayRoyaltyOnBehalf pays revenue into the receiver's vault from the caller's balance.
// The receiver must already have a vault.
func (s *RoyaltyService) PayRoyaltyOnBehalf(ctx context.Context, caller common.Address, req *PayRoyaltyRequest) error {
	if req.Amount == 0 {
		return ErrZeroAmount
	}

	return s.exec.Execute(ctx, "payRoyaltyOnBehalf", func(ctx context.Context) error {
		registered, err := s.ips.IsRegistered(ctx, req.ReceiverIPID)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("%s: %w", req.ReceiverIPID.Hex(), ErrIPNotRegistered)
		}
		for _, ipID := range []common.Address{req.ReceiverIPID, req.PayerIPID} {
			if ipID == (common.Address{}) {
				continue
			}
			disputed, err := s.disputes.IsTagged(ctx, ipID)
			if err != nil {
				return err
			}
			if disputed {
				return fmt.Errorf("%s: %w", ipID.Hex(), ErrIPDisputed)
			}
		}

		if err := s.payToVault(ctx, req.ReceiverIPID, caller, req.Token, req.Amount); err != nil {
			return err
		}
		return s.events.Emit(ctx, models.EventRoyaltyPaid, req.ReceiverIPID, caller, map[string]interface{}{
			"payer_ip_id": req.PayerIPID.Hex(),
			"token":       req.Token.Hex(),
			"amount":      req.Amount,
		})
	})
}

// payLicenseMintingFee moves a minting fee from the payer into the licensor's vault,
// deploying a root vault under policy if the policy did not.
func (s *RoyaltyService) payLicenseMintingFee(ctx context.Context, receiverIPID, policy, payer, token common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	hasVault, err := s.vaults.HasVault(ctx, receiverIPID)
	if err != nil {
		return err
	}
	if !hasVault {
		if _, err := s.vaults.deployVault(ctx, receiverIPID, policy, 0, nil); err != nil {
			return err
		}
	}
	if err := s.payToVault(ctx, receiverIPID, payer, token, amount); err != nil {
		return err
	}
	return s.events.Emit(ctx, models.EventRoyaltyPaid, receiverIPID, payer, map[string]interface{}{
		"token":       token.Hex(),
		"amount":      amount,
		"minting_fee": true,
	})
}

// payToVault never deploys a vault; only royalty policies and minting fees do.
func (s *RoyaltyService) payToVault(ctx context.Context, receiverIPID, payer, token common.Address, amount uint64) error {
	whitelisted, err := s.IsWhitelistedRoyaltyToken(ctx, token)
	if err != nil {
		return err
	}
	if !whitelisted {
		return fmt.Errorf("%s: %w", token.Hex(), ErrCurrencyTokenNotWhitelisted)
	}

	vault, err := s.vaults.GetVault(ctx, receiverIPID)
	if err != nil {
		return err
	}

	if err := s.tokens.transfer(ctx, token, payer, common.HexToAddress(vault.Address), amount); err != nil {
		return err
	}
	return s.vaults.receiveRevenue(ctx, vault, token, amount)
}
