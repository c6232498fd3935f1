// internal/services/licensing_service.go
package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/models"
)

// GroupLookup reports whether an IP is a group IP.
type GroupLookup interface {
	IsGroup(ctx context.Context, ipID common.Address) (bool, error)
}

// LicensingService is the licensing module. Each entry point validates, settles
// minting fees through the royalty module and commits registry changes in one
// operation.
type LicensingService struct {
	exec     *Executor
	events   *EventService
	modules  *ModuleRegistryService
	registry *LicenseRegistryService
	tokens   *LicenseTokenService
	royalty  *RoyaltyService
	ips      IPAssetRegistry
	access   AccessController
	disputes DisputeOracle
	groups   GroupLookup
}

type AttachLicenseTermsRequest struct {
	IPID            common.Address `json:"ip_id" binding:"required"`
	LicenseTemplate common.Address `json:"license_template" binding:"required"`
	LicenseTermsID  uint64         `json:"license_terms_id" binding:"required"`
}

type MintLicenseTokensRequest struct {
	LicensorIPID    common.Address `json:"licensor_ip_id" binding:"required"`
	LicenseTemplate common.Address `json:"license_template" binding:"required"`
	LicenseTermsID  uint64         `json:"license_terms_id" binding:"required"`
	Amount          uint64         `json:"amount"`
	Receiver        common.Address `json:"receiver"`
	RoyaltyContext  []byte         `json:"royalty_context,omitempty"`
}

type RegisterDerivativeRequest struct {
	ChildIPID       common.Address   `json:"child_ip_id" binding:"required"`
	ParentIPIDs     []common.Address `json:"parent_ip_ids"`
	LicenseTermsIDs []uint64         `json:"license_terms_ids"`
	LicenseTemplate common.Address   `json:"license_template" binding:"required"`
	RoyaltyContext  []byte           `json:"royalty_context,omitempty"`
}

type RegisterDerivativeWithTokensRequest struct {
	ChildIPID       common.Address `json:"child_ip_id" binding:"required"`
	LicenseTokenIDs []uint64       `json:"license_token_ids"`
	RoyaltyContext  []byte         `json:"royalty_context,omitempty"`
}

// SetLicensingConfigRequest targets one license, or the whole IP when the template
// is zero and the terms id is 0.
type SetLicensingConfigRequest struct {
	IPID            common.Address `json:"ip_id" binding:"required"`
	LicenseTemplate common.Address `json:"license_template"`
	LicenseTermsID  uint64         `json:"license_terms_id"`
	LicensingConfigParams
}

// MintingFee is a fee quote.
type MintingFee struct {
	Currency common.Address `json:"currency"`
	Amount   uint64         `json:"amount"`
}

func NewLicensingService(
	exec *Executor,
	events *EventService,
	modules *ModuleRegistryService,
	registry *LicenseRegistryService,
	tokens *LicenseTokenService,
	royalty *RoyaltyService,
	ips IPAssetRegistry,
	access AccessController,
	disputes DisputeOracle,
	groups GroupLookup,
) *LicensingService {
	return &LicensingService{
		exec:     exec,
		events:   events,
		modules:  modules,
		registry: registry,
		tokens:   tokens,
		royalty:  royalty,
		ips:      ips,
		access:   access,
		disputes: disputes,
		groups:   groups,
	}
}

func (s *LicensingService) AttachLicenseTerms(ctx context.Context, caller common.Address, req *AttachLicenseTermsRequest) error {
	return s.exec.Execute(ctx, "attachLicenseTerms", func(ctx context.Context) error {
		if err := s.requireActiveIP(ctx, req.IPID, ErrIPNotRegistered); err != nil {
			return err
		}
		if err := s.requirePermission(ctx, req.IPID, caller, ActionAttachLicenseTerms); err != nil {
			return err
		}

		if err := s.registry.attachLicenseTermsToIP(ctx, req.IPID, req.LicenseTemplate, req.LicenseTermsID); err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"ip_id":    req.IPID.Hex(),
			"template": req.LicenseTemplate.Hex(),
			"terms_id": req.LicenseTermsID,
		}).Debug("License terms attached")

		return s.events.Emit(ctx, models.EventLicenseTermsAttached, req.IPID, caller, map[string]interface{}{
			"template": req.LicenseTemplate.Hex(),
			"terms_id": req.LicenseTermsID,
		})
	})
}

// MintLicenseTokens mints amount sequential license tokens to the receiver and
// returns the first token id.
func (s *LicensingService) MintLicenseTokens(ctx context.Context, caller common.Address, req *MintLicenseTokensRequest) (uint64, error) {
	if req.Amount == 0 {
		return 0, ErrZeroAmount
	}
	if req.Receiver == (common.Address{}) {
		return 0, ErrZeroAddress
	}

	var startTokenID uint64
	err := s.exec.Execute(ctx, "mintLicenseTokens", func(ctx context.Context) error {
		if err := s.requireActiveIP(ctx, req.LicensorIPID, ErrLicensorIPNotRegistered); err != nil {
			return err
		}

		isMintedByOwner, err := s.access.HasPermission(ctx, req.LicensorIPID, caller, ActionMintLicenseTokens)
		if err != nil {
			return err
		}
		config, err := s.registry.VerifyMintLicenseToken(ctx, req.LicensorIPID, req.LicenseTemplate, req.LicenseTermsID, isMintedByOwner)
		if err != nil {
			return err
		}
		tmpl, err := s.modules.LicenseTemplate(ctx, req.LicenseTemplate)
		if err != nil {
			return err
		}

		hook, err := s.configHook(ctx, config)
		if err != nil {
			return err
		}
		var hookFee uint64
		if hook != nil {
			hookFee, err = hook.BeforeMintLicenseTokens(ctx, hookMintRequest(caller, req, config))
			if err != nil {
				return s.hookDenied(config, err)
			}
		}

		if _, err := s.payMintingFee(ctx, tmpl, req.LicensorIPID, req.LicenseTermsID, req.Amount, caller, config, hook != nil, hookFee, req.RoyaltyContext); err != nil {
			return err
		}

		ok, err := tmpl.VerifyMintLicenseToken(ctx, req.LicenseTermsID, req.Receiver, req.LicensorIPID, req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("mint terms %d from %s: %w", req.LicenseTermsID, req.LicensorIPID.Hex(), ErrLicenseDenied)
		}

		startTokenID, err = s.tokens.mintLicenseTokens(ctx, req.LicensorIPID, req.LicenseTemplate, req.LicenseTermsID, req.Amount, req.Receiver)
		if err != nil {
			return err
		}

		return s.events.Emit(ctx, models.EventLicenseTokensMinted, req.LicensorIPID, caller, map[string]interface{}{
			"template":       req.LicenseTemplate.Hex(),
			"terms_id":       req.LicenseTermsID,
			"amount":         req.Amount,
			"receiver":       req.Receiver.Hex(),
			"start_token_id": startTokenID,
		})
	})
	if err != nil {
		return 0, err
	}
	return startTokenID, nil
}

// RegisterDerivative links the child to its parents under attached terms, paying one
// license worth of minting fee to each parent.
func (s *LicensingService) RegisterDerivative(ctx context.Context, caller common.Address, req *RegisterDerivativeRequest) error {
	if len(req.ParentIPIDs) != len(req.LicenseTermsIDs) {
		return ErrParentTermsLengthMismatch
	}
	if len(req.ParentIPIDs) == 0 {
		return ErrNoParentIP
	}

	return s.exec.Execute(ctx, "registerDerivative", func(ctx context.Context) error {
		if err := s.requireDerivativeCandidate(ctx, caller, req.ChildIPID); err != nil {
			return err
		}
		for _, parentIPID := range req.ParentIPIDs {
			registered, err := s.ips.IsRegistered(ctx, parentIPID)
			if err != nil {
				return err
			}
			if !registered {
				return fmt.Errorf("parent %s: %w", parentIPID.Hex(), ErrIPNotRegistered)
			}
		}

		tmpl, err := s.modules.LicenseTemplate(ctx, req.LicenseTemplate)
		if err != nil {
			return err
		}
		if err := s.verifyDerivative(ctx, tmpl, caller, req.ChildIPID, req.ParentIPIDs, req.LicenseTermsIDs); err != nil {
			return err
		}

		// Hooks run before the graph changes; their fees are settled afterwards.
		configs := make([]*models.LicensingConfig, len(req.ParentIPIDs))
		hookFees := make([]uint64, len(req.ParentIPIDs))
		hooked := make([]bool, len(req.ParentIPIDs))
		for i, parentIPID := range req.ParentIPIDs {
			config, err := s.registry.GetLicensingConfig(ctx, parentIPID, req.LicenseTemplate, req.LicenseTermsIDs[i])
			if err != nil {
				return err
			}
			configs[i] = config

			hook, err := s.configHook(ctx, config)
			if err != nil {
				return err
			}
			if hook == nil {
				continue
			}
			hooked[i] = true
			hookFees[i], err = hook.BeforeRegisterDerivative(ctx, HookDerivativeRequest{
				Caller:     caller,
				ChildIPID:  req.ChildIPID,
				ParentIPID: parentIPID,
				Template:   req.LicenseTemplate,
				TermsID:    req.LicenseTermsIDs[i],
				HookData:   config.HookData,
			})
			if err != nil {
				return s.hookDenied(config, err)
			}
		}

		policy, percents, err := s.commonRoyaltyPolicy(ctx, tmpl, req.LicenseTermsIDs)
		if err != nil {
			return err
		}

		if err := s.registry.registerDerivativeIP(ctx, req.ChildIPID, req.ParentIPIDs, req.LicenseTemplate, req.LicenseTermsIDs, false); err != nil {
			return err
		}

		for i, parentIPID := range req.ParentIPIDs {
			if _, err := s.payMintingFee(ctx, tmpl, parentIPID, req.LicenseTermsIDs[i], 1, caller, configs[i], hooked[i], hookFees[i], req.RoyaltyContext); err != nil {
				return err
			}
		}
		if policy != (common.Address{}) {
			if err := s.royalty.onLinkToParents(ctx, req.ChildIPID, policy, req.ParentIPIDs, percents, req.RoyaltyContext); err != nil {
				return err
			}
		}

		return s.emitDerivativeRegistered(ctx, caller, req.ChildIPID, req.ParentIPIDs, req.LicenseTemplate, req.LicenseTermsIDs, nil)
	})
}

// RegisterDerivativeWithLicenseTokens registers the child under the licenses carried
// by the tokens and burns them. Fees were paid when the tokens were minted.
func (s *LicensingService) RegisterDerivativeWithLicenseTokens(ctx context.Context, caller common.Address, req *RegisterDerivativeWithTokensRequest) error {
	if len(req.LicenseTokenIDs) == 0 {
		return ErrNoLicenseTokens
	}

	return s.exec.Execute(ctx, "registerDerivativeWithLicenseTokens", func(ctx context.Context) error {
		if err := s.requireDerivativeCandidate(ctx, caller, req.ChildIPID); err != nil {
			return err
		}

		licenses, err := s.tokens.validateLicenseTokensForDerivative(ctx, caller, req.ChildIPID, req.LicenseTokenIDs)
		if err != nil {
			return err
		}
		tmpl, err := s.modules.LicenseTemplate(ctx, licenses.template)
		if err != nil {
			return err
		}
		if err := s.verifyDerivative(ctx, tmpl, caller, req.ChildIPID, licenses.licensors, licenses.termsIDs); err != nil {
			return err
		}

		policy, percents, err := s.commonRoyaltyPolicy(ctx, tmpl, licenses.termsIDs)
		if err != nil {
			return err
		}

		if err := s.registry.registerDerivativeIP(ctx, req.ChildIPID, licenses.licensors, licenses.template, licenses.termsIDs, true); err != nil {
			return err
		}
		if policy != (common.Address{}) {
			if err := s.royalty.onLinkToParents(ctx, req.ChildIPID, policy, licenses.licensors, percents, req.RoyaltyContext); err != nil {
				return err
			}
		}
		if err := s.tokens.burnLicenseTokens(ctx, req.LicenseTokenIDs); err != nil {
			return err
		}

		return s.emitDerivativeRegistered(ctx, caller, req.ChildIPID, licenses.licensors, licenses.template, licenses.termsIDs, req.LicenseTokenIDs)
	})
}

func (s *LicensingService) SetLicensingConfig(ctx context.Context, caller common.Address, req *SetLicensingConfigRequest) error {
	perIP := req.LicenseTemplate == (common.Address{}) && req.LicenseTermsID == 0
	if !perIP && (req.LicenseTemplate == (common.Address{}) || req.LicenseTermsID == 0) {
		return ErrInvalidLicenseTerms
	}

	return s.exec.Execute(ctx, "setLicensingConfig", func(ctx context.Context) error {
		if err := s.requireActiveIP(ctx, req.IPID, ErrIPNotRegistered); err != nil {
			return err
		}
		if err := s.requirePermission(ctx, req.IPID, caller, ActionSetLicensingConfig); err != nil {
			return err
		}
		if req.HookAddress != (common.Address{}) {
			if _, err := s.modules.LicensingHook(ctx, req.HookAddress); err != nil {
				return err
			}
		}

		if perIP {
			if err := s.registry.setLicensingConfigForIP(ctx, req.IPID, req.LicensingConfigParams); err != nil {
				return err
			}
		} else {
			tmpl, err := s.modules.LicenseTemplate(ctx, req.LicenseTemplate)
			if err != nil {
				return err
			}
			if req.IsSet && req.MintingFee > 0 {
				info, err := tmpl.GetRoyaltyPolicy(ctx, req.LicenseTermsID)
				if err != nil {
					return err
				}
				if info.Policy == (common.Address{}) {
					return ErrRoyaltyPolicyRequiredForMintingFee
				}
			}
			if err := s.registry.setLicensingConfigForLicense(ctx, req.IPID, req.LicenseTemplate, req.LicenseTermsID, req.LicensingConfigParams); err != nil {
				return err
			}
		}

		return s.events.Emit(ctx, models.EventLicensingConfigSet, req.IPID, caller, map[string]interface{}{
			"template":    req.LicenseTemplate.Hex(),
			"terms_id":    req.LicenseTermsID,
			"is_set":      req.IsSet,
			"minting_fee": req.MintingFee,
			"hook":        req.HookAddress.Hex(),
		})
	})
}

// PredictMintingLicenseFee quotes the fee MintLicenseTokens would charge the caller,
// without side effects.
func (s *LicensingService) PredictMintingLicenseFee(ctx context.Context, caller common.Address, req *MintLicenseTokensRequest) (*MintingFee, error) {
	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}

	tmpl, err := s.modules.LicenseTemplate(ctx, req.LicenseTemplate)
	if err != nil {
		return nil, err
	}
	info, err := tmpl.GetRoyaltyPolicy(ctx, req.LicenseTermsID)
	if err != nil {
		return nil, err
	}
	config, err := s.registry.GetLicensingConfig(ctx, req.LicensorIPID, req.LicenseTemplate, req.LicenseTermsID)
	if err != nil {
		return nil, err
	}

	hook, err := s.configHook(ctx, config)
	if err != nil {
		return nil, err
	}
	var hookFee uint64
	if hook != nil {
		hookFee, err = hook.CalculateMintingFee(ctx, hookMintRequest(caller, req, config))
		if err != nil {
			return nil, s.hookDenied(config, err)
		}
	}

	fee, err := mintingFee(info, config, hook != nil, hookFee, req.Amount)
	if err != nil {
		return nil, err
	}
	return &MintingFee{Currency: info.Currency, Amount: fee}, nil
}

// mintingFee applies the fee priority: a hook's fee, else the config override, else
// the terms' default, the last two per license. Terms without a royalty policy are free.
func mintingFee(info RoyaltyPolicyInfo, config *models.LicensingConfig, hooked bool, hookFee, amount uint64) (uint64, error) {
	if info.Policy == (common.Address{}) {
		return 0, nil
	}
	switch {
	case hooked:
		return hookFee, nil
	case config != nil && config.IsSet:
		return mulAmount(config.MintingFee, amount)
	default:
		return mulAmount(info.MintingFee, amount)
	}
}

func (s *LicensingService) payMintingFee(
	ctx context.Context,
	tmpl LicenseTemplate,
	licensorIPID common.Address,
	termsID, amount uint64,
	payer common.Address,
	config *models.LicensingConfig,
	hooked bool,
	hookFee uint64,
	royaltyContext []byte,
) (uint64, error) {
	info, err := tmpl.GetRoyaltyPolicy(ctx, termsID)
	if err != nil {
		return 0, err
	}
	if info.Policy == (common.Address{}) {
		return 0, nil
	}

	fee, err := mintingFee(info, config, hooked, hookFee, amount)
	if err != nil {
		return 0, err
	}
	if err := s.royalty.onLicenseMinting(ctx, licensorIPID, info.Policy, info.RoyaltyPercent, royaltyContext); err != nil {
		return 0, err
	}
	if err := s.royalty.payLicenseMintingFee(ctx, licensorIPID, info.Policy, payer, info.Currency, fee); err != nil {
		return 0, err
	}
	return fee, nil
}

// commonRoyaltyPolicy returns the royalty policy shared by all terms with their
// royalty percentages. Terms must agree on the policy.
func (s *LicensingService) commonRoyaltyPolicy(ctx context.Context, tmpl LicenseTemplate, termsIDs []uint64) (common.Address, []uint32, error) {
	var policy common.Address
	percents := make([]uint32, len(termsIDs))
	for i, termsID := range termsIDs {
		info, err := tmpl.GetRoyaltyPolicy(ctx, termsID)
		if err != nil {
			return common.Address{}, nil, err
		}
		if i == 0 {
			policy = info.Policy
		} else if info.Policy != policy {
			return common.Address{}, nil, ErrIncompatibleRoyaltyPolicy
		}
		percents[i] = info.RoyaltyPercent
	}
	return policy, percents, nil
}

func (s *LicensingService) verifyDerivative(ctx context.Context, tmpl LicenseTemplate, licensee, childIPID common.Address, parentIPIDs []common.Address, termsIDs []uint64) error {
	compatible, err := tmpl.VerifyCompatibleLicenses(ctx, termsIDs)
	if err != nil {
		return err
	}
	if !compatible {
		return ErrLicenseTermsNotCompatible
	}

	ok, err := tmpl.VerifyRegisterDerivativeForAllParents(ctx, childIPID, parentIPIDs, termsIDs, licensee)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("derivative %s: %w", childIPID.Hex(), ErrLicenseDenied)
	}
	return nil
}

func (s *LicensingService) requireDerivativeCandidate(ctx context.Context, caller, childIPID common.Address) error {
	if err := s.requireActiveIP(ctx, childIPID, ErrIPNotRegistered); err != nil {
		return err
	}
	if err := s.requirePermission(ctx, childIPID, caller, ActionRegisterDerivative); err != nil {
		return err
	}
	isGroup, err := s.groups.IsGroup(ctx, childIPID)
	if err != nil {
		return err
	}
	if isGroup {
		return fmt.Errorf("%s: %w", childIPID.Hex(), ErrGroupCannotBeDerivative)
	}
	return nil
}

// requireActiveIP fails with notRegistered for unknown IPs and ErrIPDisputed for
// tagged ones.
func (s *LicensingService) requireActiveIP(ctx context.Context, ipID common.Address, notRegistered error) error {
	registered, err := s.ips.IsRegistered(ctx, ipID)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%s: %w", ipID.Hex(), notRegistered)
	}
	disputed, err := s.disputes.IsTagged(ctx, ipID)
	if err != nil {
		return err
	}
	if disputed {
		return fmt.Errorf("%s: %w", ipID.Hex(), ErrIPDisputed)
	}
	return nil
}

func (s *LicensingService) requirePermission(ctx context.Context, ipID, caller common.Address, action string) error {
	allowed, err := s.access.HasPermission(ctx, ipID, caller, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%s on %s by %s: %w", action, ipID.Hex(), caller.Hex(), ErrPermissionDenied)
	}
	return nil
}

func (s *LicensingService) configHook(ctx context.Context, config *models.LicensingConfig) (LicensingHook, error) {
	if config == nil || config.HookAddress == "" {
		return nil, nil
	}
	return s.modules.LicensingHook(ctx, common.HexToAddress(config.HookAddress))
}

func hookMintRequest(caller common.Address, req *MintLicenseTokensRequest, config *models.LicensingConfig) HookMintRequest {
	return HookMintRequest{
		Caller:       caller,
		LicensorIPID: req.LicensorIPID,
		Template:     req.LicenseTemplate,
		TermsID:      req.LicenseTermsID,
		Amount:       req.Amount,
		Receiver:     req.Receiver,
		HookData:     config.HookData,
	}
}

// hookDenied logs the hook's own error and reports a denial.
func (s *LicensingService) hookDenied(config *models.LicensingConfig, err error) error {
	logrus.WithFields(logrus.Fields{
		"hook":     config.HookAddress,
		"ip_id":    config.IPID,
		"terms_id": config.TermsID,
	}).WithError(err).Warn("Licensing hook rejected the operation")
	return ErrLicensingHookDenied
}

func (s *LicensingService) emitDerivativeRegistered(ctx context.Context, caller, childIPID common.Address, parentIPIDs []common.Address, template common.Address, termsIDs, tokenIDs []uint64) error {
	parents := make([]string, 0, len(parentIPIDs))
	for _, parentIPID := range parentIPIDs {
		parents = append(parents, parentIPID.Hex())
	}
	data := map[string]interface{}{
		"parent_ip_ids": parents,
		"template":      template.Hex(),
		"terms_ids":     termsIDs,
	}
	if len(tokenIDs) > 0 {
		data["license_token_ids"] = tokenIDs
	}
	return s.events.Emit(ctx, models.EventDerivativeRegistered, childIPID, caller, data)
}
