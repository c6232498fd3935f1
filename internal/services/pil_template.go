// internal/services/pil_template.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

// PILTerms is a set of Programmable IP License terms. Percentages are in parts of
// TotalRoyaltyShares.
type PILTerms struct {
	Transferable              bool           `json:"transferable"`
	RoyaltyPolicy             common.Address `json:"royalty_policy"`
	DefaultMintingFee         uint64         `json:"default_minting_fee"`
	Expiration                uint64         `json:"expiration"`
	CommercialUse             bool           `json:"commercial_use"`
	CommercialAttribution     bool           `json:"commercial_attribution"`
	CommercializerChecker     common.Address `json:"commercializer_checker"`
	CommercializerCheckerData []byte         `json:"commercializer_checker_data"`
	CommercialRevShare        uint32         `json:"commercial_rev_share"`
	CommercialRevCeiling      uint64         `json:"commercial_rev_ceiling"`
	DerivativesAllowed        bool           `json:"derivatives_allowed"`
	DerivativesAttribution    bool           `json:"derivatives_attribution"`
	DerivativesApproval       bool           `json:"derivatives_approval"`
	DerivativesReciprocal     bool           `json:"derivatives_reciprocal"`
	DerivativeRevCeiling      uint64         `json:"derivative_rev_ceiling"`
	Currency                  common.Address `json:"currency"`
	URI                       string         `json:"uri"`
}

// NonCommercialSocialRemixingTerms allows free, attributed, non-commercial remixing.
func NonCommercialSocialRemixingTerms() PILTerms {
	return PILTerms{
		Transferable:           true,
		DerivativesAllowed:     true,
		DerivativesAttribution: true,
		DerivativesReciprocal:  true,
	}
}

// Hash is the content address of the terms.
func (t PILTerms) Hash() common.Hash {
	if len(t.CommercializerCheckerData) == 0 {
		t.CommercializerCheckerData = nil
	}
	data, _ := json.Marshal(t)
	return crypto.Keccak256Hash(data)
}

type SetApprovalRequest struct {
	ParentIPID common.Address `json:"parent_ip_id" binding:"required"`
	TermsID    uint64         `json:"terms_id" binding:"required"`
	ChildIPID  common.Address `json:"child_ip_id" binding:"required"`
	Approved   bool           `json:"approved"`
}

// PILTemplate is the built-in license template: it stores PIL terms and verifies
// minting and derivative registration against them.
type PILTemplate struct {
	db       *gorm.DB
	exec     *Executor
	events   *EventService
	modules  *ModuleRegistryService
	registry *LicenseRegistryService
	access   AccessController
	address  common.Address
}

func NewPILTemplate(
	db *gorm.DB,
	exec *Executor,
	events *EventService,
	modules *ModuleRegistryService,
	registry *LicenseRegistryService,
	access AccessController,
	address common.Address,
) *PILTemplate {
	return &PILTemplate{
		db:       db,
		exec:     exec,
		events:   events,
		modules:  modules,
		registry: registry,
		access:   access,
		address:  address,
	}
}

func (t *PILTemplate) Address() common.Address {
	return t.address
}

// RegisterLicenseTerms stores terms and returns their id. Registering identical
// terms again returns the existing id.
func (t *PILTemplate) RegisterLicenseTerms(ctx context.Context, caller common.Address, terms PILTerms) (uint64, error) {
	var termsID uint64
	err := t.exec.Execute(ctx, "registerLicenseTerms", func(ctx context.Context) error {
		id, created, err := t.registerLicenseTerms(ctx, terms)
		if err != nil {
			return err
		}
		termsID = id
		if !created {
			return nil
		}
		return t.events.Emit(ctx, models.EventLicenseTermsRegistered, common.Address{}, caller, map[string]interface{}{
			"template": t.address.Hex(),
			"terms_id": id,
			"hash":     terms.Hash().Hex(),
		})
	})
	if err != nil {
		return 0, err
	}
	return termsID, nil
}

func (t *PILTemplate) registerLicenseTerms(ctx context.Context, terms PILTerms) (uint64, bool, error) {
	if err := t.validateTerms(ctx, terms); err != nil {
		return 0, false, err
	}

	hash := terms.Hash().Hex()
	conn := database.Conn(ctx, t.db)

	var existing models.LicenseTerms
	err := conn.Where("template = ? AND hash = ?", t.address.Hex(), hash).First(&existing).Error
	if err == nil {
		return existing.TermsID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, fmt.Errorf("database error: %w", err)
	}

	var lastID uint64
	if err := conn.Model(&models.LicenseTerms{}).
		Where("template = ?", t.address.Hex()).
		Select("COALESCE(MAX(terms_id), 0)").
		Scan(&lastID).Error; err != nil {
		return 0, false, fmt.Errorf("database error: %w", err)
	}

	record := termsToModel(terms)
	record.Template = t.address.Hex()
	record.TermsID = lastID + 1
	record.Hash = hash
	if err := conn.Create(&record).Error; err != nil {
		return 0, false, fmt.Errorf("failed to store license terms: %w", err)
	}
	return record.TermsID, true, nil
}

func (t *PILTemplate) validateTerms(ctx context.Context, terms PILTerms) error {
	if terms.CommercialRevShare > uint32(TotalRoyaltyShares) {
		return ErrRevShareAboveMax
	}

	if err := t.validateCommercialUse(ctx, terms); err != nil {
		return err
	}
	if err := validateDerivatives(terms); err != nil {
		return err
	}

	if terms.RoyaltyPolicy != (common.Address{}) {
		allowed, err := t.modules.IsRoyaltyPolicyAllowed(ctx, terms.RoyaltyPolicy)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%s: %w", terms.RoyaltyPolicy.Hex(), ErrRoyaltyPolicyNotWhitelisted)
		}
		if terms.Currency == (common.Address{}) {
			return ErrRoyaltyPolicyRequiresCurrency
		}
	} else if terms.DefaultMintingFee > 0 {
		return ErrMintingFeeRequiresRoyaltyPolicy
	}

	if terms.Currency != (common.Address{}) {
		whitelisted, err := t.modules.IsRegistered(ctx, models.ModuleKindCurrencyToken, terms.Currency)
		if err != nil {
			return err
		}
		if !whitelisted {
			return fmt.Errorf("%s: %w", terms.Currency.Hex(), ErrCurrencyTokenNotWhitelisted)
		}
	}
	return nil
}

func (t *PILTemplate) validateCommercialUse(ctx context.Context, terms PILTerms) error {
	if !terms.CommercialUse {
		switch {
		case terms.CommercialAttribution:
			return ErrCommercialDisabledAttribution
		case terms.CommercializerChecker != (common.Address{}):
			return ErrCommercialDisabledChecker
		case terms.CommercialRevShare > 0:
			return ErrCommercialDisabledRevShare
		case terms.CommercialRevCeiling > 0:
			return ErrCommercialDisabledRevCeiling
		case terms.DerivativeRevCeiling > 0:
			return ErrCommercialDisabledDerivRevCeiling
		case terms.RoyaltyPolicy != (common.Address{}):
			return ErrCommercialDisabledRoyaltyPolicy
		}
		return nil
	}

	if terms.RoyaltyPolicy == (common.Address{}) {
		return ErrCommercialEnabledNoRoyaltyPolicy
	}
	if terms.CommercializerChecker != (common.Address{}) {
		checker, err := t.modules.CommercializerChecker(terms.CommercializerChecker)
		if err != nil {
			return err
		}
		if err := checker.ValidateConfig(ctx, terms.CommercializerCheckerData); err != nil {
			logrus.WithFields(logrus.Fields{
				"checker": terms.CommercializerChecker.Hex(),
			}).WithError(err).Warn("Commercializer checker rejected its configuration")
			return ErrCommercializerCheckerConfig
		}
	}
	return nil
}

func validateDerivatives(terms PILTerms) error {
	if terms.DerivativesAllowed {
		return nil
	}
	switch {
	case terms.DerivativesAttribution:
		return ErrDerivativesDisabledAttribution
	case terms.DerivativesApproval:
		return ErrDerivativesDisabledApproval
	case terms.DerivativesReciprocal:
		return ErrDerivativesDisabledReciprocal
	case terms.DerivativeRevCeiling > 0:
		return ErrDerivativesDisabledRevCeiling
	}
	return nil
}

func (t *PILTemplate) Exists(ctx context.Context, termsID uint64) (bool, error) {
	if termsID == 0 {
		return false, nil
	}
	var count int64
	if err := database.Conn(ctx, t.db).Model(&models.LicenseTerms{}).
		Where("template = ? AND terms_id = ?", t.address.Hex(), termsID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (t *PILTemplate) GetLicenseTerms(ctx context.Context, termsID uint64) (*PILTerms, error) {
	var record models.LicenseTerms
	err := database.Conn(ctx, t.db).
		Where("template = ? AND terms_id = ?", t.address.Hex(), termsID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("terms %d: %w", termsID, ErrLicenseTermsNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	terms := termsFromModel(&record)
	return &terms, nil
}

// GetLicenseTermsID returns the id of identical registered terms, or 0.
func (t *PILTemplate) GetLicenseTermsID(ctx context.Context, terms PILTerms) (uint64, error) {
	var record models.LicenseTerms
	err := database.Conn(ctx, t.db).
		Where("template = ? AND hash = ?", t.address.Hex(), terms.Hash().Hex()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	return record.TermsID, nil
}

func (t *PILTemplate) GetLicenseTermsURI(ctx context.Context, termsID uint64) (string, error) {
	terms, err := t.GetLicenseTerms(ctx, termsID)
	if err != nil {
		return "", err
	}
	return terms.URI, nil
}

func (t *PILTemplate) TotalRegisteredLicenseTerms(ctx context.Context) (int64, error) {
	var count int64
	if err := database.Conn(ctx, t.db).Model(&models.LicenseTerms{}).
		Where("template = ?", t.address.Hex()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

func (t *PILTemplate) GetRoyaltyPolicy(ctx context.Context, termsID uint64) (RoyaltyPolicyInfo, error) {
	terms, err := t.GetLicenseTerms(ctx, termsID)
	if err != nil {
		return RoyaltyPolicyInfo{}, err
	}
	return RoyaltyPolicyInfo{
		Policy:         terms.RoyaltyPolicy,
		RoyaltyPercent: terms.CommercialRevShare,
		MintingFee:     terms.DefaultMintingFee,
		Currency:       terms.Currency,
	}, nil
}

func (t *PILTemplate) IsLicenseTransferable(ctx context.Context, termsID uint64) (bool, error) {
	terms, err := t.GetLicenseTerms(ctx, termsID)
	if err != nil {
		return false, err
	}
	return terms.Transferable, nil
}

// GetExpireTime returns start plus the terms' duration, or 0 when the terms never expire.
func (t *PILTemplate) GetExpireTime(ctx context.Context, termsID uint64, start uint64) (uint64, error) {
	terms, err := t.GetLicenseTerms(ctx, termsID)
	if err != nil {
		return 0, err
	}
	if terms.Expiration == 0 {
		return 0, nil
	}
	return addAmount(start, terms.Expiration)
}

func (t *PILTemplate) GetEarliestExpireTime(ctx context.Context, termsIDs []uint64, start uint64) (uint64, error) {
	var earliest uint64
	for _, termsID := range termsIDs {
		expireTime, err := t.GetExpireTime(ctx, termsID, start)
		if err != nil {
			return 0, err
		}
		earliest = earliestExpireTime(earliest, expireTime)
	}
	return earliest, nil
}

// earliestExpireTime is min(a, b) where 0 means never.
func earliestExpireTime(a, b uint64) uint64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func (t *PILTemplate) VerifyMintLicenseToken(ctx context.Context, termsID uint64, licensee, licensorIPID common.Address, amount uint64) (bool, error) {
	terms, err := t.GetLicenseTerms(ctx, termsID)
	if err != nil {
		return false, err
	}

	isDerivative, err := t.registry.IsDerivativeIP(ctx, licensorIPID)
	if err != nil {
		return false, err
	}
	if isDerivative {
		// A derivative may only sublicense the reciprocal terms it inherited.
		attached, err := t.registry.HasIPAttachedLicenseTerms(ctx, licensorIPID, t.address, termsID)
		if err != nil {
			return false, err
		}
		if !attached || !terms.DerivativesReciprocal {
			return false, nil
		}
	}

	return t.verifyCommercializer(ctx, terms, licensee), nil
}

func (t *PILTemplate) VerifyRegisterDerivative(ctx context.Context, childIPID, parentIPID common.Address, termsID uint64, licensee common.Address) (bool, error) {
	terms, err := t.GetLicenseTerms(ctx, termsID)
	if err != nil {
		return false, err
	}
	if !terms.DerivativesAllowed {
		return false, nil
	}

	parentIsDerivative, err := t.registry.IsDerivativeIP(ctx, parentIPID)
	if err != nil {
		return false, err
	}
	if parentIsDerivative && !terms.DerivativesReciprocal {
		return false, nil
	}

	if terms.DerivativesApproval {
		approved, err := t.IsDerivativeApproved(ctx, parentIPID, termsID, childIPID)
		if err != nil {
			return false, err
		}
		if !approved {
			return false, nil
		}
	}

	return t.verifyCommercializer(ctx, terms, licensee), nil
}

// VerifyCompatibleLicenses reports whether terms can be combined by one derivative:
// they must agree on commercial use and reciprocity, and reciprocal terms must be identical.
func (t *PILTemplate) VerifyCompatibleLicenses(ctx context.Context, termsIDs []uint64) (bool, error) {
	if len(termsIDs) < 2 {
		return true, nil
	}

	first, err := t.GetLicenseTerms(ctx, termsIDs[0])
	if err != nil {
		return false, err
	}
	for _, termsID := range termsIDs[1:] {
		terms, err := t.GetLicenseTerms(ctx, termsID)
		if err != nil {
			return false, err
		}
		if terms.CommercialUse != first.CommercialUse || terms.DerivativesReciprocal != first.DerivativesReciprocal {
			return false, nil
		}
		if first.DerivativesReciprocal && termsID != termsIDs[0] {
			return false, nil
		}
	}
	return true, nil
}

func (t *PILTemplate) VerifyRegisterDerivativeForAllParents(ctx context.Context, childIPID common.Address, parentIPIDs []common.Address, termsIDs []uint64, licensee common.Address) (bool, error) {
	if len(parentIPIDs) != len(termsIDs) {
		return false, ErrParentTermsLengthMismatch
	}

	compatible, err := t.VerifyCompatibleLicenses(ctx, termsIDs)
	if err != nil || !compatible {
		return false, err
	}
	for i, parentIPID := range parentIPIDs {
		ok, err := t.VerifyRegisterDerivative(ctx, childIPID, parentIPID, termsIDs[i], licensee)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// SetApproval records the licensor's decision for one child under one parent license.
func (t *PILTemplate) SetApproval(ctx context.Context, caller common.Address, req *SetApprovalRequest) error {
	return t.exec.Execute(ctx, "setApproval", func(ctx context.Context) error {
		allowed, err := t.access.HasPermission(ctx, req.ParentIPID, caller, ActionSetApproval)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("setApproval on %s: %w", req.ParentIPID.Hex(), ErrPermissionDenied)
		}

		exists, err := t.Exists(ctx, req.TermsID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("terms %d: %w", req.TermsID, ErrLicenseTermsNotFound)
		}

		conn := database.Conn(ctx, t.db)
		var approval models.DerivativeApproval
		err = conn.Where("template = ? AND parent_ip_id = ? AND terms_id = ? AND child_ip_id = ?",
			t.address.Hex(), req.ParentIPID.Hex(), req.TermsID, req.ChildIPID.Hex()).
			First(&approval).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			approval = models.DerivativeApproval{
				Template:   t.address.Hex(),
				ParentIPID: req.ParentIPID.Hex(),
				TermsID:    req.TermsID,
				ChildIPID:  req.ChildIPID.Hex(),
				Approved:   req.Approved,
			}
			if err := conn.Create(&approval).Error; err != nil {
				return fmt.Errorf("failed to store approval: %w", err)
			}
		case err != nil:
			return fmt.Errorf("database error: %w", err)
		default:
			if err := conn.Model(&approval).Update("approved", req.Approved).Error; err != nil {
				return fmt.Errorf("failed to store approval: %w", err)
			}
		}

		return t.events.Emit(ctx, models.EventDerivativeApproved, req.ParentIPID, caller, map[string]interface{}{
			"template": t.address.Hex(),
			"terms_id": req.TermsID,
			"child":    req.ChildIPID.Hex(),
			"approved": req.Approved,
		})
	})
}

func (t *PILTemplate) IsDerivativeApproved(ctx context.Context, parentIPID common.Address, termsID uint64, childIPID common.Address) (bool, error) {
	var approval models.DerivativeApproval
	err := database.Conn(ctx, t.db).
		Where("template = ? AND parent_ip_id = ? AND terms_id = ? AND child_ip_id = ?",
			t.address.Hex(), parentIPID.Hex(), termsID, childIPID.Hex()).
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("database error: %w", err)
	}
	return approval.Approved, nil
}

// verifyCommercializer runs the terms' commercializer checker, if any. Checker
// failures deny the licensee.
func (t *PILTemplate) verifyCommercializer(ctx context.Context, terms *PILTerms, licensee common.Address) bool {
	if terms.CommercializerChecker == (common.Address{}) {
		return true
	}

	logger := logrus.WithFields(logrus.Fields{
		"checker":  terms.CommercializerChecker.Hex(),
		"licensee": licensee.Hex(),
	})
	checker, err := t.modules.CommercializerChecker(terms.CommercializerChecker)
	if err != nil {
		logger.WithError(err).Warn("Commercializer checker unavailable")
		return false
	}
	ok, err := checker.VerifyLicensee(ctx, licensee, terms.CommercializerCheckerData)
	if err != nil {
		logger.WithError(err).Warn("Commercializer checker failed")
		return false
	}
	return ok
}

func termsToModel(terms PILTerms) models.LicenseTerms {
	return models.LicenseTerms{
		Transferable:              terms.Transferable,
		RoyaltyPolicy:             addressOrEmpty(terms.RoyaltyPolicy),
		DefaultMintingFee:         terms.DefaultMintingFee,
		Expiration:                terms.Expiration,
		CommercialUse:             terms.CommercialUse,
		CommercialAttribution:     terms.CommercialAttribution,
		CommercializerChecker:     addressOrEmpty(terms.CommercializerChecker),
		CommercializerCheckerData: terms.CommercializerCheckerData,
		CommercialRevShare:        terms.CommercialRevShare,
		CommercialRevCeiling:      terms.CommercialRevCeiling,
		DerivativesAllowed:        terms.DerivativesAllowed,
		DerivativesAttribution:    terms.DerivativesAttribution,
		DerivativesApproval:       terms.DerivativesApproval,
		DerivativesReciprocal:     terms.DerivativesReciprocal,
		DerivativeRevCeiling:      terms.DerivativeRevCeiling,
		Currency:                  addressOrEmpty(terms.Currency),
		URI:                       terms.URI,
	}
}

func termsFromModel(record *models.LicenseTerms) PILTerms {
	return PILTerms{
		Transferable:              record.Transferable,
		RoyaltyPolicy:             common.HexToAddress(record.RoyaltyPolicy),
		DefaultMintingFee:         record.DefaultMintingFee,
		Expiration:                record.Expiration,
		CommercialUse:             record.CommercialUse,
		CommercialAttribution:     record.CommercialAttribution,
		CommercializerChecker:     common.HexToAddress(record.CommercializerChecker),
		CommercializerCheckerData: record.CommercializerCheckerData,
		CommercialRevShare:        record.CommercialRevShare,
		CommercialRevCeiling:      record.CommercialRevCeiling,
		DerivativesAllowed:        record.DerivativesAllowed,
		DerivativesAttribution:    record.DerivativesAttribution,
		DerivativesApproval:       record.DerivativesApproval,
		DerivativesReciprocal:     record.DerivativesReciprocal,
		DerivativeRevCeiling:      record.DerivativeRevCeiling,
		Currency:                  common.HexToAddress(record.Currency),
		URI:                       record.URI,
	}
}

func addressOrEmpty(address common.Address) string {
	if address == (common.Address{}) {
		return ""
	}
	return address.Hex()
}
