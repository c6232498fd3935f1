// internal/services/license_registry_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

const defaultLicenseTermsSetting = "default_license_terms"

// LicenseRegistryService owns per-IP attachment state, the derivative graph, IP
// expiration and licensing config overrides. Mutations are only reachable through
// the licensing module and admin entry points.
type LicenseRegistryService struct {
	db         *gorm.DB
	exec       *Executor
	modules    *ModuleRegistryService
	disputes   DisputeOracle
	clock      Clock
	maxParents int
}

// AttachedLicense identifies one set of license terms under a template.
type AttachedLicense struct {
	Template common.Address `json:"template"`
	TermsID  uint64         `json:"terms_id"`
}

// LicensingConfigParams is the caller-supplied part of a licensing config.
type LicensingConfigParams struct {
	IsSet       bool           `json:"is_set"`
	MintingFee  uint64         `json:"minting_fee"`
	HookAddress common.Address `json:"hook_address"`
	HookData    []byte         `json:"hook_data"`
}

func NewLicenseRegistryService(db *gorm.DB, exec *Executor, modules *ModuleRegistryService, disputes DisputeOracle, clock Clock, maxParents int) *LicenseRegistryService {
	return &LicenseRegistryService{
		db:         db,
		exec:       exec,
		modules:    modules,
		disputes:   disputes,
		clock:      clock,
		maxParents: maxParents,
	}
}

// RegisterLicenseTemplate allow-lists a license template. Admin only.
func (s *LicenseRegistryService) RegisterLicenseTemplate(ctx context.Context, caller, template common.Address) error {
	return s.modules.RegisterModule(ctx, caller, template, models.ModuleKindLicenseTemplate, "")
}

func (s *LicenseRegistryService) IsRegisteredLicenseTemplate(ctx context.Context, template common.Address) (bool, error) {
	return s.modules.IsRegistered(ctx, models.ModuleKindLicenseTemplate, template)
}

// SetDefaultLicenseTerms sets the terms implicitly attached to every IP. Admin only.
func (s *LicenseRegistryService) SetDefaultLicenseTerms(ctx context.Context, caller, template common.Address, termsID uint64) error {
	if err := s.modules.RequireAdmin(caller); err != nil {
		return err
	}
	return s.exec.Execute(ctx, "setDefaultLicenseTerms", func(ctx context.Context) error {
		return s.setDefaultLicenseTerms(ctx, template, termsID)
	})
}

func (s *LicenseRegistryService) setDefaultLicenseTerms(ctx context.Context, template common.Address, termsID uint64) error {
	if err := s.requireTermsExist(ctx, template, termsID); err != nil {
		return err
	}

	value := fmt.Sprintf("%s:%d", template.Hex(), termsID)
	setting := models.ProtocolSetting{Key: defaultLicenseTermsSetting}
	conn := database.Conn(ctx, s.db)
	if err := conn.Where("key = ?", defaultLicenseTermsSetting).Attrs(models.ProtocolSetting{Value: value}).FirstOrCreate(&setting).Error; err != nil {
		return fmt.Errorf("failed to store default license terms: %w", err)
	}
	return conn.Model(&setting).Update("value", value).Error
}

// GetDefaultLicenseTerms returns the protocol default terms; a zero template means
// none is configured.
func (s *LicenseRegistryService) GetDefaultLicenseTerms(ctx context.Context) (AttachedLicense, error) {
	var setting models.ProtocolSetting
	err := database.Conn(ctx, s.db).Where("key = ?", defaultLicenseTermsSetting).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AttachedLicense{}, nil
		}
		return AttachedLicense{}, fmt.Errorf("database error: %w", err)
	}

	template, rawID, ok := strings.Cut(setting.Value, ":")
	termsID, parseErr := strconv.ParseUint(rawID, 10, 64)
	if !ok || parseErr != nil {
		return AttachedLicense{}, fmt.Errorf("corrupt default license terms setting %q", setting.Value)
	}
	return AttachedLicense{Template: common.HexToAddress(template), TermsID: termsID}, nil
}

func (s *LicenseRegistryService) isDefaultLicense(ctx context.Context, template common.Address, termsID uint64) (bool, error) {
	defaults, err := s.GetDefaultLicenseTerms(ctx)
	if err != nil {
		return false, err
	}
	return defaults.Template != (common.Address{}) && defaults.Template == template && defaults.TermsID == termsID, nil
}

// attachLicenseTermsToIP pins the IP to the template on first attachment and tightens
// the IP's expiration to the terms' expiration from now.
func (s *LicenseRegistryService) attachLicenseTermsToIP(ctx context.Context, ipID, template common.Address, termsID uint64) error {
	tmpl, err := s.modules.LicenseTemplate(ctx, template)
	if err != nil {
		return err
	}
	exists, err := tmpl.Exists(ctx, termsID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("terms %d: %w", termsID, ErrLicenseTermsNotFound)
	}

	expired, err := s.IsExpiredNow(ctx, ipID)
	if err != nil {
		return err
	}
	if expired {
		return fmt.Errorf("%s: %w", ipID.Hex(), ErrIPExpired)
	}

	isDerivative, err := s.IsDerivativeIP(ctx, ipID)
	if err != nil {
		return err
	}
	if isDerivative {
		return fmt.Errorf("%s: %w", ipID.Hex(), ErrDerivativesCannotAddLicenseTerms)
	}

	state, err := s.licenseState(ctx, ipID)
	if err != nil {
		return err
	}
	if state.Template != "" && state.Template != template.Hex() {
		return fmt.Errorf("%s is bound to %s: %w", ipID.Hex(), state.Template, ErrUnmatchedLicenseTemplate)
	}

	attached, err := s.HasIPAttachedLicenseTerms(ctx, ipID, template, termsID)
	if err != nil {
		return err
	}
	if attached {
		return fmt.Errorf("terms %d on %s: %w", termsID, ipID.Hex(), ErrLicenseTermsAlreadyAttached)
	}

	if err := s.appendAttachments(ctx, ipID, template, []uint64{termsID}); err != nil {
		return err
	}

	expireTime, err := tmpl.GetExpireTime(ctx, termsID, unixNow(s.clock))
	if err != nil {
		return err
	}
	state.Template = template.Hex()
	state.ExpireTime = earliestExpireTime(state.ExpireTime, expireTime)
	return s.saveLicenseState(ctx, state)
}

// registerDerivativeIP links child to parents under the given terms. The caller has
// already verified the terms with the template; this enforces graph consistency.
func (s *LicenseRegistryService) registerDerivativeIP(ctx context.Context, childIPID common.Address, parentIPIDs []common.Address, template common.Address, termsIDs []uint64, usingLicenseTokens bool) error {
	if len(parentIPIDs) == 0 {
		return ErrNoParentIP
	}
	if len(parentIPIDs) != len(termsIDs) {
		return ErrParentTermsLengthMismatch
	}
	if s.maxParents > 0 && len(parentIPIDs) > s.maxParents {
		return fmt.Errorf("%d parents: %w", len(parentIPIDs), ErrTooManyParents)
	}

	tmpl, err := s.modules.LicenseTemplate(ctx, template)
	if err != nil {
		return err
	}

	if err := s.verifyDerivativeCandidate(ctx, childIPID, template); err != nil {
		return err
	}

	now := unixNow(s.clock)
	seen := make(map[common.Address]bool, len(parentIPIDs))
	var expireTime uint64
	for i, parentIPID := range parentIPIDs {
		if seen[parentIPID] {
			return fmt.Errorf("%s: %w", parentIPID.Hex(), ErrDuplicateParentIP)
		}
		seen[parentIPID] = true

		if err := s.verifyParentEligibility(ctx, childIPID, parentIPID, template, termsIDs[i], usingLicenseTokens); err != nil {
			return err
		}

		parentExpireTime, err := s.GetExpireTime(ctx, parentIPID)
		if err != nil {
			return err
		}
		expireTime = earliestExpireTime(expireTime, parentExpireTime)
	}

	termsExpireTime, err := tmpl.GetEarliestExpireTime(ctx, termsIDs, now)
	if err != nil {
		return err
	}
	expireTime = earliestExpireTime(expireTime, termsExpireTime)

	conn := database.Conn(ctx, s.db)
	for i, parentIPID := range parentIPIDs {
		childPosition, err := s.GetDerivativeIPCount(ctx, parentIPID)
		if err != nil {
			return err
		}
		edge := models.DerivativeEdge{
			ParentIPID:     parentIPID.Hex(),
			ChildIPID:      childIPID.Hex(),
			Template:       template.Hex(),
			TermsID:        termsIDs[i],
			ParentPosition: i,
			ChildPosition:  int(childPosition),
		}
		if err := conn.Create(&edge).Error; err != nil {
			return fmt.Errorf("failed to record derivative edge: %w", err)
		}
	}

	if err := s.appendAttachments(ctx, childIPID, template, termsIDs); err != nil {
		return err
	}

	state, err := s.licenseState(ctx, childIPID)
	if err != nil {
		return err
	}
	state.Template = template.Hex()
	state.ExpireTime = earliestExpireTime(state.ExpireTime, expireTime)
	return s.saveLicenseState(ctx, state)
}

func (s *LicenseRegistryService) verifyDerivativeCandidate(ctx context.Context, childIPID, template common.Address) error {
	isDerivative, err := s.IsDerivativeIP(ctx, childIPID)
	if err != nil {
		return err
	}
	if isDerivative {
		return fmt.Errorf("%s: %w", childIPID.Hex(), ErrDerivativeAlreadyRegistered)
	}

	attachedCount, err := s.GetAttachedLicenseTermsCount(ctx, childIPID)
	if err != nil {
		return err
	}
	if attachedCount > 0 {
		return fmt.Errorf("%s: %w", childIPID.Hex(), ErrDerivativeIPAlreadyHasLicense)
	}

	hasChildren, err := s.HasDerivativeIPs(ctx, childIPID)
	if err != nil {
		return err
	}
	if hasChildren {
		return fmt.Errorf("%s: %w", childIPID.Hex(), ErrDerivativeIPAlreadyHasChild)
	}

	state, err := s.licenseState(ctx, childIPID)
	if err != nil {
		return err
	}
	if state.Template != "" && state.Template != template.Hex() {
		return fmt.Errorf("%s is bound to %s: %w", childIPID.Hex(), state.Template, ErrUnmatchedLicenseTemplate)
	}
	return nil
}

func (s *LicenseRegistryService) verifyParentEligibility(ctx context.Context, childIPID, parentIPID, template common.Address, termsID uint64, usingLicenseTokens bool) error {
	disputed, err := s.disputes.IsTagged(ctx, parentIPID)
	if err != nil {
		return err
	}
	if disputed {
		return fmt.Errorf("%s: %w", parentIPID.Hex(), ErrParentIPDisputed)
	}
	if childIPID == parentIPID {
		return fmt.Errorf("%s: %w", childIPID.Hex(), ErrDerivativeIsParent)
	}

	expired, err := s.IsExpiredNow(ctx, parentIPID)
	if err != nil {
		return err
	}
	if expired {
		return fmt.Errorf("%s: %w", parentIPID.Hex(), ErrParentIPExpired)
	}

	isDefault, err := s.isDefaultLicense(ctx, template, termsID)
	if err != nil || isDefault {
		return err
	}

	parentState, err := s.licenseState(ctx, parentIPID)
	if err != nil {
		return err
	}
	if parentState.Template != template.Hex() {
		return fmt.Errorf("%s: %w", parentIPID.Hex(), ErrParentIPUnmatchedLicenseTemplate)
	}

	if usingLicenseTokens {
		return nil
	}
	attached, err := s.HasIPAttachedLicenseTerms(ctx, parentIPID, template, termsID)
	if err != nil {
		return err
	}
	if !attached {
		return fmt.Errorf("terms %d on %s: %w", termsID, parentIPID.Hex(), ErrParentIPHasNoLicenseTerms)
	}
	return nil
}

// VerifyMintLicenseToken checks a licensor may mint under the terms and returns the
// effective licensing config. An owner may mint under any existing terms.
func (s *LicenseRegistryService) VerifyMintLicenseToken(ctx context.Context, licensorIPID, template common.Address, termsID uint64, isMintedByOwner bool) (*models.LicensingConfig, error) {
	expired, err := s.IsExpiredNow(ctx, licensorIPID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("%s: %w", licensorIPID.Hex(), ErrIPExpired)
	}

	if isMintedByOwner {
		if err := s.requireTermsExist(ctx, template, termsID); err != nil {
			return nil, err
		}
	} else {
		attached, err := s.HasIPAttachedLicenseTerms(ctx, licensorIPID, template, termsID)
		if err != nil {
			return nil, err
		}
		if !attached {
			return nil, fmt.Errorf("terms %d on %s: %w", termsID, licensorIPID.Hex(), ErrLicensorIPNotAttachedTerms)
		}
	}

	return s.GetLicensingConfig(ctx, licensorIPID, template, termsID)
}

func (s *LicenseRegistryService) requireTermsExist(ctx context.Context, template common.Address, termsID uint64) error {
	tmpl, err := s.modules.LicenseTemplate(ctx, template)
	if err != nil {
		return err
	}
	exists, err := tmpl.Exists(ctx, termsID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("terms %d: %w", termsID, ErrLicenseTermsNotFound)
	}
	return nil
}

// GetLicensingConfig resolves the override for a license: per-license, then per-IP.
// An unset config is returned when neither exists.
func (s *LicenseRegistryService) GetLicensingConfig(ctx context.Context, ipID, template common.Address, termsID uint64) (*models.LicensingConfig, error) {
	config, err := s.licensingConfig(ctx, ipID, template.Hex(), termsID)
	if err != nil {
		return nil, err
	}
	if config.IsSet {
		return config, nil
	}
	return s.licensingConfig(ctx, ipID, "", 0)
}

func (s *LicenseRegistryService) licensingConfig(ctx context.Context, ipID common.Address, template string, termsID uint64) (*models.LicensingConfig, error) {
	var config models.LicensingConfig
	err := database.Conn(ctx, s.db).
		Where("ip_id = ? AND template = ? AND terms_id = ?", ipID.Hex(), template, termsID).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.LicensingConfig{IPID: ipID.Hex(), Template: template, TermsID: termsID}, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &config, nil
}

func (s *LicenseRegistryService) setLicensingConfigForLicense(ctx context.Context, ipID, template common.Address, termsID uint64, params LicensingConfigParams) error {
	if err := s.requireTermsExist(ctx, template, termsID); err != nil {
		return err
	}
	return s.storeLicensingConfig(ctx, ipID, template.Hex(), termsID, params)
}

func (s *LicenseRegistryService) setLicensingConfigForIP(ctx context.Context, ipID common.Address, params LicensingConfigParams) error {
	return s.storeLicensingConfig(ctx, ipID, "", 0, params)
}

func (s *LicenseRegistryService) storeLicensingConfig(ctx context.Context, ipID common.Address, template string, termsID uint64, params LicensingConfigParams) error {
	config, err := s.licensingConfig(ctx, ipID, template, termsID)
	if err != nil {
		return err
	}
	config.IsSet = params.IsSet
	config.MintingFee = params.MintingFee
	config.HookAddress = addressOrEmpty(params.HookAddress)
	config.HookData = params.HookData

	if err := database.Conn(ctx, s.db).Save(config).Error; err != nil {
		return fmt.Errorf("failed to store licensing config: %w", err)
	}
	return nil
}

// HasIPAttachedLicenseTerms includes the protocol default terms.
func (s *LicenseRegistryService) HasIPAttachedLicenseTerms(ctx context.Context, ipID, template common.Address, termsID uint64) (bool, error) {
	isDefault, err := s.isDefaultLicense(ctx, template, termsID)
	if err != nil || isDefault {
		return isDefault, err
	}

	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.LicenseAttachment{}).
		Where("ip_id = ? AND template = ? AND terms_id = ?", ipID.Hex(), template.Hex(), termsID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

// GetAttachedLicenseTerms returns the index-th attached terms; index == count yields
// the protocol default terms when configured.
func (s *LicenseRegistryService) GetAttachedLicenseTerms(ctx context.Context, ipID common.Address, index int) (AttachedLicense, error) {
	count, err := s.GetAttachedLicenseTermsCount(ctx, ipID)
	if err != nil {
		return AttachedLicense{}, err
	}

	if index >= 0 && int64(index) < count {
		var attachment models.LicenseAttachment
		if err := database.Conn(ctx, s.db).
			Where("ip_id = ? AND position = ?", ipID.Hex(), index).
			First(&attachment).Error; err != nil {
			return AttachedLicense{}, fmt.Errorf("database error: %w", err)
		}
		return AttachedLicense{Template: common.HexToAddress(attachment.Template), TermsID: attachment.TermsID}, nil
	}

	if int64(index) == count {
		defaults, err := s.GetDefaultLicenseTerms(ctx)
		if err != nil {
			return AttachedLicense{}, err
		}
		if defaults.Template != (common.Address{}) {
			return defaults, nil
		}
	}
	return AttachedLicense{}, fmt.Errorf("attached terms %d of %s: %w", index, ipID.Hex(), ErrIndexOutOfBounds)
}

// GetAttachedLicenseTermsCount excludes the implicit default terms.
func (s *LicenseRegistryService) GetAttachedLicenseTermsCount(ctx context.Context, ipID common.Address) (int64, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.LicenseAttachment{}).
		Where("ip_id = ?", ipID.Hex()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

func (s *LicenseRegistryService) appendAttachments(ctx context.Context, ipID, template common.Address, termsIDs []uint64) error {
	conn := database.Conn(ctx, s.db)
	for _, termsID := range termsIDs {
		var existing int64
		if err := conn.Model(&models.LicenseAttachment{}).
			Where("ip_id = ? AND template = ? AND terms_id = ?", ipID.Hex(), template.Hex(), termsID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if existing > 0 {
			continue
		}

		position, err := s.GetAttachedLicenseTermsCount(ctx, ipID)
		if err != nil {
			return err
		}
		attachment := models.LicenseAttachment{
			IPID:     ipID.Hex(),
			Template: template.Hex(),
			TermsID:  termsID,
			Position: int(position),
		}
		if err := conn.Create(&attachment).Error; err != nil {
			return fmt.Errorf("failed to attach license terms: %w", err)
		}
	}
	return nil
}

func (s *LicenseRegistryService) IsDerivativeIP(ctx context.Context, ipID common.Address) (bool, error) {
	count, err := s.GetParentIPCount(ctx, ipID)
	return count > 0, err
}

func (s *LicenseRegistryService) HasDerivativeIPs(ctx context.Context, ipID common.Address) (bool, error) {
	count, err := s.GetDerivativeIPCount(ctx, ipID)
	return count > 0, err
}

func (s *LicenseRegistryService) IsParentIP(ctx context.Context, parentIPID, childIPID common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.DerivativeEdge{}).
		Where("parent_ip_id = ? AND child_ip_id = ?", parentIPID.Hex(), childIPID.Hex()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *LicenseRegistryService) GetParentIPCount(ctx context.Context, childIPID common.Address) (int64, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.DerivativeEdge{}).
		Where("child_ip_id = ?", childIPID.Hex()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

func (s *LicenseRegistryService) GetParentIP(ctx context.Context, childIPID common.Address, index int) (common.Address, error) {
	var edge models.DerivativeEdge
	err := database.Conn(ctx, s.db).
		Where("child_ip_id = ? AND parent_position = ?", childIPID.Hex(), index).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.Address{}, fmt.Errorf("parent %d of %s: %w", index, childIPID.Hex(), ErrIndexOutOfBounds)
		}
		return common.Address{}, fmt.Errorf("database error: %w", err)
	}
	return common.HexToAddress(edge.ParentIPID), nil
}

func (s *LicenseRegistryService) GetParentIPs(ctx context.Context, childIPID common.Address) ([]common.Address, error) {
	var edges []models.DerivativeEdge
	if err := database.Conn(ctx, s.db).
		Where("child_ip_id = ?", childIPID.Hex()).
		Order("parent_position").
		Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	parents := make([]common.Address, 0, len(edges))
	for _, edge := range edges {
		parents = append(parents, common.HexToAddress(edge.ParentIPID))
	}
	return parents, nil
}

func (s *LicenseRegistryService) GetDerivativeIPCount(ctx context.Context, parentIPID common.Address) (int64, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.DerivativeEdge{}).
		Where("parent_ip_id = ?", parentIPID.Hex()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

func (s *LicenseRegistryService) GetDerivativeIP(ctx context.Context, parentIPID common.Address, index int) (common.Address, error) {
	var edge models.DerivativeEdge
	err := database.Conn(ctx, s.db).
		Where("parent_ip_id = ? AND child_position = ?", parentIPID.Hex(), index).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.Address{}, fmt.Errorf("derivative %d of %s: %w", index, parentIPID.Hex(), ErrIndexOutOfBounds)
		}
		return common.Address{}, fmt.Errorf("database error: %w", err)
	}
	return common.HexToAddress(edge.ChildIPID), nil
}

// GetParentLicenseTerms returns the terms through which child is licensed from parent.
func (s *LicenseRegistryService) GetParentLicenseTerms(ctx context.Context, childIPID, parentIPID common.Address) (AttachedLicense, error) {
	var edge models.DerivativeEdge
	err := database.Conn(ctx, s.db).
		Where("child_ip_id = ? AND parent_ip_id = ?", childIPID.Hex(), parentIPID.Hex()).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AttachedLicense{}, fmt.Errorf("%s is not a parent of %s: %w", parentIPID.Hex(), childIPID.Hex(), ErrLicenseTermsNotFound)
		}
		return AttachedLicense{}, fmt.Errorf("database error: %w", err)
	}
	return AttachedLicense{Template: common.HexToAddress(edge.Template), TermsID: edge.TermsID}, nil
}

// GetAncestors walks the derivative graph upward, breadth first, returning each
// ancestor once.
func (s *LicenseRegistryService) GetAncestors(ctx context.Context, ipID common.Address) ([]common.Address, error) {
	var ancestors []common.Address
	visited := map[common.Address]bool{ipID: true}
	queue := []common.Address{ipID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		parents, err := s.GetParentIPs(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			if visited[parent] {
				continue
			}
			visited[parent] = true
			ancestors = append(ancestors, parent)
			queue = append(queue, parent)
		}
	}
	return ancestors, nil
}

func (s *LicenseRegistryService) GetExpireTime(ctx context.Context, ipID common.Address) (uint64, error) {
	state, err := s.licenseState(ctx, ipID)
	if err != nil {
		return 0, err
	}
	return state.ExpireTime, nil
}

func (s *LicenseRegistryService) IsExpiredNow(ctx context.Context, ipID common.Address) (bool, error) {
	expireTime, err := s.GetExpireTime(ctx, ipID)
	if err != nil {
		return false, err
	}
	return expireTime != 0 && expireTime < unixNow(s.clock), nil
}

// GetLicenseTemplate returns the template an IP is pinned to, or the zero address.
func (s *LicenseRegistryService) GetLicenseTemplate(ctx context.Context, ipID common.Address) (common.Address, error) {
	state, err := s.licenseState(ctx, ipID)
	if err != nil {
		return common.Address{}, err
	}
	if state.Template == "" {
		return common.Address{}, nil
	}
	return common.HexToAddress(state.Template), nil
}

func (s *LicenseRegistryService) licenseState(ctx context.Context, ipID common.Address) (*models.IPLicenseState, error) {
	var state models.IPLicenseState
	err := database.Conn(ctx, s.db).Where("ip_id = ?", ipID.Hex()).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.IPLicenseState{IPID: ipID.Hex()}, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &state, nil
}

func (s *LicenseRegistryService) saveLicenseState(ctx context.Context, state *models.IPLicenseState) error {
	if err := database.Conn(ctx, s.db).Save(state).Error; err != nil {
		return fmt.Errorf("failed to store license state: %w", err)
	}
	return nil
}
