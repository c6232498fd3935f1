// internal/services/collaborators.go
package services

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/javajoker/imi-licensing/internal/utils"
)

// Clock returns the current protocol time.
type Clock func() time.Time

func unixNow(clock Clock) uint64 {
	return uint64(clock().Unix())
}

// IPAssetRegistry resolves IP identities and their owners.
type IPAssetRegistry interface {
	IsRegistered(ctx context.Context, ipID common.Address) (bool, error)
	OwnerOf(ctx context.Context, ipID common.Address) (common.Address, error)
}

// AccessController answers whether caller may perform action on behalf of ipID.
type AccessController interface {
	HasPermission(ctx context.Context, ipID, caller common.Address, action string) (bool, error)
}

// DisputeOracle reports IPs tagged by an unresolved dispute.
type DisputeOracle interface {
	IsTagged(ctx context.Context, ipID common.Address) (bool, error)
}

// HookMintRequest describes a license mint seen by a licensing hook.
type HookMintRequest struct {
	Caller       common.Address
	LicensorIPID common.Address
	Template     common.Address
	TermsID      uint64
	Amount       uint64
	Receiver     common.Address
	HookData     []byte
}

// HookDerivativeRequest describes one parent link of a derivative registration.
type HookDerivativeRequest struct {
	Caller     common.Address
	ChildIPID  common.Address
	ParentIPID common.Address
	Template   common.Address
	TermsID    uint64
	HookData   []byte
}

// LicensingHook is a pluggable pre-check that may override the minting fee.
// A returned error denies the operation.
type LicensingHook interface {
	BeforeMintLicenseTokens(ctx context.Context, req HookMintRequest) (uint64, error)
	BeforeRegisterDerivative(ctx context.Context, req HookDerivativeRequest) (uint64, error)
	CalculateMintingFee(ctx context.Context, req HookMintRequest) (uint64, error)
}

// CommercializerChecker vets licensees of commercial terms.
type CommercializerChecker interface {
	VerifyLicensee(ctx context.Context, licensee common.Address, data []byte) (bool, error)
	ValidateConfig(ctx context.Context, data []byte) error
}

// RoyaltyPolicy receives licensing events for the IPs whose terms reference it.
type RoyaltyPolicy interface {
	OnLicenseMinting(ctx context.Context, ipID common.Address, royaltyPercent uint32, externalData []byte) error
	OnLinkToParents(ctx context.Context, ipID common.Address, parentIPIDs []common.Address, licenseRoyaltyPercents []uint32, externalData []byte) error
}

// GroupRewardPool apportions a group's revenue across its members.
type GroupRewardPool interface {
	AddIP(ctx context.Context, groupID, ipID common.Address) error
	RemoveIP(ctx context.Context, groupID, ipID common.Address) error
	DepositReward(ctx context.Context, groupID, token common.Address, amount uint64) error
	PendingReward(ctx context.Context, groupID, token, ipID common.Address) (uint64, error)
	ClaimReward(ctx context.Context, groupID, token, ipID common.Address) (uint64, error)
}

// RoyaltyPolicyInfo is the royalty portion of a set of license terms.
type RoyaltyPolicyInfo struct {
	Policy         common.Address `json:"policy"`
	RoyaltyPercent uint32         `json:"royalty_percent"`
	MintingFee     uint64         `json:"minting_fee"`
	Currency       common.Address `json:"currency"`
}

// LicenseTemplate defines, stores and verifies one family of license terms.
type LicenseTemplate interface {
	Address() common.Address
	Exists(ctx context.Context, termsID uint64) (bool, error)
	VerifyMintLicenseToken(ctx context.Context, termsID uint64, licensee, licensorIPID common.Address, amount uint64) (bool, error)
	VerifyRegisterDerivative(ctx context.Context, childIPID, parentIPID common.Address, termsID uint64, licensee common.Address) (bool, error)
	VerifyRegisterDerivativeForAllParents(ctx context.Context, childIPID common.Address, parentIPIDs []common.Address, termsIDs []uint64, licensee common.Address) (bool, error)
	VerifyCompatibleLicenses(ctx context.Context, termsIDs []uint64) (bool, error)
	GetRoyaltyPolicy(ctx context.Context, termsID uint64) (RoyaltyPolicyInfo, error)
	IsLicenseTransferable(ctx context.Context, termsID uint64) (bool, error)
	GetExpireTime(ctx context.Context, termsID uint64, start uint64) (uint64, error)
	GetEarliestExpireTime(ctx context.Context, termsIDs []uint64, start uint64) (uint64, error)
}

// Permission actions checked against the AccessController.
const (
	ActionAttachLicenseTerms = "attachLicenseTerms"
	ActionMintLicenseTokens  = "mintLicenseTokens"
	ActionRegisterDerivative = "registerDerivative"
	ActionSetLicensingConfig = "setLicensingConfig"
	ActionSetApproval        = "setApproval"
	ActionTransferShares     = "transferRoyaltyShares"
	ActionClaimRevenue       = "claimRevenue"
	ActionManageGroup        = "manageGroup"
	ActionRegisterGroup      = "registerGroup"
)

var permissionActions = map[string]bool{
	ActionAttachLicenseTerms: true,
	ActionMintLicenseTokens:  true,
	ActionRegisterDerivative: true,
	ActionSetLicensingConfig: true,
	ActionSetApproval:        true,
	ActionTransferShares:     true,
	ActionClaimRevenue:       true,
	ActionManageGroup:        true,
	ActionRegisterGroup:      true,
}

func init() {
	// an empty action grants every action
	utils.RegisterValidation("permission_action", func(fl validator.FieldLevel) bool {
		action := fl.Field().String()
		return action == "" || permissionActions[action]
	})
}
