// internal/services/errors.go
package services

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrorKind groups protocol errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindAuthorization ErrorKind = "authorization"
	KindDenied        ErrorKind = "denied"
	KindNotFound      ErrorKind = "not_found"
	KindPaused        ErrorKind = "paused"
	KindInternal      ErrorKind = "internal"
)

// Validation errors
var (
	ErrZeroAddress                       = errors.New("zero address")
	ErrZeroAmount                        = errors.New("amount must be greater than zero")
	ErrParentTermsLengthMismatch         = errors.New("parent IPs and license terms length mismatch")
	ErrNoParentIP                        = errors.New("at least one parent IP is required")
	ErrTooManyParents                    = errors.New("too many parent IPs")
	ErrNoLicenseTokens                   = errors.New("at least one license token is required")
	ErrEmptyBatch                        = errors.New("batch is empty")
	ErrInvalidLicenseTerms               = errors.New("invalid license terms")
	ErrAmountOverflow                    = errors.New("amount overflow")
	ErrCommercialDisabledAttribution     = errors.New("commercial use disabled: commercial attribution must be unset")
	ErrCommercialDisabledRevShare        = errors.New("commercial use disabled: commercial revenue share must be zero")
	ErrCommercialDisabledRevCeiling      = errors.New("commercial use disabled: commercial revenue ceiling must be zero")
	ErrCommercialDisabledDerivRevCeiling = errors.New("commercial use disabled: derivative revenue ceiling must be zero")
	ErrCommercialDisabledRoyaltyPolicy   = errors.New("commercial use disabled: royalty policy must be unset")
	ErrCommercialDisabledChecker         = errors.New("commercial use disabled: commercializer checker must be unset")
	ErrCommercialEnabledNoRoyaltyPolicy  = errors.New("commercial use enabled: royalty policy is required")
	ErrRoyaltyPolicyRequiresCurrency     = errors.New("royalty policy set: currency token is required")
	ErrMintingFeeRequiresRoyaltyPolicy   = errors.New("minting fee requires a royalty policy")
	ErrRevShareAboveMax                  = errors.New("commercial revenue share exceeds 100%")
	ErrInvalidCommercializerChecker      = errors.New("commercializer checker does not implement the checker capability")
	ErrCommercializerCheckerConfig       = errors.New("commercializer checker rejected its configuration")
	ErrDerivativesDisabledAttribution    = errors.New("derivatives disabled: derivative attribution must be unset")
	ErrDerivativesDisabledApproval       = errors.New("derivatives disabled: derivative approval must be unset")
	ErrDerivativesDisabledReciprocal     = errors.New("derivatives disabled: derivative reciprocal must be unset")
	ErrDerivativesDisabledRevCeiling     = errors.New("derivatives disabled: derivative revenue ceiling must be zero")
	ErrRoyaltyPolicyNotWhitelisted       = errors.New("royalty policy is not whitelisted")
	ErrCurrencyTokenNotWhitelisted       = errors.New("currency token is not whitelisted")
	ErrInvalidLicensingHook              = errors.New("licensing hook is not registered or lacks the hook capability")
	ErrInvalidGroupRewardPool            = errors.New("group reward pool is not registered")
	ErrGroupSizeExceeded                 = errors.New("group size limit exceeded")
	ErrIndexOutOfBounds                  = errors.New("index out of bounds")
)

// State-consistency errors
var (
	ErrUnregisteredLicenseTemplate        = errors.New("license template is not registered")
	ErrLicenseTermsAlreadyAttached        = errors.New("license terms already attached")
	ErrDerivativesCannotAddLicenseTerms   = errors.New("derivative IPs cannot attach license terms")
	ErrUnmatchedLicenseTemplate           = errors.New("IP is bound to a different license template")
	ErrIPExpired                          = errors.New("IP has expired")
	ErrParentIPExpired                    = errors.New("parent IP has expired")
	ErrParentIPDisputed                   = errors.New("parent IP is disputed")
	ErrDerivativeIsParent                 = errors.New("an IP cannot be its own parent")
	ErrParentIPUnmatchedLicenseTemplate   = errors.New("parent IP is bound to a different license template")
	ErrParentIPHasNoLicenseTerms          = errors.New("parent IP does not have the license terms attached")
	ErrDerivativeAlreadyRegistered        = errors.New("IP is already registered as a derivative")
	ErrDerivativeIPAlreadyHasLicense      = errors.New("IP already has license terms attached")
	ErrDerivativeIPAlreadyHasChild        = errors.New("IP already has derivative IPs")
	ErrDuplicateParentIP                  = errors.New("duplicate parent IP")
	ErrLicenseTermsNotCompatible          = errors.New("license terms are not compatible")
	ErrLicensorIPNotRegistered            = errors.New("licensor IP is not registered")
	ErrIPNotRegistered                    = errors.New("IP is not registered")
	ErrIPAlreadyRegistered                = errors.New("IP is already registered")
	ErrIPDisputed                         = errors.New("IP is disputed")
	ErrLicensorIPNotAttachedTerms         = errors.New("license terms are not attached to the licensor IP")
	ErrLicenseTokenExpired                = errors.New("license token has expired")
	ErrLicenseTokenRevoked                = errors.New("license token is revoked")
	ErrLicenseTokenBurned                 = errors.New("license token is burned")
	ErrLicenseTokenNotTransferable        = errors.New("license token is not transferable")
	ErrLicenseTokensTemplateMismatch      = errors.New("license tokens use different license templates")
	ErrIncompatibleRoyaltyPolicy          = errors.New("parents use different royalty policies")
	ErrRoyaltyPolicyRequiredForMintingFee = errors.New("minting fee override requires terms with a royalty policy")
	ErrUnlinkableToParents                = errors.New("IP royalty vault already initialized; cannot link to parents")
	ErrAboveRoyaltyStackLimit             = errors.New("royalty stack exceeds 100%")
	ErrAboveAncestorsLimit                = errors.New("too many ancestors")
	ErrRoyaltyVaultNotFound               = errors.New("royalty vault not found")
	ErrSnapshotIntervalTooShort           = errors.New("minimum snapshot interval has not elapsed")
	ErrNoNewRevenueSinceLastSnapshot      = errors.New("no new revenue since the last snapshot")
	ErrSnapshotNotFound                   = errors.New("snapshot not found")
	ErrRevenueAlreadyClaimed              = errors.New("revenue already claimed for this snapshot and token")
	ErrVaultCannotClaim                   = errors.New("royalty vault cannot claim its own revenue")
	ErrAncestorAlreadyCollected           = errors.New("ancestor already collected its royalty tokens")
	ErrInsufficientBalance                = errors.New("insufficient balance")
	ErrInsufficientShares                 = errors.New("insufficient royalty shares")
	ErrAlreadyGroup                       = errors.New("IP is already a group")
	ErrNotGroup                           = errors.New("IP is not a group")
	ErrGroupCannotBeDerivative            = errors.New("group IPs cannot be registered as derivatives")
	ErrGroupMemberIsGroup                 = errors.New("group members cannot be groups")
	ErrGroupFrozen                        = errors.New("group has derivative IPs and is frozen")
	ErrAlreadyGroupMember                 = errors.New("IP is already a member of the group")
	ErrNotGroupMember                     = errors.New("IP is not a member of the group")
	ErrMemberMissingGroupLicense          = errors.New("member IP does not carry the group's license terms")
	ErrReentrantCall                      = errors.New("reentrant call")
)

// Authorization errors
var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotLicenseTokenOwner = errors.New("caller does not own the license token")
	ErrNotProtocolAdmin     = errors.New("caller is not the protocol admin")
	ErrNotAncestor          = errors.New("IP is not an ancestor of the vault's IP")
)

// External-capability denials
var (
	ErrLicenseDenied               = errors.New("license template denied the operation")
	ErrLicensingHookDenied         = errors.New("licensing hook denied the operation")
	ErrCommercializerCheckerDenied = errors.New("commercializer checker denied the licensee")
)

// Not found
var (
	ErrLicenseTermsNotFound  = errors.New("license terms not found")
	ErrLicenseTokenNotFound  = errors.New("license token not found")
	ErrIPAssetNotFound       = errors.New("IP asset not found")
	ErrLicensingHookNotFound = errors.New("licensing hook implementation not found")
	ErrDisputeNotFound       = errors.New("dispute not found")
)

var ErrProtocolPaused = errors.New("protocol is paused")

var errorKinds = map[ErrorKind][]error{
	KindValidation: {
		ErrZeroAddress, ErrZeroAmount, ErrParentTermsLengthMismatch, ErrNoParentIP, ErrTooManyParents,
		ErrNoLicenseTokens, ErrEmptyBatch, ErrInvalidLicenseTerms, ErrAmountOverflow,
		ErrCommercialDisabledAttribution, ErrCommercialDisabledRevShare, ErrCommercialDisabledRevCeiling,
		ErrCommercialDisabledDerivRevCeiling, ErrCommercialDisabledRoyaltyPolicy, ErrCommercialDisabledChecker,
		ErrCommercialEnabledNoRoyaltyPolicy, ErrRoyaltyPolicyRequiresCurrency, ErrMintingFeeRequiresRoyaltyPolicy,
		ErrRevShareAboveMax, ErrInvalidCommercializerChecker, ErrCommercializerCheckerConfig,
		ErrDerivativesDisabledAttribution, ErrDerivativesDisabledApproval, ErrDerivativesDisabledReciprocal,
		ErrDerivativesDisabledRevCeiling, ErrRoyaltyPolicyNotWhitelisted, ErrCurrencyTokenNotWhitelisted,
		ErrInvalidLicensingHook, ErrInvalidGroupRewardPool, ErrGroupSizeExceeded, ErrIndexOutOfBounds,
	},
	KindAuthorization: {ErrPermissionDenied, ErrNotLicenseTokenOwner, ErrNotProtocolAdmin, ErrNotAncestor},
	KindDenied:        {ErrLicenseDenied, ErrLicensingHookDenied, ErrCommercializerCheckerDenied},
	KindNotFound: {
		ErrLicenseTermsNotFound, ErrLicenseTokenNotFound, ErrIPAssetNotFound, ErrLicensingHookNotFound,
		ErrRoyaltyVaultNotFound, ErrSnapshotNotFound, ErrDisputeNotFound,
	},
	KindPaused: {ErrProtocolPaused},
}

// KindOf classifies err. Request validation failures are validation errors; anything
// that is not a protocol error is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		return KindValidation
	}
	for kind, errs := range errorKinds {
		for _, target := range errs {
			if errors.Is(err, target) {
				return kind
			}
		}
	}
	for _, target := range stateErrors {
		if errors.Is(err, target) {
			return KindState
		}
	}
	return KindInternal
}

var stateErrors = []error{
	ErrUnregisteredLicenseTemplate, ErrLicenseTermsAlreadyAttached, ErrDerivativesCannotAddLicenseTerms,
	ErrUnmatchedLicenseTemplate, ErrIPExpired, ErrParentIPExpired, ErrParentIPDisputed, ErrDerivativeIsParent,
	ErrParentIPUnmatchedLicenseTemplate, ErrParentIPHasNoLicenseTerms, ErrDerivativeAlreadyRegistered,
	ErrDerivativeIPAlreadyHasLicense, ErrDerivativeIPAlreadyHasChild, ErrDuplicateParentIP,
	ErrLicenseTermsNotCompatible, ErrLicensorIPNotRegistered, ErrIPNotRegistered, ErrIPAlreadyRegistered,
	ErrIPDisputed, ErrLicensorIPNotAttachedTerms, ErrLicenseTokenExpired, ErrLicenseTokenRevoked,
	ErrLicenseTokenBurned, ErrLicenseTokenNotTransferable, ErrLicenseTokensTemplateMismatch,
	ErrIncompatibleRoyaltyPolicy, ErrRoyaltyPolicyRequiredForMintingFee, ErrUnlinkableToParents,
	ErrAboveRoyaltyStackLimit, ErrAboveAncestorsLimit, ErrSnapshotIntervalTooShort,
	ErrNoNewRevenueSinceLastSnapshot, ErrRevenueAlreadyClaimed, ErrVaultCannotClaim,
	ErrAncestorAlreadyCollected, ErrInsufficientBalance, ErrInsufficientShares, ErrAlreadyGroup, ErrNotGroup,
	ErrGroupCannotBeDerivative, ErrGroupMemberIsGroup, ErrGroupFrozen, ErrAlreadyGroupMember,
	ErrNotGroupMember, ErrMemberMissingGroupLicense, ErrReentrantCall,
}
