// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess  = "success"
	KeyNotFound = "not_found"

	// Authentication
	KeyAuthRequired       = "auth.required"
	KeyAuthInvalidToken   = "auth.invalid_token"
	KeyAuthTokenExpired   = "auth.token_expired"
	KeyAdminAccessDenied  = "admin.access_denied"
	KeyRateLimitExceeded  = "rate_limit.exceeded"
	KeyProtocolPaused     = "protocol.paused"
	KeyProtocolUnpaused   = "protocol.unpaused"
	KeyOperationCommitted = "operation.committed"

	// Validation
	KeyValidationInvalid = "validation.invalid"
	KeyInvalidAddress    = "validation.invalid_address"
	KeyInvalidNumber     = "validation.invalid_number"

	// Error kinds
	KeyErrorValidation    = "error.validation"
	KeyErrorState         = "error.state"
	KeyErrorAuthorization = "error.authorization"
	KeyErrorDenied        = "error.denied"
	KeyErrorNotFound      = "error.not_found"
	KeyErrorPaused        = "error.paused"
	KeyErrorInternal      = "error.internal"

	// Licensing
	KeyLicenseTermsRegistered = "license_terms.registered"
	KeyLicenseTermsAttached   = "license_terms.attached"
	KeyLicenseTokensMinted    = "license_tokens.minted"
	KeyDerivativeRegistered   = "derivative.registered"
	KeyLicensingConfigSet     = "licensing_config.set"
	KeyIPRegistered           = "ip.registered"
	KeyGroupRegistered        = "group.registered"
)
