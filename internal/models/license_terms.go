// internal/models/license_terms.go
package models

// LicenseTerms is an immutable, content-addressed PIL terms record.
// Percentages are expressed in parts of 100,000,000.
type LicenseTerms struct {
	BaseModel
	Template                  string `json:"template" gorm:"size:42;not null;uniqueIndex:idx_terms_template_id,priority:1;uniqueIndex:idx_terms_template_hash,priority:1"`
	TermsID                   uint64 `json:"terms_id" gorm:"not null;uniqueIndex:idx_terms_template_id,priority:2"`
	Hash                      string `json:"hash" gorm:"size:66;not null;uniqueIndex:idx_terms_template_hash,priority:2"`
	Transferable              bool   `json:"transferable"`
	RoyaltyPolicy             string `json:"royalty_policy" gorm:"size:42"`
	DefaultMintingFee         uint64 `json:"default_minting_fee"`
	Expiration                uint64 `json:"expiration"`
	CommercialUse             bool   `json:"commercial_use"`
	CommercialAttribution     bool   `json:"commercial_attribution"`
	CommercializerChecker     string `json:"commercializer_checker" gorm:"size:42"`
	CommercializerCheckerData []byte `json:"commercializer_checker_data"`
	CommercialRevShare        uint32 `json:"commercial_rev_share"`
	CommercialRevCeiling      uint64 `json:"commercial_rev_ceiling"`
	DerivativesAllowed        bool   `json:"derivatives_allowed"`
	DerivativesAttribution    bool   `json:"derivatives_attribution"`
	DerivativesApproval       bool   `json:"derivatives_approval"`
	DerivativesReciprocal     bool   `json:"derivatives_reciprocal"`
	DerivativeRevCeiling      uint64 `json:"derivative_rev_ceiling"`
	Currency                  string `json:"currency" gorm:"size:42"`
	URI                       string `json:"uri" gorm:"type:text"`
}

func (LicenseTerms) TableName() string {
	return "license_terms"
}

// DerivativeApproval records a licensor's approval of one child under one parent license.
type DerivativeApproval struct {
	BaseModel
	Template   string `json:"template" gorm:"size:42;not null;uniqueIndex:idx_derivative_approval,priority:1"`
	ParentIPID string `json:"parent_ip_id" gorm:"size:42;not null;uniqueIndex:idx_derivative_approval,priority:2"`
	TermsID    uint64 `json:"terms_id" gorm:"not null;uniqueIndex:idx_derivative_approval,priority:3"`
	ChildIPID  string `json:"child_ip_id" gorm:"size:42;not null;uniqueIndex:idx_derivative_approval,priority:4"`
	Approved   bool   `json:"approved"`
}
