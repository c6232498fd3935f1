// internal/models/license_registry.go
package models

// IPLicenseState holds the per-IP licensing pin and expiration.
type IPLicenseState struct {
	IPID       string `json:"ip_id" gorm:"primaryKey;size:42"`
	Template   string `json:"template" gorm:"size:42"`
	ExpireTime uint64 `json:"expire_time"` // 0 = never expires
}

// LicenseAttachment is one entry of an IP's ordered attached-terms set.
type LicenseAttachment struct {
	BaseModel
	IPID     string `json:"ip_id" gorm:"size:42;not null;uniqueIndex:idx_attachment,priority:1;index:idx_attachment_position,priority:1"`
	Template string `json:"template" gorm:"size:42;not null;uniqueIndex:idx_attachment,priority:2"`
	TermsID  uint64 `json:"terms_id" gorm:"not null;uniqueIndex:idx_attachment,priority:3"`
	Position int    `json:"position" gorm:"not null;index:idx_attachment_position,priority:2"`
}

// DerivativeEdge is an immutable parent -> child link of the derivative graph.
type DerivativeEdge struct {
	BaseModel
	ParentIPID     string `json:"parent_ip_id" gorm:"size:42;not null;uniqueIndex:idx_edge,priority:2;index:idx_edge_parent,priority:1"`
	ChildIPID      string `json:"child_ip_id" gorm:"size:42;not null;uniqueIndex:idx_edge,priority:1"`
	Template       string `json:"template" gorm:"size:42;not null"`
	TermsID        uint64 `json:"terms_id" gorm:"not null"`
	ParentPosition int    `json:"parent_position" gorm:"not null"`
	ChildPosition  int    `json:"child_position" gorm:"not null;index:idx_edge_parent,priority:2"`
}

// LicensingConfig is a per-IP (empty template, terms 0) or per-license override.
type LicensingConfig struct {
	BaseModel
	IPID        string `json:"ip_id" gorm:"size:42;not null;uniqueIndex:idx_licensing_config,priority:1"`
	Template    string `json:"template" gorm:"size:42;not null;uniqueIndex:idx_licensing_config,priority:2"`
	TermsID     uint64 `json:"terms_id" gorm:"not null;uniqueIndex:idx_licensing_config,priority:3"`
	IsSet       bool   `json:"is_set"`
	MintingFee  uint64 `json:"minting_fee"`
	HookAddress string `json:"hook_address" gorm:"size:42"`
	HookData    []byte `json:"hook_data"`
}

// LicenseToken is a license NFT; ids are sequential across the protocol.
type LicenseToken struct {
	TokenID      uint64 `json:"token_id" gorm:"primaryKey;autoIncrement:false"`
	LicensorIPID string `json:"licensor_ip_id" gorm:"size:42;not null;index"`
	Template     string `json:"template" gorm:"size:42;not null"`
	TermsID      uint64 `json:"terms_id" gorm:"not null"`
	Owner        string `json:"owner" gorm:"size:42;not null;index"`
	Transferable bool   `json:"transferable"`
	ExpiresAt    uint64 `json:"expires_at"` // 0 = never expires
	MintedAt     uint64 `json:"minted_at"`
	Burned       bool   `json:"burned" gorm:"index"`
}
