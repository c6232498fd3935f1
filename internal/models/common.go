// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSONB stores a JSON document; postgres keeps it as jsonb, sqlite as text.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("unsupported JSONB source type")
	}
}

// Enums
type ModuleKind string

const (
	ModuleKindLicenseTemplate       ModuleKind = "license_template"
	ModuleKindRoyaltyPolicy         ModuleKind = "royalty_policy"
	ModuleKindExternalRoyaltyPolicy ModuleKind = "external_royalty_policy"
	ModuleKindCurrencyToken         ModuleKind = "currency_token"
	ModuleKindLicensingHook         ModuleKind = "licensing_hook"
	ModuleKindCommercializerChecker ModuleKind = "commercializer_checker"
	ModuleKindGroupRewardPool       ModuleKind = "group_reward_pool"
)

type EventType string

const (
	EventLicenseTermsRegistered  EventType = "license_terms_registered"
	EventLicenseTermsAttached    EventType = "license_terms_attached"
	EventLicenseTokensMinted     EventType = "license_tokens_minted"
	EventLicenseTokenTransferred EventType = "license_token_transferred"
	EventDerivativeRegistered    EventType = "derivative_registered"
	EventLicensingConfigSet      EventType = "licensing_config_set"
	EventDerivativeApproved      EventType = "derivative_approved"
	EventRoyaltyPaid             EventType = "royalty_paid"
	EventRoyaltyVaultDeployed    EventType = "royalty_vault_deployed"
	EventSnapshotCompleted       EventType = "snapshot_completed"
	EventRevenueClaimed          EventType = "revenue_claimed"
	EventRoyaltyTokensCollected  EventType = "royalty_tokens_collected"
	EventSharesTransferred       EventType = "royalty_shares_transferred"
	EventGroupRegistered         EventType = "group_registered"
	EventGroupMembersAdded       EventType = "group_members_added"
	EventGroupMembersRemoved     EventType = "group_members_removed"
	EventGroupRoyaltiesCollected EventType = "group_royalties_collected"
	EventGroupRewardClaimed      EventType = "group_reward_claimed"
	EventIPRegistered            EventType = "ip_registered"
	EventDisputeTagged           EventType = "dispute_tagged"
	EventDisputeResolved         EventType = "dispute_resolved"
	EventProtocolPaused          EventType = "protocol_paused"
	EventProtocolUnpaused        EventType = "protocol_unpaused"
)
