// internal/models/ip_asset.go
package models

// IPAsset is the identity record of a registered IP and its owning account.
type IPAsset struct {
	BaseModel
	IPID          string `json:"ip_id" gorm:"size:42;not null;uniqueIndex"`
	Owner         string `json:"owner" gorm:"size:42;not null;index"`
	ChainID       uint64 `json:"chain_id"`
	TokenContract string `json:"token_contract" gorm:"size:42"`
	TokenID       uint64 `json:"token_id"`
	Name          string `json:"name" gorm:"size:255"`
	RegisteredAt  uint64 `json:"registered_at"`
}

// IPPermission grants a signer the right to perform an action on behalf of an IP.
// An empty action grants every action.
type IPPermission struct {
	BaseModel
	IPID    string `json:"ip_id" gorm:"size:42;not null;uniqueIndex:idx_ip_permission,priority:1"`
	Signer  string `json:"signer" gorm:"size:42;not null;uniqueIndex:idx_ip_permission,priority:2"`
	Action  string `json:"action" gorm:"size:64;not null;uniqueIndex:idx_ip_permission,priority:3"`
	Allowed bool   `json:"allowed"`
}

type DisputeTag struct {
	BaseModel
	IPID     string `json:"ip_id" gorm:"size:42;not null;index"`
	Tag      string `json:"tag" gorm:"size:64;not null"`
	Evidence string `json:"evidence" gorm:"type:text"`
	Resolved bool   `json:"resolved" gorm:"index"`
	TaggedBy string `json:"tagged_by" gorm:"size:42"`
}

// IPGroup marks a group IP and the reward pool that splits its revenue.
type IPGroup struct {
	BaseModel
	GroupIPID  string `json:"group_ip_id" gorm:"size:42;not null;uniqueIndex"`
	RewardPool string `json:"reward_pool" gorm:"size:42;not null"`
}

type GroupMember struct {
	BaseModel
	GroupIPID  string `json:"group_ip_id" gorm:"size:42;not null;uniqueIndex:idx_group_member,priority:1"`
	MemberIPID string `json:"member_ip_id" gorm:"size:42;not null;uniqueIndex:idx_group_member,priority:2;index"`
}

// GroupRewardBalance is a member's unclaimed reward, plus the pool's undistributed dust
// under the group's own IP id.
type GroupRewardBalance struct {
	BaseModel
	GroupIPID  string `json:"group_ip_id" gorm:"size:42;not null;uniqueIndex:idx_group_reward,priority:1"`
	MemberIPID string `json:"member_ip_id" gorm:"size:42;not null;uniqueIndex:idx_group_reward,priority:2"`
	Token      string `json:"token" gorm:"size:42;not null;uniqueIndex:idx_group_reward,priority:3"`
	Amount     uint64 `json:"amount"`
}
