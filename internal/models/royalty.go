// internal/models/royalty.go
package models

// RoyaltyVault is the per-IP revenue vault. The share supply is fixed at creation;
// UnclaimedShares are held by the vault itself on behalf of ancestors.
type RoyaltyVault struct {
	IPID            string `json:"ip_id" gorm:"primaryKey;size:42"`
	Address         string `json:"address" gorm:"size:42;not null;uniqueIndex"`
	Policy          string `json:"policy" gorm:"size:42;not null"`
	RoyaltyStack    uint64 `json:"royalty_stack"`
	TotalShares     uint64 `json:"total_shares"`
	UnclaimedShares uint64 `json:"unclaimed_shares"`
	SnapshotCount   uint64 `json:"snapshot_count"`
	LastSnapshotAt  uint64 `json:"last_snapshot_at"`
	DeployedAt      uint64 `json:"deployed_at"`
}

// AncestorRoyalty is the share allocation withheld for one ancestor.
type AncestorRoyalty struct {
	BaseModel
	VaultIPID    string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_ancestor_royalty,priority:1"`
	AncestorIPID string `json:"ancestor_ip_id" gorm:"size:42;not null;uniqueIndex:idx_ancestor_royalty,priority:2"`
	Shares       uint64 `json:"shares"`
	Collected    bool   `json:"collected"`
}

// VaultRevenueToken tracks the vault's holdings of one revenue token.
// Balance - ClaimVaultAmount - AncestorsVaultAmount is revenue not yet snapshotted.
type VaultRevenueToken struct {
	BaseModel
	VaultIPID            string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_vault_token,priority:1"`
	Token                string `json:"token" gorm:"size:42;not null;uniqueIndex:idx_vault_token,priority:2"`
	Balance              uint64 `json:"balance"`
	ClaimVaultAmount     uint64 `json:"claim_vault_amount"`
	AncestorsVaultAmount uint64 `json:"ancestors_vault_amount"`
}

type VaultSnapshot struct {
	BaseModel
	VaultIPID       string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_vault_snapshot,priority:1"`
	SnapshotID      uint64 `json:"snapshot_id" gorm:"not null;uniqueIndex:idx_vault_snapshot,priority:2"`
	Timestamp       uint64 `json:"timestamp"`
	UnclaimedShares uint64 `json:"unclaimed_shares"`
}

// SnapshotPool is the claimable amount of one token frozen by one snapshot.
type SnapshotPool struct {
	BaseModel
	VaultIPID  string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_snapshot_pool,priority:1"`
	SnapshotID uint64 `json:"snapshot_id" gorm:"not null;uniqueIndex:idx_snapshot_pool,priority:2"`
	Token      string `json:"token" gorm:"size:42;not null;uniqueIndex:idx_snapshot_pool,priority:3"`
	Amount     uint64 `json:"amount"`
}

type ShareBalance struct {
	BaseModel
	VaultIPID string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_share_balance,priority:1"`
	Holder    string `json:"holder" gorm:"size:42;not null;uniqueIndex:idx_share_balance,priority:2"`
	Balance   uint64 `json:"balance"`
}

// ShareCheckpoint records a holder's balance from Epoch on, where Epoch is the number
// of snapshots taken when the balance changed.
type ShareCheckpoint struct {
	BaseModel
	VaultIPID string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_share_checkpoint,priority:1"`
	Holder    string `json:"holder" gorm:"size:42;not null;uniqueIndex:idx_share_checkpoint,priority:2"`
	Epoch     uint64 `json:"epoch" gorm:"not null;uniqueIndex:idx_share_checkpoint,priority:3"`
	Balance   uint64 `json:"balance"`
}

type RevenueClaim struct {
	BaseModel
	VaultIPID  string `json:"vault_ip_id" gorm:"size:42;not null;uniqueIndex:idx_revenue_claim,priority:1"`
	SnapshotID uint64 `json:"snapshot_id" gorm:"not null;uniqueIndex:idx_revenue_claim,priority:2"`
	Token      string `json:"token" gorm:"size:42;not null;uniqueIndex:idx_revenue_claim,priority:3"`
	Holder     string `json:"holder" gorm:"size:42;not null;uniqueIndex:idx_revenue_claim,priority:4"`
	Amount     uint64 `json:"amount"`
}
