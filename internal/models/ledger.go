// internal/models/ledger.go
package models

// TokenBalance is one account's balance of a fungible currency token.
type TokenBalance struct {
	BaseModel
	Token   string `json:"token" gorm:"size:42;not null;uniqueIndex:idx_token_balance,priority:1"`
	Account string `json:"account" gorm:"size:42;not null;uniqueIndex:idx_token_balance,priority:2"`
	Balance uint64 `json:"balance"`
}

// ModuleRegistration is an allow-list entry (templates, policies, currencies, hooks).
type ModuleRegistration struct {
	BaseModel
	Address string     `json:"address" gorm:"size:42;not null;uniqueIndex:idx_module,priority:2"`
	Kind    ModuleKind `json:"kind" gorm:"type:varchar(40);not null;uniqueIndex:idx_module,priority:1"`
	Name    string     `json:"name" gorm:"size:100"`
}

// ProtocolEvent is the persisted event log, written in the emitting transaction.
type ProtocolEvent struct {
	BaseModel
	EventID string    `json:"event_id" gorm:"size:36;not null;uniqueIndex"`
	Type    EventType `json:"type" gorm:"type:varchar(50);not null;index"`
	IPID    string    `json:"ip_id" gorm:"size:42;index"`
	Caller  string    `json:"caller" gorm:"size:42"`
	Data    JSONB     `json:"data" gorm:"type:text"`
}

// ProtocolSetting is a persisted protocol-wide setting (e.g. the default license terms).
type ProtocolSetting struct {
	BaseModel
	Key   string `json:"key" gorm:"size:100;not null;uniqueIndex"`
	Value string `json:"value" gorm:"type:text;not null"`
}
