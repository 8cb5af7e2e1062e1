package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EntryType string

const (
	EntryStealDebit       EntryType = "steal_debit"
	EntryStealPayout      EntryType = "steal_payout"
	EntryShieldPurchase   EntryType = "shield_purchase"
	EntryCreationCost     EntryType = "creation_cost"
	EntryResolutionPayout EntryType = "resolution_payout"
	EntryCreatorRefund    EntryType = "creator_refund"
	EntryCancelRefund     EntryType = "cancel_refund"
	EntryDeposit          EntryType = "deposit"
)

type RefKind string

const (
	RefScenario RefKind = "scenario"
	RefSteal    RefKind = "steal"
	RefShield   RefKind = "shield"
)

// BalanceEntry is append-only. Entries are never mutated or deleted; replaying
// a user's entries in created order reproduces their cached balance.
type BalanceEntry struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint64 `gorm:"not null;index" json:"user_id"`

	Amount           decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"amount"`
	ResultingBalance decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"resulting_balance"`

	EntryType EntryType      `gorm:"type:varchar(32);not null;index" json:"entry_type"`
	RefKind   *RefKind       `gorm:"type:varchar(16)" json:"ref_kind,omitempty"`
	RefID     *uint64        `gorm:"index" json:"ref_id,omitempty"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (BalanceEntry) TableName() string {
	return "balance_entries"
}
