package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StealHistoryEntry is the immutable per-transfer ledger row.
// PricePaid = VictimPayout + PoolContribution + PlatformContribution, and
// StealNumber is strictly increasing per scenario starting at 1.
type StealHistoryEntry struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ScenarioID uint64 `gorm:"not null;uniqueIndex:idx_steal_history_seq" json:"scenario_id"`
	ThiefID    uint64 `gorm:"not null;index" json:"thief_id"`
	VictimID   uint64 `gorm:"not null;index" json:"victim_id"`

	PricePaid            decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"price_paid"`
	VictimPayout         decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"victim_payout"`
	PoolContribution     decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"pool_contribution"`
	PlatformContribution decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"platform_contribution"`

	StealNumber int `gorm:"not null;uniqueIndex:idx_steal_history_seq" json:"steal_number"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (StealHistoryEntry) TableName() string {
	return "steal_history"
}
