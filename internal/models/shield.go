package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shield is a purchased immunity window. At most one shield per scenario is
// active; buying a new one replaces the old, never stacks.
type Shield struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ScenarioID    uint64 `gorm:"not null;index" json:"scenario_id"`
	BeneficiaryID uint64 `gorm:"not null;index" json:"beneficiary_id"`

	ProtectionUntil time.Time       `gorm:"type:timestamptz;not null" json:"protection_until"`
	PricePaid       decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"price_paid"`
	IsActive        bool            `gorm:"not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Shield) TableName() string {
	return "shields"
}
