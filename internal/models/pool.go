package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is the per-scenario prize fund. TotalPool = UserContributions +
// PlatformContributions until payout; PaidOut and CreatorReimbursed are
// one-way latches.
type Pool struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ScenarioID uint64 `gorm:"not null;uniqueIndex" json:"scenario_id"`

	TotalPool             decimal.Decimal `gorm:"type:numeric(30,2);not null;default:0" json:"total_pool"`
	UserContributions     decimal.Decimal `gorm:"type:numeric(30,2);not null;default:0" json:"user_contributions"`
	PlatformContributions decimal.Decimal `gorm:"type:numeric(30,2);not null;default:0" json:"platform_contributions"`

	PaidOut           bool            `gorm:"not null;default:false" json:"paid_out"`
	WinnerPayout      decimal.Decimal `gorm:"type:numeric(30,2);not null;default:0" json:"winner_payout"`
	CreatorReimbursed bool            `gorm:"not null;default:false" json:"creator_reimbursed"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Pool) TableName() string {
	return "pools"
}
