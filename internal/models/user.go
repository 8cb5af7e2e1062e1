package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User carries the cached spendable balance. The cache is only written in the
// same transaction as the balance entry that changes it; the ledger stays the
// source of truth.
type User struct {
	ID       uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Balance  decimal.Decimal `gorm:"type:numeric(30,2);not null;default:0" json:"balance"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
