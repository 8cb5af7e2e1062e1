package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AcquisitionType is a closed set; every consumer must handle all three.
// Recovery is reserved for returning a holding outside the steal flow and has
// no trigger in the engine yet.
type AcquisitionType string

const (
	AcquisitionCreation AcquisitionType = "creation"
	AcquisitionSteal    AcquisitionType = "steal"
	AcquisitionRecovery AcquisitionType = "recovery"
)

// Holding records one user's tenure as holder of a scenario. At most one
// holding per scenario has IsActive set; tenures never overlap in time.
type Holding struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ScenarioID uint64          `gorm:"not null;index:idx_holdings_scenario" json:"scenario_id"`
	HolderID   uint64          `gorm:"not null;index" json:"holder_id"`
	Acquired   AcquisitionType `gorm:"type:varchar(16);not null" json:"acquired"`
	PricePaid  decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"price_paid"`
	IsActive   bool            `gorm:"not null;default:true;index:idx_holdings_scenario" json:"is_active"`

	AcquiredAt time.Time  `gorm:"type:timestamptz;not null" json:"acquired_at"`
	ReleasedAt *time.Time `gorm:"type:timestamptz" json:"released_at,omitempty"`
}

func (Holding) TableName() string {
	return "holdings"
}
