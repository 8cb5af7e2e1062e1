package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ScenarioStatus string

const (
	ScenarioDraft     ScenarioStatus = "draft"
	ScenarioActive    ScenarioStatus = "active"
	ScenarioClosed    ScenarioStatus = "closed"
	ScenarioResolved  ScenarioStatus = "resolved"
	ScenarioCancelled ScenarioStatus = "cancelled"
)

// Scenario is a yes/no proposition market with a single current holder.
// While active, CurrentHolderID is non-null; CurrentPrice never decreases and
// StealCount grows by exactly one per successful transfer.
type Scenario struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatorID   uint64         `gorm:"not null;index" json:"creator_id"`
	Category    string         `gorm:"type:varchar(64);not null;index" json:"category"`
	Title       string         `gorm:"type:text;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      ScenarioStatus `gorm:"type:varchar(20);not null;index;default:'draft'" json:"status"`

	// Fingerprint is the normalized content hash used for exact-duplicate
	// detection.
	Fingerprint string `gorm:"type:char(64);index;not null" json:"-"`

	CurrentHolderID *uint64         `gorm:"index" json:"current_holder_id"`
	BasePrice       decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"base_price"`
	CurrentPrice    decimal.Decimal `gorm:"type:numeric(30,2);not null" json:"current_price"`
	StealCount      int             `gorm:"not null;default:0" json:"steal_count"`

	IsProtected    bool       `gorm:"not null;default:false" json:"is_protected"`
	ProtectedUntil *time.Time `gorm:"type:timestamptz" json:"protected_until,omitempty"`
	LockUntil      *time.Time `gorm:"type:timestamptz" json:"lock_until,omitempty"`

	Outcome    *string    `gorm:"type:varchar(10)" json:"outcome,omitempty"`
	ResolvedAt *time.Time `gorm:"type:timestamptz" json:"resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Scenario) TableName() string {
	return "scenarios"
}
