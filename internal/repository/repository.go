package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"scenariomarket/internal/models"
)

type ListScenariosParams struct {
	Status   *string
	Category *string
	HolderID *uint64
	Limit    int
	Offset   int
	OrderBy  string
	Asc      *bool
}

type ListBalanceEntriesParams struct {
	Limit  int
	Offset int
}

// DupCandidate is the projection the duplicate gate scores against.
type DupCandidate struct {
	ScenarioID     uint64
	Title          string
	Description    string
	Fingerprint    string
	HolderUsername string
	CurrentPrice   decimal.Decimal
}

// Repository is the single store behind the ownership engine. Methods with a
// Tx suffix run inside a caller-owned transaction; everything the transfer
// engine commits goes through InTx so a failed sub-step rolls back the whole
// unit.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users / balances
	CreateUser(ctx context.Context, item *models.User) error
	CreateUserTx(ctx context.Context, tx *gorm.DB, item *models.User) error
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	GetUserByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error)
	UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id uint64, balance decimal.Decimal) error
	ListUserIDs(ctx context.Context, limit, offset int) ([]uint64, error)

	// Scenarios
	CreateScenarioTx(ctx context.Context, tx *gorm.DB, item *models.Scenario) error
	GetScenarioByID(ctx context.Context, id uint64) (*models.Scenario, error)
	GetScenarioByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Scenario, error)
	ListScenarios(ctx context.Context, params ListScenariosParams) ([]models.Scenario, error)
	CountScenarios(ctx context.Context, params ListScenariosParams) (int64, error)
	// UpdateScenarioGuardedTx applies item's ownership fields only if the
	// stored row still has steal_count == expectedStealCount. Returns the
	// number of rows updated; zero means the caller lost the race.
	UpdateScenarioGuardedTx(ctx context.Context, tx *gorm.DB, item *models.Scenario, expectedStealCount int) (int64, error)
	SaveScenarioTx(ctx context.Context, tx *gorm.DB, item *models.Scenario) error
	ListDupCandidates(ctx context.Context, category string, since time.Time, limit int) ([]DupCandidate, error)
	FindScenarioByFingerprint(ctx context.Context, category, fingerprint string) (*models.Scenario, error)

	// Holdings
	InsertHoldingTx(ctx context.Context, tx *gorm.DB, item *models.Holding) error
	GetActiveHoldingTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Holding, error)
	CloseHoldingTx(ctx context.Context, tx *gorm.DB, holdingID uint64, releasedAt time.Time) error
	ListHoldingsByScenario(ctx context.Context, scenarioID uint64) ([]models.Holding, error)

	// Steal history
	InsertStealHistoryTx(ctx context.Context, tx *gorm.DB, item *models.StealHistoryEntry) error
	ListStealHistory(ctx context.Context, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error)
	ListStealHistoryTx(ctx context.Context, tx *gorm.DB, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error)

	// Pools
	CreatePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error
	GetPoolByScenarioID(ctx context.Context, scenarioID uint64) (*models.Pool, error)
	GetPoolForUpdateTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Pool, error)
	SavePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error

	// Shields
	InsertShieldTx(ctx context.Context, tx *gorm.DB, item *models.Shield) error
	GetActiveShieldTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Shield, error)
	DeactivateShieldTx(ctx context.Context, tx *gorm.DB, shieldID uint64) error
	ExpireShields(ctx context.Context, now time.Time) (int64, error)

	// Balance ledger
	InsertBalanceEntryTx(ctx context.Context, tx *gorm.DB, item *models.BalanceEntry) error
	ListBalanceEntries(ctx context.Context, userID uint64, params ListBalanceEntriesParams) ([]models.BalanceEntry, error)
	SumBalanceEntries(ctx context.Context, userID uint64) (decimal.Decimal, error)
}
