package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scenariomarket/internal/models"
	"scenariomarket/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Users ------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) CreateUserTx(ctx context.Context, tx *gorm.DB, item *models.User) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error) {
	if tx == nil || id == 0 {
		return nil, nil
	}
	var item models.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id uint64, balance decimal.Decimal) error {
	if tx == nil || id == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) ListUserIDs(ctx context.Context, limit, offset int) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []uint64
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Order("id asc").
		Limit(normalizeLimit(limit, 200)).
		Offset(normalizeOffset(offset)).
		Pluck("id", &ids).Error
	return ids, err
}

// --- Scenarios --------------------------------------------------------------

func (s *Store) CreateScenarioTx(ctx context.Context, tx *gorm.DB, item *models.Scenario) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetScenarioByID(ctx context.Context, id uint64) (*models.Scenario, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Scenario
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetScenarioByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Scenario, error) {
	if tx == nil || id == 0 {
		return nil, nil
	}
	var item models.Scenario
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListScenarios(ctx context.Context, params repository.ListScenariosParams) ([]models.Scenario, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyScenarioFilters(s.db.WithContext(ctx).Model(&models.Scenario{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Scenario
	err := query.
		Limit(normalizeLimit(params.Limit, 50)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountScenarios(ctx context.Context, params repository.ListScenariosParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.applyScenarioFilters(s.db.WithContext(ctx).Model(&models.Scenario{}), params).
		Count(&total).Error
	return total, err
}

func (s *Store) applyScenarioFilters(query *gorm.DB, params repository.ListScenariosParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.HolderID != nil && *params.HolderID != 0 {
		query = query.Where("current_holder_id = ?", *params.HolderID)
	}
	return query
}

func (s *Store) UpdateScenarioGuardedTx(ctx context.Context, tx *gorm.DB, item *models.Scenario, expectedStealCount int) (int64, error) {
	if tx == nil || item == nil || item.ID == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.Scenario{}).
		Where("id = ? AND steal_count = ?", item.ID, expectedStealCount).
		Updates(map[string]any{
			"current_holder_id": item.CurrentHolderID,
			"current_price":     item.CurrentPrice,
			"steal_count":       item.StealCount,
			"is_protected":      item.IsProtected,
			"protected_until":   item.ProtectedUntil,
			"lock_until":        item.LockUntil,
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) SaveScenarioTx(ctx context.Context, tx *gorm.DB, item *models.Scenario) error {
	if tx == nil || item == nil || item.ID == 0 {
		return nil
	}
	return tx.WithContext(ctx).Save(item).Error
}

func (s *Store) ListDupCandidates(ctx context.Context, category string, since time.Time, limit int) ([]repository.DupCandidate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Table("scenarios").
		Select("scenarios.id AS scenario_id, scenarios.title, scenarios.description, scenarios.fingerprint, scenarios.current_price, COALESCE(users.username, '') AS holder_username").
		Joins("LEFT JOIN users ON users.id = scenarios.current_holder_id").
		Where("scenarios.status = ?", models.ScenarioActive)
	if strings.TrimSpace(category) != "" {
		query = query.Where("scenarios.category = ?", strings.TrimSpace(category))
	}
	if !since.IsZero() {
		query = query.Where("scenarios.created_at >= ?", since)
	}
	var items []repository.DupCandidate
	err := query.
		Order("scenarios.created_at desc").
		Limit(normalizeLimit(limit, 200)).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) FindScenarioByFingerprint(ctx context.Context, category, fingerprint string) (*models.Scenario, error) {
	if s == nil || s.db == nil || strings.TrimSpace(fingerprint) == "" {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Where("status = ?", models.ScenarioActive)
	if strings.TrimSpace(category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(category))
	}
	var item models.Scenario
	err := query.First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Holdings ---------------------------------------------------------------

func (s *Store) InsertHoldingTx(ctx context.Context, tx *gorm.DB, item *models.Holding) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetActiveHoldingTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Holding, error) {
	if tx == nil || scenarioID == 0 {
		return nil, nil
	}
	var item models.Holding
	err := tx.WithContext(ctx).
		Where("scenario_id = ? AND is_active = ?", scenarioID, true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CloseHoldingTx(ctx context.Context, tx *gorm.DB, holdingID uint64, releasedAt time.Time) error {
	if tx == nil || holdingID == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Holding{}).
		Where("id = ? AND is_active = ?", holdingID, true).
		Updates(map[string]any{
			"is_active":   false,
			"released_at": releasedAt,
		}).Error
}

func (s *Store) ListHoldingsByScenario(ctx context.Context, scenarioID uint64) ([]models.Holding, error) {
	if s == nil || s.db == nil || scenarioID == 0 {
		return nil, nil
	}
	var items []models.Holding
	err := s.db.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("acquired_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Steal history ----------------------------------------------------------

func (s *Store) InsertStealHistoryTx(ctx context.Context, tx *gorm.DB, item *models.StealHistoryEntry) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) ListStealHistory(ctx context.Context, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error) {
	if s == nil || s.db == nil || scenarioID == 0 {
		return nil, nil
	}
	var items []models.StealHistoryEntry
	err := s.db.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("steal_number asc").
		Limit(normalizeLimit(limit, 100)).
		Offset(normalizeOffset(offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStealHistoryTx(ctx context.Context, tx *gorm.DB, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error) {
	if s == nil || tx == nil || scenarioID == 0 {
		return nil, nil
	}
	var items []models.StealHistoryEntry
	err := tx.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Order("steal_number asc").
		Limit(normalizeLimit(limit, 100)).
		Offset(normalizeOffset(offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Pools ------------------------------------------------------------------

func (s *Store) CreatePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPoolByScenarioID(ctx context.Context, scenarioID uint64) (*models.Pool, error) {
	if s == nil || s.db == nil || scenarioID == 0 {
		return nil, nil
	}
	var item models.Pool
	err := s.db.WithContext(ctx).First(&item, "scenario_id = ?", scenarioID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPoolForUpdateTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Pool, error) {
	if tx == nil || scenarioID == 0 {
		return nil, nil
	}
	var item models.Pool
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "scenario_id = ?", scenarioID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SavePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	if tx == nil || item == nil || item.ID == 0 {
		return nil
	}
	return tx.WithContext(ctx).Save(item).Error
}

// --- Shields ----------------------------------------------------------------

func (s *Store) InsertShieldTx(ctx context.Context, tx *gorm.DB, item *models.Shield) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetActiveShieldTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Shield, error) {
	if tx == nil || scenarioID == 0 {
		return nil, nil
	}
	var item models.Shield
	err := tx.WithContext(ctx).
		Where("scenario_id = ? AND is_active = ?", scenarioID, true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeactivateShieldTx(ctx context.Context, tx *gorm.DB, shieldID uint64) error {
	if tx == nil || shieldID == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Shield{}).
		Where("id = ?", shieldID).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) ExpireShields(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Shield{}).
		Where("is_active = ? AND protection_until < ?", true, now).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	// Clear the protected flag on scenarios whose shield window lapsed.
	clear := s.db.WithContext(ctx).
		Model(&models.Scenario{}).
		Where("is_protected = ? AND protected_until < ?", true, now).
		Updates(map[string]any{
			"is_protected":    false,
			"protected_until": nil,
			"updated_at":      now,
		})
	if clear.Error != nil {
		return res.RowsAffected, clear.Error
	}
	return res.RowsAffected, nil
}

// --- Balance ledger ---------------------------------------------------------

func (s *Store) InsertBalanceEntryTx(ctx context.Context, tx *gorm.DB, item *models.BalanceEntry) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) ListBalanceEntries(ctx context.Context, userID uint64, params repository.ListBalanceEntriesParams) ([]models.BalanceEntry, error) {
	if s == nil || s.db == nil || userID == 0 {
		return nil, nil
	}
	var items []models.BalanceEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumBalanceEntries(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	if s == nil || s.db == nil || userID == 0 {
		return decimal.Zero, nil
	}
	var raw decimal.NullDecimal
	err := s.db.WithContext(ctx).
		Model(&models.BalanceEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
