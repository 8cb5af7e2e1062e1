package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"scenariomarket/internal/models"
	"scenariomarket/internal/repository"
)

// memRepo is a transactional in-memory repository double. With serializable
// set, InTx holds one big lock for the whole function and restores a snapshot
// on error, mimicking the database's all-or-nothing transaction. With it
// unset, operations interleave freely so tests can exercise the guarded
// scenario update against stale reads.
type memRepo struct {
	mu           sync.Mutex
	serializable bool

	users     map[uint64]*models.User
	scenarios map[uint64]*models.Scenario
	pools     map[uint64]*models.Pool
	holdings  []*models.Holding
	history   []*models.StealHistoryEntry
	shields   []*models.Shield
	entries   []*models.BalanceEntry
	nextID    uint64

	// afterHistoryInsert runs mid-transaction, right after a steal history
	// row is written; tests use it to inject a competing writer.
	afterHistoryInsert func(r *memRepo)
}

var _ repository.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		serializable: true,
		users:        map[uint64]*models.User{},
		scenarios:    map[uint64]*models.Scenario{},
		pools:        map[uint64]*models.Pool{},
	}
}

func (r *memRepo) id() uint64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) lock() func() {
	if r.serializable {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

type memSnapshot struct {
	users     map[uint64]*models.User
	scenarios map[uint64]*models.Scenario
	pools     map[uint64]*models.Pool
	holdings  []*models.Holding
	history   []*models.StealHistoryEntry
	shields   []*models.Shield
	entries   []*models.BalanceEntry
	nextID    uint64
}

func (r *memRepo) snapshot() memSnapshot {
	snap := memSnapshot{
		users:     map[uint64]*models.User{},
		scenarios: map[uint64]*models.Scenario{},
		pools:     map[uint64]*models.Pool{},
		nextID:    r.nextID,
	}
	for k, v := range r.users {
		c := *v
		snap.users[k] = &c
	}
	for k, v := range r.scenarios {
		c := *v
		snap.scenarios[k] = &c
	}
	for k, v := range r.pools {
		c := *v
		snap.pools[k] = &c
	}
	for _, v := range r.holdings {
		c := *v
		snap.holdings = append(snap.holdings, &c)
	}
	for _, v := range r.history {
		c := *v
		snap.history = append(snap.history, &c)
	}
	for _, v := range r.shields {
		c := *v
		snap.shields = append(snap.shields, &c)
	}
	for _, v := range r.entries {
		c := *v
		snap.entries = append(snap.entries, &c)
	}
	return snap
}

func (r *memRepo) restore(snap memSnapshot) {
	r.users = snap.users
	r.scenarios = snap.scenarios
	r.pools = snap.pools
	r.holdings = snap.holdings
	r.history = snap.history
	r.shields = snap.shields
	r.entries = snap.entries
	r.nextID = snap.nextID
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.serializable {
		return fn(nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(nil); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

// --- Users ------------------------------------------------------------------

func (r *memRepo) CreateUser(ctx context.Context, item *models.User) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.users[item.ID] = &copied
	return nil
}

func (r *memRepo) CreateUserTx(ctx context.Context, tx *gorm.DB, item *models.User) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.users[item.ID] = &copied
	return nil
}

func (r *memRepo) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	defer r.lock()()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *memRepo) GetUserByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error) {
	return r.GetUserByID(ctx, id)
}

func (r *memRepo) UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id uint64, balance decimal.Decimal) error {
	defer r.lock()()
	if u, ok := r.users[id]; ok {
		u.Balance = balance
	}
	return nil
}

func (r *memRepo) ListUserIDs(ctx context.Context, limit, offset int) ([]uint64, error) {
	defer r.lock()()
	var ids []uint64
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- Scenarios --------------------------------------------------------------

func (r *memRepo) CreateScenarioTx(ctx context.Context, tx *gorm.DB, item *models.Scenario) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.scenarios[item.ID] = &copied
	return nil
}

func (r *memRepo) GetScenarioByID(ctx context.Context, id uint64) (*models.Scenario, error) {
	defer r.lock()()
	sc, ok := r.scenarios[id]
	if !ok {
		return nil, nil
	}
	copied := *sc
	return &copied, nil
}

func (r *memRepo) GetScenarioByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.Scenario, error) {
	return r.GetScenarioByID(ctx, id)
}

func (r *memRepo) ListScenarios(ctx context.Context, params repository.ListScenariosParams) ([]models.Scenario, error) {
	defer r.lock()()
	var items []models.Scenario
	for _, sc := range r.scenarios {
		items = append(items, *sc)
	}
	return items, nil
}

func (r *memRepo) CountScenarios(ctx context.Context, params repository.ListScenariosParams) (int64, error) {
	defer r.lock()()
	return int64(len(r.scenarios)), nil
}

func (r *memRepo) UpdateScenarioGuardedTx(ctx context.Context, tx *gorm.DB, item *models.Scenario, expectedStealCount int) (int64, error) {
	defer r.lock()()
	sc, ok := r.scenarios[item.ID]
	if !ok || sc.StealCount != expectedStealCount {
		return 0, nil
	}
	sc.CurrentHolderID = item.CurrentHolderID
	sc.CurrentPrice = item.CurrentPrice
	sc.StealCount = item.StealCount
	sc.IsProtected = item.IsProtected
	sc.ProtectedUntil = item.ProtectedUntil
	sc.LockUntil = item.LockUntil
	return 1, nil
}

func (r *memRepo) SaveScenarioTx(ctx context.Context, tx *gorm.DB, item *models.Scenario) error {
	defer r.lock()()
	copied := *item
	r.scenarios[item.ID] = &copied
	return nil
}

func (r *memRepo) ListDupCandidates(ctx context.Context, category string, since time.Time, limit int) ([]repository.DupCandidate, error) {
	return nil, nil
}

func (r *memRepo) FindScenarioByFingerprint(ctx context.Context, category, fingerprint string) (*models.Scenario, error) {
	defer r.lock()()
	for _, sc := range r.scenarios {
		if sc.Fingerprint == fingerprint && sc.Status == models.ScenarioActive {
			copied := *sc
			return &copied, nil
		}
	}
	return nil, nil
}

// --- Holdings ---------------------------------------------------------------

func (r *memRepo) InsertHoldingTx(ctx context.Context, tx *gorm.DB, item *models.Holding) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.holdings = append(r.holdings, &copied)
	return nil
}

func (r *memRepo) GetActiveHoldingTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Holding, error) {
	defer r.lock()()
	for _, h := range r.holdings {
		if h.ScenarioID == scenarioID && h.IsActive {
			copied := *h
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CloseHoldingTx(ctx context.Context, tx *gorm.DB, holdingID uint64, releasedAt time.Time) error {
	defer r.lock()()
	for _, h := range r.holdings {
		if h.ID == holdingID && h.IsActive {
			h.IsActive = false
			rel := releasedAt
			h.ReleasedAt = &rel
		}
	}
	return nil
}

func (r *memRepo) ListHoldingsByScenario(ctx context.Context, scenarioID uint64) ([]models.Holding, error) {
	defer r.lock()()
	var items []models.Holding
	for _, h := range r.holdings {
		if h.ScenarioID == scenarioID {
			items = append(items, *h)
		}
	}
	return items, nil
}

// --- Steal history ----------------------------------------------------------

func (r *memRepo) InsertStealHistoryTx(ctx context.Context, tx *gorm.DB, item *models.StealHistoryEntry) error {
	unlock := r.lock()
	item.ID = r.id()
	copied := *item
	r.history = append(r.history, &copied)
	unlock()
	if r.afterHistoryInsert != nil {
		r.afterHistoryInsert(r)
	}
	return nil
}

func (r *memRepo) ListStealHistory(ctx context.Context, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error) {
	defer r.lock()()
	var items []models.StealHistoryEntry
	for _, h := range r.history {
		if h.ScenarioID == scenarioID {
			items = append(items, *h)
		}
	}
	return items, nil
}

func (r *memRepo) ListStealHistoryTx(ctx context.Context, tx *gorm.DB, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error) {
	defer r.lock()()
	var all []models.StealHistoryEntry
	for _, h := range r.history {
		if h.ScenarioID == scenarioID {
			all = append(all, *h)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// --- Pools ------------------------------------------------------------------

func (r *memRepo) CreatePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.pools[item.ScenarioID] = &copied
	return nil
}

func (r *memRepo) GetPoolByScenarioID(ctx context.Context, scenarioID uint64) (*models.Pool, error) {
	defer r.lock()()
	p, ok := r.pools[scenarioID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *memRepo) GetPoolForUpdateTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Pool, error) {
	return r.GetPoolByScenarioID(ctx, scenarioID)
}

func (r *memRepo) SavePoolTx(ctx context.Context, tx *gorm.DB, item *models.Pool) error {
	defer r.lock()()
	copied := *item
	r.pools[item.ScenarioID] = &copied
	return nil
}

// --- Shields ----------------------------------------------------------------

func (r *memRepo) InsertShieldTx(ctx context.Context, tx *gorm.DB, item *models.Shield) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.shields = append(r.shields, &copied)
	return nil
}

func (r *memRepo) GetActiveShieldTx(ctx context.Context, tx *gorm.DB, scenarioID uint64) (*models.Shield, error) {
	defer r.lock()()
	for _, sh := range r.shields {
		if sh.ScenarioID == scenarioID && sh.IsActive {
			copied := *sh
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRepo) DeactivateShieldTx(ctx context.Context, tx *gorm.DB, shieldID uint64) error {
	defer r.lock()()
	for _, sh := range r.shields {
		if sh.ID == shieldID {
			sh.IsActive = false
		}
	}
	return nil
}

func (r *memRepo) ExpireShields(ctx context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for _, sh := range r.shields {
		if sh.IsActive && sh.ProtectionUntil.Before(now) {
			sh.IsActive = false
			n++
		}
	}
	for _, sc := range r.scenarios {
		if sc.IsProtected && sc.ProtectedUntil != nil && sc.ProtectedUntil.Before(now) {
			sc.IsProtected = false
			sc.ProtectedUntil = nil
		}
	}
	return n, nil
}

// --- Balance ledger ---------------------------------------------------------

func (r *memRepo) InsertBalanceEntryTx(ctx context.Context, tx *gorm.DB, item *models.BalanceEntry) error {
	defer r.lock()()
	item.ID = r.id()
	copied := *item
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *memRepo) ListBalanceEntries(ctx context.Context, userID uint64, params repository.ListBalanceEntriesParams) ([]models.BalanceEntry, error) {
	defer r.lock()()
	var items []models.BalanceEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			items = append(items, *e)
		}
	}
	return items, nil
}

func (r *memRepo) SumBalanceEntries(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	defer r.lock()()
	sum := decimal.Zero
	for _, e := range r.entries {
		if e.UserID == userID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}
