package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"scenariomarket/internal/config"
	"scenariomarket/internal/events"
	"scenariomarket/internal/ledger"
	"scenariomarket/internal/models"
	"scenariomarket/internal/repository"
)

func testEconomy() config.EconomyConfig {
	economy := config.EconomyConfig{
		Pricing: config.PricingConfig{
			Curve:     "linear",
			BasePrice: 100,
			Increment: 50,
			Ceiling:   1000000,
		},
		Split: config.SplitConfig{VictimPct: 60, PoolPct: 30, PlatformPct: 10},
		Shields: config.ShieldConfig{
			Presets:     map[string]time.Duration{"1h": time.Hour, "24h": 24 * time.Hour},
			PriceFactor: 0.1,
			MinPrice:    10,
		},
		LockDuration:   15 * time.Minute,
		CreationCost:   100,
		ReimburseOnWin: true,
		StealTimeout:   5 * time.Second,
	}
	economy.Normalize()
	return economy
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(repo *memRepo) (*Engine, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return &Engine{
		Repo:    repo,
		Ledger:  &ledger.Ledger{Store: repo},
		Hub:     events.NewHub(nil),
		Economy: testEconomy(),
		Now:     clock.Now,
	}, clock
}

func seedUser(t *testing.T, repo *memRepo, username string, balance int64) uint64 {
	t.Helper()
	u := &models.User{Username: username, Balance: decimal.NewFromInt(balance)}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if balance != 0 {
		err := repo.InsertBalanceEntryTx(context.Background(), nil, &models.BalanceEntry{
			UserID:           u.ID,
			Amount:           decimal.NewFromInt(balance),
			ResultingBalance: decimal.NewFromInt(balance),
			EntryType:        models.EntryDeposit,
		})
		if err != nil {
			t.Fatalf("seed deposit: %v", err)
		}
	}
	return u.ID
}

func seedScenario(t *testing.T, repo *memRepo, e *Engine, creatorID uint64) uint64 {
	t.Helper()
	ctx := context.Background()
	holder := creatorID
	sc := &models.Scenario{
		CreatorID:       creatorID,
		Category:        "sports",
		Title:           "Will the championship final go to penalties?",
		Status:          models.ScenarioActive,
		CurrentHolderID: &holder,
		BasePrice:       decimal.NewFromInt(100),
		CurrentPrice:    decimal.NewFromInt(100),
	}
	if err := repo.CreateScenarioTx(ctx, nil, sc); err != nil {
		t.Fatalf("seed scenario: %v", err)
	}
	if err := repo.CreatePoolTx(ctx, nil, &models.Pool{ScenarioID: sc.ID, PlatformContributions: decimal.NewFromInt(50), TotalPool: decimal.NewFromInt(50)}); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	err := repo.InsertHoldingTx(ctx, nil, &models.Holding{
		ScenarioID: sc.ID,
		HolderID:   creatorID,
		Acquired:   models.AcquisitionCreation,
		PricePaid:  decimal.NewFromInt(100),
		IsActive:   true,
		AcquiredAt: e.now(),
	})
	if err != nil {
		t.Fatalf("seed holding: %v", err)
	}
	return sc.ID
}

func activeHoldings(t *testing.T, repo *memRepo, scenarioID uint64) []models.Holding {
	t.Helper()
	all, err := repo.ListHoldingsByScenario(context.Background(), scenarioID)
	if err != nil {
		t.Fatalf("list holdings: %v", err)
	}
	var active []models.Holding
	for _, h := range all {
		if h.IsActive {
			active = append(active, h)
		}
	}
	return active
}

func TestSteal_TransfersOwnership(t *testing.T) {
	repo := newMemRepo()
	e, _ := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 0)
	thief := seedUser(t, repo, "bea", 1000)
	scID := seedScenario(t, repo, e, creator)

	receipt, err := e.Steal(ctx, scID, thief)
	if err != nil {
		t.Fatalf("steal: %v", err)
	}
	if receipt.NewHolderID != thief || receipt.VictimID != creator {
		t.Fatalf("receipt=%+v want thief->creator transfer", receipt)
	}
	if receipt.PricePaid.Cmp(decimal.NewFromInt(100)) != 0 {
		t.Fatalf("price=%s want=100", receipt.PricePaid.String())
	}
	if receipt.StealNumber != 1 {
		t.Fatalf("steal number=%d want=1", receipt.StealNumber)
	}

	sc, _ := repo.GetScenarioByID(ctx, scID)
	if sc.CurrentHolderID == nil || *sc.CurrentHolderID != thief {
		t.Fatalf("holder not reassigned")
	}
	if sc.StealCount != 1 {
		t.Fatalf("steal count=%d want=1", sc.StealCount)
	}
	if sc.LockUntil == nil || !sc.LockUntil.After(e.now()) {
		t.Fatalf("lock window not armed")
	}

	active := activeHoldings(t, repo, scID)
	if len(active) != 1 || active[0].HolderID != thief || active[0].Acquired != models.AcquisitionSteal {
		t.Fatalf("active holdings=%+v want exactly one steal holding for thief", active)
	}

	// Conservation across the splits.
	history, _ := repo.ListStealHistory(ctx, scID, 10, 0)
	if len(history) != 1 {
		t.Fatalf("history rows=%d want=1", len(history))
	}
	entry := history[0]
	sum := entry.VictimPayout.Add(entry.PoolContribution).Add(entry.PlatformContribution)
	if sum.Cmp(entry.PricePaid) != 0 {
		t.Fatalf("split sum=%s want=%s", sum.String(), entry.PricePaid.String())
	}

	thiefUser, _ := repo.GetUserByID(ctx, thief)
	if thiefUser.Balance.Cmp(decimal.NewFromInt(900)) != 0 {
		t.Fatalf("thief balance=%s want=900", thiefUser.Balance.String())
	}
	victimUser, _ := repo.GetUserByID(ctx, creator)
	if victimUser.Balance.Cmp(decimal.NewFromInt(60)) != 0 {
		t.Fatalf("victim balance=%s want=60", victimUser.Balance.String())
	}
	pool, _ := repo.GetPoolByScenarioID(ctx, scID)
	if pool.TotalPool.Cmp(decimal.NewFromInt(80)) != 0 {
		t.Fatalf("pool total=%s want=80 (50 seed + 30 contribution)", pool.TotalPool.String())
	}
	if pool.UserContributions.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("user contributions=%s want=30", pool.UserContributions.String())
	}
}

func TestSteal_PreconditionFailures(t *testing.T) {
	repo := newMemRepo()
	e, clock := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 500)
	thief := seedUser(t, repo, "bea", 5)
	rich := seedUser(t, repo, "cyd", 100000)
	scID := seedScenario(t, repo, e, creator)

	if _, err := e.Steal(ctx, scID+99, rich); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing scenario err=%v want ErrNotFound", err)
	}
	if _, err := e.Steal(ctx, scID, creator); !errors.Is(err, ErrSelfSteal) {
		t.Fatalf("self steal err=%v want ErrSelfSteal", err)
	}
	if _, err := e.Steal(ctx, scID, thief); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("poor thief err=%v want ErrInsufficientFunds", err)
	}

	// Shield blocks regardless of buyer balance.
	if _, err := e.PurchaseShield(ctx, scID, creator, "1h"); err != nil {
		t.Fatalf("shield: %v", err)
	}
	if _, err := e.Steal(ctx, scID, rich); !errors.Is(err, ErrProtected) {
		t.Fatalf("shielded err=%v want ErrProtected", err)
	}
	clock.Advance(2 * time.Hour)

	// Non-active status rejects.
	if err := e.Close(ctx, scID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := e.Steal(ctx, scID, rich); !errors.Is(err, ErrNotActive) {
		t.Fatalf("closed err=%v want ErrNotActive", err)
	}
}

func TestSteal_LockWindowRearms(t *testing.T) {
	repo := newMemRepo()
	e, clock := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 0)
	first := seedUser(t, repo, "bea", 1000)
	second := seedUser(t, repo, "cyd", 1000)
	scID := seedScenario(t, repo, e, creator)

	if _, err := e.Steal(ctx, scID, first); err != nil {
		t.Fatalf("first steal: %v", err)
	}
	// No shield purchased, still blocked by the implicit lock.
	if _, err := e.Steal(ctx, scID, second); !errors.Is(err, ErrProtected) {
		t.Fatalf("within lock err=%v want ErrProtected", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := e.Steal(ctx, scID, second); err != nil {
		t.Fatalf("after lock: %v", err)
	}
}

func TestSteal_MonotonicPricingAcrossTransfers(t *testing.T) {
	repo := newMemRepo()
	e, clock := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 0)
	buyers := []uint64{
		seedUser(t, repo, "bea", 100000),
		seedUser(t, repo, "cyd", 100000),
	}
	scID := seedScenario(t, repo, e, creator)

	prev := decimal.Zero
	for n := 0; n < 6; n++ {
		buyer := buyers[n%2]
		receipt, err := e.Steal(ctx, scID, buyer)
		if err != nil {
			t.Fatalf("steal %d: %v", n, err)
		}
		if receipt.PricePaid.LessThan(prev) {
			t.Fatalf("price decreased: %s after %s", receipt.PricePaid.String(), prev.String())
		}
		if receipt.StealNumber != n+1 {
			t.Fatalf("steal number=%d want=%d", receipt.StealNumber, n+1)
		}
		prev = receipt.PricePaid
		clock.Advance(time.Hour)
	}

	sc, _ := repo.GetScenarioByID(ctx, scID)
	if sc.StealCount != 6 {
		t.Fatalf("steal count=%d want=6", sc.StealCount)
	}
	if len(activeHoldings(t, repo, scID)) != 1 {
		t.Fatalf("more than one active holding")
	}
}

func TestSteal_ConcurrentOnlyOneWins(t *testing.T) {
	repo := newMemRepo()
	e, _ := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 0)
	const competitors = 8
	buyers := make([]uint64, competitors)
	for i := range buyers {
		buyers[i] = seedUser(t, repo, "buyer", 10000)
	}
	scID := seedScenario(t, repo, e, creator)

	var wg sync.WaitGroup
	errs := make([]error, competitors)
	for i := 0; i < competitors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Steal(ctx, scID, buyers[i])
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrProtected) || errors.Is(err, ErrPriceChanged):
		default:
			t.Fatalf("competitor %d unexpected err: %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins=%d want exactly 1", wins)
	}

	// Exactly one transfer's worth of debits.
	totalDebits := decimal.Zero
	for _, buyer := range buyers {
		entries, _ := repo.ListBalanceEntries(ctx, buyer, repository.ListBalanceEntriesParams{Limit: 500})
		for _, entry := range entries {
			if entry.EntryType == models.EntryStealDebit {
				totalDebits = totalDebits.Add(entry.Amount)
			}
		}
	}
	if totalDebits.Cmp(decimal.NewFromInt(-100)) != 0 {
		t.Fatalf("total debits=%s want=-100", totalDebits.String())
	}
	if len(activeHoldings(t, repo, scID)) != 1 {
		t.Fatalf("exclusivity violated")
	}
}

func TestSteal_StaleWriteReturnsPriceChanged(t *testing.T) {
	repo := newMemRepo()
	e, _ := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 0)
	thief := seedUser(t, repo, "bea", 1000)
	scID := seedScenario(t, repo, e, creator)

	// A competing writer lands between this transfer's read and its guarded
	// update: the scenario's steal count moves, so the update matches no row.
	repo.afterHistoryInsert = func(r *memRepo) {
		r.scenarios[scID].StealCount++
	}

	before, _ := repo.GetUserByID(ctx, thief)
	_, err := e.Steal(ctx, scID, thief)
	if !errors.Is(err, ErrPriceChanged) {
		t.Fatalf("err=%v want ErrPriceChanged", err)
	}
	after, _ := repo.GetUserByID(ctx, thief)
	if before.Balance.Cmp(after.Balance) != 0 {
		t.Fatalf("failed transfer must leave no partial debit: before=%s after=%s", before.Balance.String(), after.Balance.String())
	}
}

func TestSteal_TimeoutReportsBusy(t *testing.T) {
	repo := newMemRepo()
	e, _ := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 0)
	thief := seedUser(t, repo, "bea", 1000)
	scID := seedScenario(t, repo, e, creator)

	e.Economy.StealTimeout = time.Nanosecond
	time.Sleep(time.Millisecond)
	if _, err := e.Steal(ctx, scID, thief); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v want ErrBusy", err)
	}
}

func TestLedgerReplay_AfterStealCycle(t *testing.T) {
	repo := newMemRepo()
	e, clock := newTestEngine(repo)
	ctx := context.Background()
	creator := seedUser(t, repo, "ana", 200)
	thief := seedUser(t, repo, "bea", 1000)
	scID := seedScenario(t, repo, e, creator)

	if _, err := e.Steal(ctx, scID, thief); err != nil {
		t.Fatalf("steal: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := e.PurchaseShield(ctx, scID, thief, "1h"); err != nil {
		t.Fatalf("shield: %v", err)
	}

	for _, userID := range []uint64{creator, thief} {
		computed, cached, ok, err := e.Ledger.Replay(ctx, userID)
		if err != nil {
			t.Fatalf("replay user %d: %v", userID, err)
		}
		if !ok {
			t.Fatalf("ledger drift for user %d: computed=%s cached=%s", userID, computed.String(), cached.String())
		}
	}
}
