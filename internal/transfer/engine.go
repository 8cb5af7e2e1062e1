package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"scenariomarket/internal/config"
	"scenariomarket/internal/events"
	"scenariomarket/internal/ledger"
	"scenariomarket/internal/models"
	"scenariomarket/internal/pricing"
	"scenariomarket/internal/protection"
	"scenariomarket/internal/repository"
)

// Engine is the ownership transfer state machine. Every mutating operation is
// one repository transaction: the debit, the splits, the holding swap, the
// history row and the scenario update commit together or not at all.
type Engine struct {
	Repo    repository.Repository
	Ledger  *ledger.Ledger
	Hub     *events.Hub
	Economy config.EconomyConfig
	Logger  *zap.Logger

	// Now is replaceable in tests; nil means time.Now in UTC.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// StealReceipt reports a committed transfer.
type StealReceipt struct {
	ScenarioID  uint64          `json:"scenario_id"`
	NewHolderID uint64          `json:"new_holder_id"`
	VictimID    uint64          `json:"victim_id"`
	PricePaid   decimal.Decimal `json:"price_paid"`
	Split       Split           `json:"-"`
	StealNumber int             `json:"steal_number"`
	LockedUntil time.Time       `json:"locked_until"`
}

// Steal transfers the scenario from its current holder to the buyer at the
// authoritative price. State is observed under the scenario row lock, never
// from whatever snapshot the caller displayed; a guarded update on
// (id, steal_count) backstops the lock so a lost race surfaces as
// ErrPriceChanged instead of a lost update.
func (e *Engine) Steal(ctx context.Context, scenarioID, buyerID uint64) (*StealReceipt, error) {
	if e.Economy.StealTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Economy.StealTimeout)
		defer cancel()
	}

	var receipt *StealReceipt
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		now := e.now()
		sc, err := e.Repo.GetScenarioByIDForUpdateTx(ctx, tx, scenarioID)
		if err != nil {
			return err
		}
		if sc == nil {
			return ErrNotFound
		}
		if sc.Status != models.ScenarioActive || sc.CurrentHolderID == nil {
			return ErrNotActive
		}
		victimID := *sc.CurrentHolderID
		if victimID == buyerID {
			return ErrSelfSteal
		}
		if blocked, _ := protection.StealBlocked(sc, now); blocked {
			return ErrProtected
		}

		price := pricing.NextPrice(sc.StealCount, e.Economy.Pricing)
		split := SplitPrice(price, e.Economy.Split)

		if _, err := e.Ledger.Apply(ctx, tx, buyerID, price.Neg(), models.EntryStealDebit, &ledger.Ref{Kind: models.RefScenario, ID: sc.ID}); err != nil {
			if errors.Is(err, ledger.ErrOverdraft) {
				return ErrInsufficientFunds
			}
			return err
		}
		if _, err := e.Ledger.Apply(ctx, tx, victimID, split.Victim, models.EntryStealPayout, &ledger.Ref{Kind: models.RefScenario, ID: sc.ID}); err != nil {
			return err
		}

		pool, err := e.Repo.GetPoolForUpdateTx(ctx, tx, sc.ID)
		if err != nil {
			return err
		}
		if pool == nil {
			return ErrNotFound
		}
		pool.TotalPool = pool.TotalPool.Add(split.Pool)
		pool.UserContributions = pool.UserContributions.Add(split.Pool)
		if err := e.Repo.SavePoolTx(ctx, tx, pool); err != nil {
			return err
		}

		active, err := e.Repo.GetActiveHoldingTx(ctx, tx, sc.ID)
		if err != nil {
			return err
		}
		if active != nil {
			if err := e.Repo.CloseHoldingTx(ctx, tx, active.ID, now); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertHoldingTx(ctx, tx, &models.Holding{
			ScenarioID: sc.ID,
			HolderID:   buyerID,
			Acquired:   models.AcquisitionSteal,
			PricePaid:  price,
			IsActive:   true,
			AcquiredAt: now,
		}); err != nil {
			return err
		}

		stealNumber := sc.StealCount + 1
		if err := e.Repo.InsertStealHistoryTx(ctx, tx, &models.StealHistoryEntry{
			ScenarioID:           sc.ID,
			ThiefID:              buyerID,
			VictimID:             victimID,
			PricePaid:            price,
			VictimPayout:         split.Victim,
			PoolContribution:     split.Pool,
			PlatformContribution: split.Platform,
			StealNumber:          stealNumber,
			CreatedAt:            now,
		}); err != nil {
			return err
		}

		if shield, err := e.Repo.GetActiveShieldTx(ctx, tx, sc.ID); err != nil {
			return err
		} else if shield != nil && !now.Before(shield.ProtectionUntil) {
			if err := e.Repo.DeactivateShieldTx(ctx, tx, shield.ID); err != nil {
				return err
			}
		}

		updated := *sc
		updated.CurrentHolderID = &buyerID
		updated.CurrentPrice = price
		updated.StealCount = stealNumber
		lockUntil := now.Add(e.Economy.LockDuration)
		updated.LockUntil = &lockUntil
		if protection.ShieldExpired(sc, now) {
			updated.IsProtected = false
			updated.ProtectedUntil = nil
		}
		rows, err := e.Repo.UpdateScenarioGuardedTx(ctx, tx, &updated, sc.StealCount)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPriceChanged
		}

		receipt = &StealReceipt{
			ScenarioID:  sc.ID,
			NewHolderID: buyerID,
			VictimID:    victimID,
			PricePaid:   price,
			Split:       split,
			StealNumber: stealNumber,
			LockedUntil: lockUntil,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrBusy
		}
		return nil, err
	}

	if e.Hub != nil {
		e.Hub.Publish(events.Event{
			Kind:       events.KindStealCompleted,
			ScenarioID: receipt.ScenarioID,
			ActorID:    receipt.NewHolderID,
			VictimID:   &receipt.VictimID,
			Price:      receipt.PricePaid,
			StealCount: receipt.StealNumber,
		})
	}
	if e.Logger != nil {
		e.Logger.Info("steal committed",
			zap.Uint64("scenario_id", receipt.ScenarioID),
			zap.Uint64("thief_id", receipt.NewHolderID),
			zap.Uint64("victim_id", receipt.VictimID),
			zap.String("price", receipt.PricePaid.String()),
			zap.Int("steal_number", receipt.StealNumber),
		)
	}
	return receipt, nil
}

// ShieldReceipt reports a committed shield purchase.
type ShieldReceipt struct {
	ScenarioID     uint64          `json:"scenario_id"`
	ProtectedUntil time.Time       `json:"protected_until"`
	PricePaid      decimal.Decimal `json:"price_paid"`
}

// PurchaseShield lets the current holder buy a protection window. A new
// shield replaces any active one; windows never stack.
func (e *Engine) PurchaseShield(ctx context.Context, scenarioID, userID uint64, preset string) (*ShieldReceipt, error) {
	duration, ok := e.Economy.Shields.Presets[preset]
	if !ok || duration <= 0 {
		return nil, ErrUnknownPreset
	}

	var receipt *ShieldReceipt
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		now := e.now()
		sc, err := e.Repo.GetScenarioByIDForUpdateTx(ctx, tx, scenarioID)
		if err != nil {
			return err
		}
		if sc == nil {
			return ErrNotFound
		}
		if sc.Status != models.ScenarioActive {
			return ErrNotActive
		}
		if sc.CurrentHolderID == nil || *sc.CurrentHolderID != userID {
			return ErrNotHolder
		}

		price := pricing.ShieldPrice(sc.CurrentPrice, duration, e.Economy.Shields)
		if _, err := e.Ledger.Apply(ctx, tx, userID, price.Neg(), models.EntryShieldPurchase, &ledger.Ref{Kind: models.RefScenario, ID: sc.ID}); err != nil {
			if errors.Is(err, ledger.ErrOverdraft) {
				return ErrInsufficientFunds
			}
			return err
		}

		if existing, err := e.Repo.GetActiveShieldTx(ctx, tx, sc.ID); err != nil {
			return err
		} else if existing != nil {
			if err := e.Repo.DeactivateShieldTx(ctx, tx, existing.ID); err != nil {
				return err
			}
		}

		until := now.Add(duration)
		if err := e.Repo.InsertShieldTx(ctx, tx, &models.Shield{
			ScenarioID:      sc.ID,
			BeneficiaryID:   userID,
			ProtectionUntil: until,
			PricePaid:       price,
			IsActive:        true,
		}); err != nil {
			return err
		}

		updated := *sc
		updated.IsProtected = true
		updated.ProtectedUntil = &until
		rows, err := e.Repo.UpdateScenarioGuardedTx(ctx, tx, &updated, sc.StealCount)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPriceChanged
		}

		receipt = &ShieldReceipt{ScenarioID: sc.ID, ProtectedUntil: until, PricePaid: price}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.Hub != nil {
		e.Hub.Publish(events.Event{
			Kind:       events.KindShieldPurchased,
			ScenarioID: receipt.ScenarioID,
			ActorID:    userID,
			Price:      receipt.PricePaid,
		})
	}
	return receipt, nil
}

// Snapshot is the advisory read-only state for display. By the time a caller
// acts on it the authoritative state may have moved; the write path never
// trusts it.
type Snapshot struct {
	ScenarioID      uint64                `json:"scenario_id"`
	Status          models.ScenarioStatus `json:"status"`
	CurrentHolderID *uint64               `json:"current_holder_id"`
	CurrentPrice    decimal.Decimal       `json:"current_price"`
	NextPrice       decimal.Decimal       `json:"next_price"`
	StealCount      int                   `json:"steal_count"`
	IsProtected     bool                  `json:"is_protected"`
	ProtectedUntil  *time.Time            `json:"protected_until,omitempty"`
	LockUntil       *time.Time            `json:"lock_until,omitempty"`
	TotalPool       decimal.Decimal       `json:"total_pool"`
}

func (e *Engine) GetSnapshot(ctx context.Context, scenarioID uint64) (*Snapshot, error) {
	sc, err := e.Repo.GetScenarioByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, ErrNotFound
	}
	snap := &Snapshot{
		ScenarioID:      sc.ID,
		Status:          sc.Status,
		CurrentHolderID: sc.CurrentHolderID,
		CurrentPrice:    sc.CurrentPrice,
		NextPrice:       pricing.NextPrice(sc.StealCount, e.Economy.Pricing),
		StealCount:      sc.StealCount,
		IsProtected:     sc.IsProtected,
		ProtectedUntil:  sc.ProtectedUntil,
		LockUntil:       sc.LockUntil,
	}
	pool, err := e.Repo.GetPoolByScenarioID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		snap.TotalPool = pool.TotalPool
	}
	return snap, nil
}
