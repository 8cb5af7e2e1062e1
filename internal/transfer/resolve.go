package transfer

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"scenariomarket/internal/events"
	"scenariomarket/internal/ledger"
	"scenariomarket/internal/models"
)

// WinnerAllocation is one correct predictor and their share weight, as
// reported by the external voting tally.
type WinnerAllocation struct {
	UserID uint64          `json:"user_id"`
	Weight decimal.Decimal `json:"weight"`
}

type Payout struct {
	UserID uint64          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// Close moves an active scenario to closed, the only state resolution accepts.
func (e *Engine) Close(ctx context.Context, scenarioID uint64) error {
	return e.Repo.InTx(ctx, func(tx *gorm.DB) error {
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
		sc.Status = models.ScenarioClosed
		return e.Repo.SaveScenarioTx(ctx, tx, sc)
	})
}

// Resolve pays the pool out to the prediction winners, not the holder.
// Idempotent: a second call observes the resolved status (or the pool's
// paid-out latch) and returns ErrAlreadyResolved without moving any balance.
func (e *Engine) Resolve(ctx context.Context, scenarioID uint64, outcome string, winners []WinnerAllocation) ([]Payout, error) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome != "yes" && outcome != "no" {
		return nil, ErrInvalidOutcome
	}
	var payouts []Payout
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		now := e.now()
		sc, err := e.Repo.GetScenarioByIDForUpdateTx(ctx, tx, scenarioID)
		if err != nil {
			return err
		}
		if sc == nil {
			return ErrNotFound
		}
		if sc.Status == models.ScenarioResolved || sc.Status == models.ScenarioCancelled {
			return ErrAlreadyResolved
		}
		if sc.Status != models.ScenarioClosed {
			return ErrNotClosed
		}

		pool, err := e.Repo.GetPoolForUpdateTx(ctx, tx, sc.ID)
		if err != nil {
			return err
		}
		if pool == nil {
			return ErrNotFound
		}
		if pool.PaidOut {
			return ErrAlreadyResolved
		}

		distributable := pool.TotalPool

		if e.Economy.ReimburseOnWin && !pool.CreatorReimbursed {
			reimburse := decimal.NewFromFloat(e.Economy.CreationCost).Round(2)
			if reimburse.GreaterThan(distributable) {
				reimburse = distributable
			}
			if reimburse.IsPositive() {
				if _, err := e.Ledger.Apply(ctx, tx, sc.CreatorID, reimburse, models.EntryCreatorRefund, &ledger.Ref{Kind: models.RefScenario, ID: sc.ID}); err != nil {
					return err
				}
				distributable = distributable.Sub(reimburse)
			}
			pool.CreatorReimbursed = true
		}

		payouts = allocate(distributable, winners)
		if distributable.IsPositive() && len(payouts) == 0 {
			// Nobody to pay: latching here would burn the pool. Roll the
			// whole transaction back so a retry with a real winner list
			// distributes the untouched funds.
			return ErrNoWinners
		}
		for _, p := range payouts {
			if p.Amount.IsPositive() {
				if _, err := e.Ledger.Apply(ctx, tx, p.UserID, p.Amount, models.EntryResolutionPayout, &ledger.Ref{Kind: models.RefScenario, ID: sc.ID}); err != nil {
					return err
				}
			}
		}

		paid := decimal.Zero
		for _, p := range payouts {
			paid = paid.Add(p.Amount)
		}
		pool.PaidOut = true
		pool.WinnerPayout = paid
		pool.TotalPool = decimal.Zero
		if err := e.Repo.SavePoolTx(ctx, tx, pool); err != nil {
			return err
		}

		sc.Status = models.ScenarioResolved
		sc.Outcome = &outcome
		sc.ResolvedAt = &now
		return e.Repo.SaveScenarioTx(ctx, tx, sc)
	})
	if err != nil {
		return nil, err
	}

	if e.Hub != nil {
		e.Hub.Publish(events.Event{
			Kind:       events.KindScenarioResolved,
			ScenarioID: scenarioID,
		})
	}
	if e.Logger != nil {
		e.Logger.Info("scenario resolved",
			zap.Uint64("scenario_id", scenarioID),
			zap.String("outcome", outcome),
			zap.Int("winners", len(payouts)),
		)
	}
	return payouts, nil
}

// Cancel terminates a scenario before resolution. User pool contributions are
// refunded to the thieves who made them, entry for entry; platform
// contributions return to the platform outside this ledger. The exact refund
// policy is injectable product behavior; this is the default.
func (e *Engine) Cancel(ctx context.Context, scenarioID uint64) error {
	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		sc, err := e.Repo.GetScenarioByIDForUpdateTx(ctx, tx, scenarioID)
		if err != nil {
			return err
		}
		if sc == nil {
			return ErrNotFound
		}
		if sc.Status == models.ScenarioResolved || sc.Status == models.ScenarioCancelled {
			return ErrAlreadyResolved
		}

		pool, err := e.Repo.GetPoolForUpdateTx(ctx, tx, sc.ID)
		if err != nil {
			return err
		}
		if pool != nil && !pool.PaidOut {
			// History entries only append under the scenario lock we hold,
			// so this paged read is stable. Every contributor gets their
			// refund, however long the steal chain grew.
			const refundPage = 500
			for offset := 0; ; offset += refundPage {
				history, err := e.Repo.ListStealHistoryTx(ctx, tx, sc.ID, refundPage, offset)
				if err != nil {
					return err
				}
				for _, entry := range history {
					if entry.PoolContribution.IsPositive() {
						if _, err := e.Ledger.Apply(ctx, tx, entry.ThiefID, entry.PoolContribution, models.EntryCancelRefund, &ledger.Ref{Kind: models.RefSteal, ID: entry.ID}); err != nil {
							return err
						}
					}
				}
				if len(history) < refundPage {
					break
				}
			}
			pool.PaidOut = true
			pool.TotalPool = decimal.Zero
			if err := e.Repo.SavePoolTx(ctx, tx, pool); err != nil {
				return err
			}
		}

		sc.Status = models.ScenarioCancelled
		return e.Repo.SaveScenarioTx(ctx, tx, sc)
	})
	if err != nil {
		return err
	}
	if e.Hub != nil {
		e.Hub.Publish(events.Event{Kind: events.KindScenarioCancelled, ScenarioID: scenarioID})
	}
	return nil
}

// allocate splits the distributable pool pro-rata by weight, rounding each
// share down to cents and giving the remainder to the last winner so the
// payouts sum exactly to the amount distributed.
func allocate(total decimal.Decimal, winners []WinnerAllocation) []Payout {
	if total.LessThanOrEqual(decimal.Zero) || len(winners) == 0 {
		return nil
	}
	weightSum := decimal.Zero
	for _, w := range winners {
		if w.Weight.IsPositive() {
			weightSum = weightSum.Add(w.Weight)
		}
	}
	if !weightSum.IsPositive() {
		return nil
	}
	lastPositive := -1
	for i, w := range winners {
		if w.Weight.IsPositive() {
			lastPositive = i
		}
	}
	payouts := make([]Payout, 0, len(winners))
	remaining := total
	for i, w := range winners {
		if !w.Weight.IsPositive() {
			payouts = append(payouts, Payout{UserID: w.UserID, Amount: decimal.Zero})
			continue
		}
		var amount decimal.Decimal
		if i == lastPositive {
			amount = remaining
		} else {
			amount = total.Mul(w.Weight).Div(weightSum).RoundDown(2)
			if amount.GreaterThan(remaining) {
				amount = remaining
			}
		}
		remaining = remaining.Sub(amount)
		payouts = append(payouts, Payout{UserID: w.UserID, Amount: amount})
	}
	return payouts
}
