package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"scenariomarket/internal/models"
)

// ErrOverdraft is returned when an entry would take a balance below zero.
// The ledger never records such an entry; callers surface it as an
// insufficient-funds precondition.
var ErrOverdraft = errors.New("ledger: entry would overdraw balance")

// Store is the slice of the repository the ledger writes through.
type Store interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	GetUserByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uint64) (*models.User, error)
	UpdateUserBalanceTx(ctx context.Context, tx *gorm.DB, id uint64, balance decimal.Decimal) error
	InsertBalanceEntryTx(ctx context.Context, tx *gorm.DB, item *models.BalanceEntry) error
	SumBalanceEntries(ctx context.Context, userID uint64) (decimal.Decimal, error)
}

// Ledger appends balance entries and keeps the cached user balance in step,
// always inside the caller's transaction. Entries are never mutated or
// deleted; corrections are new administrative entries outside this engine.
type Ledger struct {
	Store Store
}

type Ref struct {
	Kind models.RefKind
	ID   uint64
}

// Apply locks the user row, appends one signed entry and writes the resulting
// cached balance. A negative result aborts with ErrOverdraft and leaves
// nothing written (the surrounding transaction rolls back).
func (l *Ledger) Apply(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal, entryType models.EntryType, ref *Ref) (decimal.Decimal, error) {
	if l == nil || l.Store == nil {
		return decimal.Zero, errors.New("ledger: store not configured")
	}
	user, err := l.Store.GetUserByIDForUpdateTx(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if user == nil {
		return decimal.Zero, fmt.Errorf("ledger: user %d not found", userID)
	}
	resulting := user.Balance.Add(amount)
	if resulting.IsNegative() {
		return user.Balance, ErrOverdraft
	}
	entry := &models.BalanceEntry{
		UserID:           userID,
		Amount:           amount,
		ResultingBalance: resulting,
		EntryType:        entryType,
	}
	if ref != nil {
		kind := ref.Kind
		id := ref.ID
		entry.RefKind = &kind
		entry.RefID = &id
	}
	if err := l.Store.InsertBalanceEntryTx(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}
	if err := l.Store.UpdateUserBalanceTx(ctx, tx, userID, resulting); err != nil {
		return decimal.Zero, err
	}
	return resulting, nil
}

// Replay recomputes a user's balance from the append-only entries and reports
// whether it matches the cached value. Used by tests and the audit job.
func (l *Ledger) Replay(ctx context.Context, userID uint64) (computed, cached decimal.Decimal, ok bool, err error) {
	if l == nil || l.Store == nil {
		return decimal.Zero, decimal.Zero, false, errors.New("ledger: store not configured")
	}
	computed, err = l.Store.SumBalanceEntries(ctx, userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	user, err := l.Store.GetUserByID(ctx, userID)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	if user == nil {
		return computed, decimal.Zero, computed.IsZero(), nil
	}
	return computed, user.Balance, computed.Cmp(user.Balance) == 0, nil
}
