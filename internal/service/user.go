package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"scenariomarket/internal/ledger"
	"scenariomarket/internal/models"
	"scenariomarket/internal/repository"
)

var ErrInvalidUser = errors.New("invalid user")

// UserService handles account registration and deposits. Balance reads go
// through the cached column; the ledger remains the source of truth.
type UserService struct {
	Repo   repository.Repository
	Ledger *ledger.Ledger
	Logger *zap.Logger
}

func (s *UserService) Register(ctx context.Context, username string, initialDeposit decimal.Decimal) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUser
	}
	user := &models.User{Username: username}
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.CreateUserTx(ctx, tx, user); err != nil {
			return err
		}
		if initialDeposit.IsPositive() {
			if _, err := s.Ledger.Apply(ctx, tx, user.ID, initialDeposit.Round(2), models.EntryDeposit, nil); err != nil {
				return err
			}
			user.Balance = initialDeposit.Round(2)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user registered", zap.Uint64("user_id", user.ID), zap.String("username", user.Username))
	}
	return user, nil
}

func (s *UserService) Deposit(ctx context.Context, userID uint64, amount decimal.Decimal) (decimal.Decimal, error) {
	if userID == 0 || !amount.IsPositive() {
		return decimal.Zero, ErrInvalidUser
	}
	var balance decimal.Decimal
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.Ledger.Apply(ctx, tx, userID, amount.Round(2), models.EntryDeposit, nil)
		return err
	})
	return balance, err
}

func (s *UserService) Balance(ctx context.Context, userID uint64) (*models.User, error) {
	return s.Repo.GetUserByID(ctx, userID)
}

func (s *UserService) LedgerEntries(ctx context.Context, userID uint64, params repository.ListBalanceEntriesParams) ([]models.BalanceEntry, error) {
	return s.Repo.ListBalanceEntries(ctx, userID, params)
}
