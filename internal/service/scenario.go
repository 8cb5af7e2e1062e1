package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"scenariomarket/internal/config"
	"scenariomarket/internal/dupgate"
	"scenariomarket/internal/ledger"
	"scenariomarket/internal/models"
	"scenariomarket/internal/repository"
	"scenariomarket/internal/transfer"
)

// ErrDuplicate reports a creation blocked by the duplicate gate. The carried
// gate result identifies the existing scenario so the caller can redirect the
// creator into a steal instead.
var ErrDuplicate = errors.New("near-identical scenario already exists")

var ErrInvalidScenario = errors.New("invalid scenario")

// ScenarioService owns the creation flow: duplicate gate, creation cost
// debit, the scenario row, its pool (with the platform seed) and the creation
// holding, all in one transaction.
type ScenarioService struct {
	Repo    repository.Repository
	Ledger  *ledger.Ledger
	Gate    *dupgate.Gate
	Economy config.EconomyConfig
	Logger  *zap.Logger
}

type CreateScenarioParams struct {
	CreatorID   uint64
	Category    string
	Title       string
	Description string
}

func (s *ScenarioService) Create(ctx context.Context, params CreateScenarioParams) (*models.Scenario, dupgate.Result, error) {
	params.Title = strings.TrimSpace(params.Title)
	params.Category = strings.TrimSpace(params.Category)
	params.Description = strings.TrimSpace(params.Description)
	if params.CreatorID == 0 || params.Title == "" || params.Category == "" {
		return nil, dupgate.Result{}, ErrInvalidScenario
	}

	gateResult := dupgate.Result{Decision: dupgate.DecisionAllow}
	if s.Gate != nil {
		gateResult = s.Gate.Evaluate(ctx, params.Title, params.Description, params.Category)
		if gateResult.Decision == dupgate.DecisionBlock {
			return nil, gateResult, ErrDuplicate
		}
	}

	cost := decimal.NewFromFloat(s.Economy.CreationCost).Round(2)
	seed := decimal.NewFromFloat(s.Economy.PlatformSeed).Round(2)
	basePrice := decimal.NewFromFloat(s.Economy.Pricing.BasePrice).Round(2)

	var created *models.Scenario
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		holder := params.CreatorID
		sc := &models.Scenario{
			CreatorID:       params.CreatorID,
			Category:        params.Category,
			Title:           params.Title,
			Description:     params.Description,
			Status:          models.ScenarioActive,
			Fingerprint:     dupgate.Fingerprint(params.Title, params.Description),
			CurrentHolderID: &holder,
			BasePrice:       basePrice,
			CurrentPrice:    basePrice,
		}
		if err := s.Repo.CreateScenarioTx(ctx, tx, sc); err != nil {
			return err
		}

		if cost.IsPositive() {
			if _, err := s.Ledger.Apply(ctx, tx, params.CreatorID, cost.Neg(), models.EntryCreationCost, &ledger.Ref{Kind: models.RefScenario, ID: sc.ID}); err != nil {
				if errors.Is(err, ledger.ErrOverdraft) {
					return transfer.ErrInsufficientFunds
				}
				return err
			}
		}

		pool := &models.Pool{ScenarioID: sc.ID}
		if seed.IsPositive() {
			pool.PlatformContributions = seed
			pool.TotalPool = seed
		}
		if err := s.Repo.CreatePoolTx(ctx, tx, pool); err != nil {
			return err
		}

		if err := s.Repo.InsertHoldingTx(ctx, tx, &models.Holding{
			ScenarioID: sc.ID,
			HolderID:   params.CreatorID,
			Acquired:   models.AcquisitionCreation,
			PricePaid:  cost,
			IsActive:   true,
			AcquiredAt: sc.CreatedAt,
		}); err != nil {
			return err
		}
		created = sc
		return nil
	})
	if err != nil {
		return nil, gateResult, err
	}
	if s.Logger != nil {
		s.Logger.Info("scenario created",
			zap.Uint64("scenario_id", created.ID),
			zap.Uint64("creator_id", created.CreatorID),
			zap.String("category", created.Category),
			zap.String("gate_decision", string(gateResult.Decision)),
		)
	}
	return created, gateResult, nil
}

func (s *ScenarioService) List(ctx context.Context, params repository.ListScenariosParams) ([]models.Scenario, int64, error) {
	items, err := s.Repo.ListScenarios(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountScenarios(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *ScenarioService) Get(ctx context.Context, id uint64) (*models.Scenario, error) {
	return s.Repo.GetScenarioByID(ctx, id)
}

func (s *ScenarioService) History(ctx context.Context, scenarioID uint64, limit, offset int) ([]models.StealHistoryEntry, error) {
	return s.Repo.ListStealHistory(ctx, scenarioID, limit, offset)
}
