package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scenariomarket/internal/ledger"
	"scenariomarket/internal/repository"
)

// MaintenanceService hosts the background sweeps driven by cron: shield
// expiry and the ledger audit.
type MaintenanceService struct {
	Repo   repository.Repository
	Ledger *ledger.Ledger
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *MaintenanceService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// SweepShields deactivates expired shields and clears the protection flag on
// their scenarios. Steals already check expiry inline; the sweep keeps list
// views honest between steals.
func (s *MaintenanceService) SweepShields(ctx context.Context) {
	n, err := s.Repo.ExpireShields(ctx, s.now())
	if err != nil {
		s.Logger.Warn("shield sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.Logger.Info("shields expired", zap.Int64("count", n))
	}
}

// AuditLedgers replays every user's balance entries and reports any drift
// between the computed sum and the cached balance column.
func (s *MaintenanceService) AuditLedgers(ctx context.Context) {
	const batch = 200
	offset := 0
	mismatches := 0
	for {
		ids, err := s.Repo.ListUserIDs(ctx, batch, offset)
		if err != nil {
			s.Logger.Warn("ledger audit aborted", zap.Error(err))
			return
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			computed, cached, ok, err := s.Ledger.Replay(ctx, id)
			if err != nil {
				s.Logger.Warn("ledger replay failed", zap.Uint64("user_id", id), zap.Error(err))
				continue
			}
			if !ok {
				mismatches++
				s.Logger.Error("ledger drift",
					zap.Uint64("user_id", id),
					zap.String("computed", computed.String()),
					zap.String("cached", cached.String()),
				)
			}
		}
		offset += len(ids)
	}
	if mismatches == 0 {
		s.Logger.Debug("ledger audit clean")
	}
}
