package protection

import (
	"time"

	"scenariomarket/internal/models"
)

// BlockReason says which window stopped a steal attempt.
type BlockReason string

const (
	BlockNone   BlockReason = ""
	BlockShield BlockReason = "shield"
	BlockLock   BlockReason = "lock"
)

// StealBlocked reports whether a steal attempt against the scenario is
// forbidden at the given instant. Both windows are advisory at display time;
// the transfer engine re-evaluates against the locked row at commit time.
func StealBlocked(sc *models.Scenario, now time.Time) (bool, BlockReason) {
	if sc == nil {
		return false, BlockNone
	}
	if sc.IsProtected && sc.ProtectedUntil != nil && now.Before(*sc.ProtectedUntil) {
		return true, BlockShield
	}
	if sc.LockUntil != nil && now.Before(*sc.LockUntil) {
		return true, BlockLock
	}
	return false, BlockNone
}

// ShieldExpired reports whether the scenario carries a shield flag whose
// window has already lapsed, so the transfer can clear it in passing.
func ShieldExpired(sc *models.Scenario, now time.Time) bool {
	if sc == nil || !sc.IsProtected {
		return false
	}
	return sc.ProtectedUntil == nil || !now.Before(*sc.ProtectedUntil)
}
