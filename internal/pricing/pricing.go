package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"scenariomarket/internal/config"
)

// NextPrice returns the price of steal number stealCount+1. Pure and
// deterministic: the transfer engine recomputes it inside the atomic section,
// so a UI that called it against the same scenario state displayed the exact
// amount the engine charges.
//
// Monotonicity holds for any normalized config: linear needs increment >= 0,
// multiplicative needs growth >= 1, and the ceiling clamp keeps the curve flat
// once reached rather than ever dropping.
func NextPrice(stealCount int, cfg config.PricingConfig) decimal.Decimal {
	base := decimal.NewFromFloat(cfg.BasePrice)
	if base.LessThanOrEqual(decimal.Zero) {
		base = decimal.NewFromInt(1)
	}
	if stealCount < 0 {
		stealCount = 0
	}

	var price decimal.Decimal
	switch cfg.Curve {
	case "multiplicative":
		growth := decimal.NewFromFloat(cfg.GrowthRate)
		if growth.LessThan(decimal.NewFromInt(1)) {
			growth = decimal.NewFromInt(1)
		}
		price = base.Mul(growth.Pow(decimal.NewFromInt(int64(stealCount))))
	default:
		increment := decimal.NewFromFloat(cfg.Increment)
		if increment.IsNegative() {
			increment = decimal.Zero
		}
		price = base.Add(increment.Mul(decimal.NewFromInt(int64(stealCount))))
	}

	ceiling := decimal.NewFromFloat(cfg.Ceiling)
	if ceiling.GreaterThanOrEqual(base) && price.GreaterThan(ceiling) {
		price = ceiling
	}
	return price.Round(2)
}

// ShieldPrice derives the cost of a protection window from the scenario's
// current price and the window length, with a configured floor.
func ShieldPrice(currentPrice decimal.Decimal, duration time.Duration, cfg config.ShieldConfig) decimal.Decimal {
	hours := decimal.NewFromFloat(duration.Hours())
	if hours.LessThanOrEqual(decimal.Zero) {
		hours = decimal.NewFromInt(1)
	}
	factor := decimal.NewFromFloat(cfg.PriceFactor)
	if factor.LessThanOrEqual(decimal.Zero) {
		factor = decimal.NewFromFloat(0.1)
	}
	price := currentPrice.Mul(factor).Mul(hours).Round(2)
	floor := decimal.NewFromFloat(cfg.MinPrice)
	if price.LessThan(floor) {
		return floor.Round(2)
	}
	return price
}
