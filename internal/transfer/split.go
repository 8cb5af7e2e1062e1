package transfer

import (
	"github.com/shopspring/decimal"

	"scenariomarket/internal/config"
)

// Split is one steal price cut into its three destinations.
// Victim + Pool + Platform always equals the price paid.
type Split struct {
	Victim   decimal.Decimal
	Pool     decimal.Decimal
	Platform decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// SplitPrice divides price per the configured percentages. Victim and
// platform shares round down to cents; the pool takes the exact remainder so
// the three parts always sum to the price.
func SplitPrice(price decimal.Decimal, cfg config.SplitConfig) Split {
	victim := price.Mul(decimal.NewFromFloat(cfg.VictimPct)).Div(hundred).RoundDown(2)
	platform := price.Mul(decimal.NewFromFloat(cfg.PlatformPct)).Div(hundred).RoundDown(2)
	pool := price.Sub(victim).Sub(platform)
	return Split{Victim: victim, Pool: pool, Platform: platform}
}
