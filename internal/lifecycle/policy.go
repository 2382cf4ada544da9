package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"

	"SolarAlpha/internal/model"
)

// Policy is the Proposed → Accepted gate: position size within the cap,
// market in the allowed set, and aggregate exposure under the limit.
type Policy struct {
	MaxPositionSize  decimal.Decimal
	MaxTotalExposure decimal.Decimal
	AllowedMarkets   map[string]bool
}

// NewPolicy builds a Policy from configuration values.
func NewPolicy(maxPosition, maxExposure decimal.Decimal, markets []string) Policy {
	allowed := make(map[string]bool, len(markets))
	for _, m := range markets {
		allowed[m] = true
	}
	return Policy{
		MaxPositionSize:  maxPosition,
		MaxTotalExposure: maxExposure,
		AllowedMarkets:   allowed,
	}
}

// Check returns a human-readable rejection reason, or "" to accept.
// openExposure is the position value of trades still in flight, derived
// from the ledger fold.
func (p Policy) Check(opp *model.Opportunity, openExposure decimal.Decimal) string {
	if !p.AllowedMarkets[opp.Market] {
		return fmt.Sprintf("market %q is not in the allowed set", opp.Market)
	}
	if opp.Size.GreaterThan(p.MaxPositionSize) {
		return fmt.Sprintf("position size %s exceeds cap %s", opp.Size, p.MaxPositionSize)
	}
	if openExposure.Add(opp.Size).GreaterThan(p.MaxTotalExposure) {
		return fmt.Sprintf("total exposure %s would exceed cap %s",
			openExposure.Add(opp.Size), p.MaxTotalExposure)
	}
	return ""
}
