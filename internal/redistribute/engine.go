// Package redistribute computes the split of a realized gain across the
// configured recipients. The redistribution floor is a hard invariant:
// crisis-tagged recipients must hold at least half of every distributed
// gain, and a configuration that violates that is rejected outright,
// never clamped.
package redistribute

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SolarAlpha/internal/model"
)

// ErrPolicyViolation is returned when inputs break the redistribution
// policy (percentages not summing to 100, crisis share below the floor,
// non-positive gain).
var ErrPolicyViolation = errors.New("redistribute: policy violation")

var (
	hundred     = decimal.NewFromInt(100)
	crisisFloor = decimal.NewFromInt(50)
)

// ValidatePolicy checks the recipient configuration invariants:
// percentages sum to exactly 100, at least one recipient is crisis-tagged,
// and the crisis-tagged percentages sum to at least 50.
func ValidatePolicy(recipients []model.Recipient) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrPolicyViolation)
	}

	total := decimal.Zero
	crisis := decimal.Zero
	crisisCount := 0
	for _, r := range recipients {
		if r.ID == "" {
			return fmt.Errorf("%w: recipient with empty id", ErrPolicyViolation)
		}
		if r.Percentage.IsNegative() || r.Percentage.IsZero() {
			return fmt.Errorf("%w: recipient %q percentage must be positive", ErrPolicyViolation, r.ID)
		}
		total = total.Add(r.Percentage)
		if r.Tag == model.TagCrisis {
			crisis = crisis.Add(r.Percentage)
			crisisCount++
		}
	}
	if !total.Equal(hundred) {
		return fmt.Errorf("%w: percentages sum to %s, want 100", ErrPolicyViolation, total)
	}
	if crisisCount == 0 {
		return fmt.Errorf("%w: no crisis-tagged recipient", ErrPolicyViolation)
	}
	if crisis.LessThan(crisisFloor) {
		return fmt.Errorf("%w: crisis share %s%% is below the 50%% floor", ErrPolicyViolation, crisis)
	}
	return nil
}

// Allocate splits a positive gain across recipients. Each raw share is
// gain * percentage / 100 in exact decimal arithmetic, truncated to cents;
// the accumulated rounding remainder goes to the last crisis-tagged
// recipient in list order, so the output amounts sum to gain exactly.
func Allocate(tradeID string, gain decimal.Decimal, recipients []model.Recipient) (*model.Allocation, error) {
	if !gain.IsPositive() {
		return nil, fmt.Errorf("%w: gain %s is not positive", ErrPolicyViolation, gain)
	}
	if err := ValidatePolicy(recipients); err != nil {
		return nil, err
	}

	lines := make([]model.AllocationLine, len(recipients))
	allocated := decimal.Zero
	lastCrisis := -1
	for i, r := range recipients {
		amount := gain.Mul(r.Percentage).Div(hundred).Truncate(2)
		lines[i] = model.AllocationLine{
			RecipientID: r.ID,
			Tag:         r.Tag,
			Percentage:  r.Percentage,
			Amount:      amount,
		}
		allocated = allocated.Add(amount)
		if r.Tag == model.TagCrisis {
			lastCrisis = i
		}
	}

	// Conservation: the truncation remainder lands on the last
	// crisis-tagged recipient (deterministic tie-break).
	if remainder := gain.Sub(allocated); remainder.IsPositive() {
		lines[lastCrisis].Amount = lines[lastCrisis].Amount.Add(remainder)
	}

	return &model.Allocation{
		ID:        uuid.NewString(),
		TradeID:   tradeID,
		Gain:      gain,
		Lines:     lines,
		CreatedAt: time.Now().UTC(),
	}, nil
}
