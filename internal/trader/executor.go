// Package trader is the execution port: it turns an accepted opportunity
// into a settled round trip.
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SolarAlpha/internal/model"
)

// Result is a settled round trip: entry, exit, and the realized
// profit-or-loss (signed, in account currency).
type Result struct {
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	EntryTime   time.Time
	ExitTime    time.Time
	RealizedPnL decimal.Decimal
}

// ExecError reports an execution failure. Retryable failures may be
// retried a bounded number of times; anything else fails the trade.
type ExecError struct {
	Retryable bool
	Err       error
}

func (e *ExecError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("execution failed (%s): %v", kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Executor executes one opportunity in the given mode.
type Executor interface {
	Execute(ctx context.Context, opp *model.Opportunity, mode string) (*Result, error)
	Name() string
}
