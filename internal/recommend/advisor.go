// Package recommend is the recommendation port: it turns market snapshots
// into at most one trade opportunity per cycle.
package recommend

import (
	"context"
	"errors"

	"SolarAlpha/internal/model"
)

// ErrUnavailable means no recommendation could be obtained this cycle.
// The caller treats it as "no action", not as an error worth retrying
// within the cycle.
var ErrUnavailable = errors.New("recommend: unavailable")

// Advisor proposes at most one opportunity per call. A nil opportunity
// with a nil error means the advisor looked and declined (HOLD verdict,
// ethical veto); ErrUnavailable means it could not look at all.
type Advisor interface {
	Propose(ctx context.Context) (*model.Opportunity, error)
	Name() string
}
