package trader

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"SolarAlpha/internal/model"
)

// Paper simulates a round trip: entry at the opportunity price, exit at
// take-profit or stop-loss chosen by an RNG weighted by the opportunity's
// confidence. Real broker connectivity is out of scope; a "real" mode
// configuration still routes here and is flagged at startup.
type Paper struct {
	takeProfitPct decimal.Decimal
	stopLossPct   decimal.Decimal

	mu  sync.Mutex
	rng *rand.Rand
	log zerolog.Logger
}

// NewPaper creates a paper executor. Percentages are whole numbers
// (25 means 25%). seed fixes the RNG for reproducible runs; pass 0 to
// seed from the clock.
func NewPaper(takeProfitPct, stopLossPct decimal.Decimal, seed int64, log zerolog.Logger) *Paper {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Paper{
		takeProfitPct: takeProfitPct,
		stopLossPct:   stopLossPct,
		rng:           rand.New(rand.NewSource(seed)),
		log:           log.With().Str("component", "paper-executor").Logger(),
	}
}

func (p *Paper) Name() string { return "paper" }

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// Execute implements Executor. It honors ctx cancellation before doing
// any work; once started, the simulated fill always completes.
func (p *Paper) Execute(ctx context.Context, opp *model.Opportunity, mode string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ExecError{Retryable: false, Err: err}
	}

	p.mu.Lock()
	roll := p.rng.Float64()
	p.mu.Unlock()

	// Confidence 1-10, mapped to a 39%-75% win rate.
	winProb := 0.35 + float64(opp.Confidence)*0.04
	won := roll < winProb

	entry := opp.Price
	now := time.Now().UTC()

	var exit decimal.Decimal
	if won {
		exit = entry.Mul(one.Add(p.takeProfitPct.Div(oneHundred)))
	} else {
		exit = entry.Mul(one.Sub(p.stopLossPct.Div(oneHundred)))
	}
	exit = exit.Round(8)

	// P&L on the position value, not per unit: size * move%.
	movePct := exit.Sub(entry).Div(entry)
	pnl := opp.Size.Mul(movePct).Round(2)

	p.log.Info().Str("symbol", opp.Symbol).Str("mode", mode).
		Bool("won", won).
		Str("entry", entry.String()).Str("exit", exit.String()).
		Str("pnl", pnl.String()).
		Msg("simulated fill")

	return &Result{
		EntryPrice:  entry,
		ExitPrice:   exit,
		EntryTime:   now,
		ExitTime:    now,
		RealizedPnL: pnl,
	}, nil
}
