// Package lifecycle drives a trade from Proposed to a terminal state.
// Every transition is a ledger append and is not complete until the
// append is durable; if the append fails after retries, the trade stays
// in its prior state and the run aborts so replay can pick it up.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"SolarAlpha/internal/ledger"
	"SolarAlpha/internal/metrics"
	"SolarAlpha/internal/model"
	"SolarAlpha/internal/publish"
	"SolarAlpha/internal/redistribute"
	"SolarAlpha/internal/trader"
)

// Manager owns every trade for the duration of its lifecycle. Trades are
// never shared across runs: once a terminal ledger entry exists they are
// read-only history.
type Manager struct {
	store      ledger.Store
	exec       trader.Executor
	pub        publish.Publisher
	policy     Policy
	recipients []model.Recipient
	log        zerolog.Logger

	mode        string
	execTimeout time.Duration
	maxRetries  int
	backoff     time.Duration

	// appendRetries bounds retries of a failed ledger append before the
	// run aborts.
	appendRetries int
	appendBackoff time.Duration
}

// Options configures the Manager.
type Options struct {
	Mode          string
	ExecTimeout   time.Duration
	MaxRetries    int           // bounded retries for retryable execution failures
	Backoff       time.Duration // base backoff between execution retries
	AppendRetries int
	AppendBackoff time.Duration
}

func NewManager(store ledger.Store, exec trader.Executor, pub publish.Publisher,
	policy Policy, recipients []model.Recipient, opts Options, log zerolog.Logger) *Manager {
	if opts.AppendRetries == 0 {
		opts.AppendRetries = 3
	}
	if opts.AppendBackoff == 0 {
		opts.AppendBackoff = 250 * time.Millisecond
	}
	if opts.Backoff == 0 {
		opts.Backoff = time.Second
	}
	return &Manager{
		store:         store,
		exec:          exec,
		pub:           pub,
		policy:        policy,
		recipients:    recipients,
		log:           log.With().Str("component", "lifecycle").Logger(),
		mode:          opts.Mode,
		execTimeout:   opts.ExecTimeout,
		maxRetries:    opts.MaxRetries,
		backoff:       opts.Backoff,
		appendRetries: opts.AppendRetries,
		appendBackoff: opts.AppendBackoff,
	}
}

// Propose captures an opportunity as a new Proposed trade. The trade
// exists once its first ledger entry is durable.
func (m *Manager) Propose(runID string, opp *model.Opportunity) (*model.Trade, error) {
	t := &model.Trade{
		ID:          uuid.NewString(),
		RunID:       runID,
		Opportunity: *opp,
		Mode:        m.mode,
		State:       model.StateProposed,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := m.appendTransition(ledger.KindTradeProposed, t); err != nil {
		return nil, err
	}
	m.log.Info().Str("trade", t.ID).Str("symbol", opp.Symbol).
		Str("size", opp.Size.String()).Msg("trade proposed")
	return t, nil
}

// Drive advances a trade from its current state until it reaches a
// terminal state. Policy and execution failures are terminal for the
// trade but not errors for the run; only an unrecoverable ledger append
// failure returns an error, and then the trade remains in its prior
// (durable) state for replay.
func (m *Manager) Drive(ctx context.Context, t *model.Trade) error {
	for {
		switch t.State {
		case model.StateProposed:
			if err := m.accept(t); err != nil {
				return err
			}
		case model.StateAccepted:
			if err := m.execute(ctx, t); err != nil {
				return err
			}
		case model.StateExecuting:
			// Only reachable here when execute() itself advances the
			// state; replay handles interrupted Executing trades.
			return fmt.Errorf("trade %s: unexpected in-memory executing state", t.ID)
		case model.StateSettled:
			if !t.Distributable() {
				return nil // terminal: nothing to allocate
			}
			if err := m.allocate(t); err != nil {
				return err
			}
		default:
			return nil // terminal
		}
	}
}

// accept runs the policy gate: Proposed → Accepted or Rejected.
func (m *Manager) accept(t *model.Trade) error {
	sum, err := ledger.Summarize(m.store, decimal.Zero)
	if err != nil {
		return fmt.Errorf("derive exposure: %w", err)
	}

	if reason := m.policy.Check(&t.Opportunity, sum.OpenExposure.Sub(t.Opportunity.Size)); reason != "" {
		t.State = model.StateRejected
		t.Reason = reason
		t.UpdatedAt = time.Now().UTC()
		if err := m.appendTransition(ledger.KindTradeRejected, t); err != nil {
			return err
		}
		metrics.TradesTotal.WithLabelValues(string(model.StateRejected)).Inc()
		m.log.Warn().Str("trade", t.ID).Str("reason", reason).Msg("trade rejected")
		return nil
	}

	t.State = model.StateAccepted
	t.UpdatedAt = time.Now().UTC()
	if err := m.appendTransition(ledger.KindTradeAccepted, t); err != nil {
		return err
	}
	m.log.Info().Str("trade", t.ID).Msg("trade accepted")
	return nil
}

// execute delegates to the execution port: Accepted → Executing →
// Settled, or Failed on a non-retryable error or exhausted retries.
func (m *Manager) execute(ctx context.Context, t *model.Trade) error {
	t.State = model.StateExecuting
	t.UpdatedAt = time.Now().UTC()
	if err := m.appendTransition(ledger.KindTradeExecuting, t); err != nil {
		return err
	}

	res, execErr := m.executeWithRetry(ctx, t)
	if execErr != nil {
		t.State = model.StateFailed
		t.Reason = execErr.Error()
		t.UpdatedAt = time.Now().UTC()
		if err := m.appendTransition(ledger.KindTradeFailed, t); err != nil {
			return err
		}
		metrics.TradesTotal.WithLabelValues(string(model.StateFailed)).Inc()
		m.log.Error().Str("trade", t.ID).Err(execErr).Msg("trade failed")
		return nil
	}

	t.State = model.StateSettled
	t.EntryPrice = &res.EntryPrice
	t.ExitPrice = &res.ExitPrice
	t.EntryTime = &res.EntryTime
	t.ExitTime = &res.ExitTime
	t.RealizedPnL = &res.RealizedPnL
	t.Reason = fmt.Sprintf("settled with P&L %s", res.RealizedPnL)
	t.UpdatedAt = time.Now().UTC()
	if err := m.appendTransition(ledger.KindTradeSettled, t); err != nil {
		return err
	}
	if !t.Distributable() {
		metrics.TradesTotal.WithLabelValues(string(model.StateSettled)).Inc()
	}
	m.log.Info().Str("trade", t.ID).Str("pnl", res.RealizedPnL.String()).Msg("trade settled")
	return nil
}

// executeWithRetry calls the execution port under the configured timeout,
// retrying transient failures a bounded number of times with backoff.
// Timeout expiry is non-retryable for the cycle.
func (m *Manager) executeWithRetry(ctx context.Context, t *model.Trade) (*trader.Result, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, m.execTimeout)
		res, err := m.exec.Execute(execCtx, &t.Opportunity, t.Mode)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("execution timed out after %s: %w", m.execTimeout, err)
		}
		var execErr *trader.ExecError
		if !errors.As(err, &execErr) || !execErr.Retryable {
			return nil, err
		}
		if attempt >= m.maxRetries {
			return nil, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, lastErr)
		}
		wait := m.backoff * time.Duration(1<<attempt)
		m.log.Warn().Str("trade", t.ID).Int("attempt", attempt+1).
			Dur("backoff", wait).Err(err).Msg("transient execution failure, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("execution canceled: %w", ctx.Err())
		}
	}
}

// allocate computes and records the allocation: Settled → Allocated.
// The allocation entry and the trade transition are separate appends;
// idempotency keys make a replayed retry exactly-once.
func (m *Manager) allocate(t *model.Trade) error {
	alloc, err := redistribute.Allocate(t.ID, *t.RealizedPnL, m.recipients)
	if err != nil {
		// Recipient configuration is validated at startup; reaching this
		// means the gain itself is invalid.
		t.State = model.StateFailed
		t.Reason = fmt.Sprintf("allocation refused: %v", err)
		t.UpdatedAt = time.Now().UTC()
		if aerr := m.appendTransition(ledger.KindTradeFailed, t); aerr != nil {
			return aerr
		}
		metrics.TradesTotal.WithLabelValues(string(model.StateFailed)).Inc()
		m.log.Error().Str("trade", t.ID).Err(err).Msg("allocation refused")
		return nil
	}

	key := t.ID + ":allocation"
	if err := m.appendWithRetry(ledger.KindAllocation, key, alloc); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateEntry) {
			return err
		}
		// A previous attempt durably recorded the allocation before the
		// trade transition could land; finishing the transition is all
		// that is left.
		m.log.Info().Str("trade", t.ID).Msg("allocation already recorded, completing transition")
	} else {
		metrics.AllocationsTotal.Inc()
		for _, l := range alloc.Lines {
			amt, _ := l.Amount.Float64()
			metrics.DistributedAmount.WithLabelValues(l.RecipientID).Add(amt)
		}
	}

	t.State = model.StateAllocated
	t.Reason = fmt.Sprintf("distributed %s across %d recipients", alloc.Gain, len(alloc.Lines))
	t.UpdatedAt = time.Now().UTC()
	if err := m.appendTransition(ledger.KindTradeAllocated, t); err != nil {
		return err
	}
	metrics.TradesTotal.WithLabelValues(string(model.StateAllocated)).Inc()

	if err := m.pub.Allocation(t, alloc); err != nil {
		m.log.Error().Str("trade", t.ID).Err(err).Msg("publish allocation receipt")
	}
	m.log.Info().Str("trade", t.ID).Str("gain", alloc.Gain.String()).
		Str("crisis", alloc.CrisisAmount().String()).Msg("gain redistributed")
	return nil
}

// appendTransition appends a trade state snapshot under its idempotency
// key (trade id + transition name).
func (m *Manager) appendTransition(kind string, t *model.Trade) error {
	key := t.ID + ":" + string(t.State)
	err := m.appendWithRetry(kind, key, t)
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		// Replay re-drove a transition that already landed; the first
		// append won and the state is already durable.
		m.log.Debug().Str("trade", t.ID).Str("key", key).Msg("transition already durable")
		return nil
	}
	return err
}

// appendWithRetry retries persistence failures with backoff. When retries
// exhaust, the error surfaces and the run aborts rather than risk an
// unlogged state change.
func (m *Manager) appendWithRetry(kind, key string, payload any) error {
	var lastErr error
	for attempt := 0; attempt <= m.appendRetries; attempt++ {
		if attempt > 0 {
			metrics.LedgerAppendRetries.Inc()
			time.Sleep(m.appendBackoff * time.Duration(attempt))
		}
		e, err := m.store.Append(kind, key, payload)
		if err == nil {
			metrics.LedgerHeadSeq.Set(float64(e.Seq))
			return nil
		}
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return err
		}
		lastErr = err
		m.log.Warn().Str("key", key).Int("attempt", attempt+1).Err(err).Msg("ledger append failed")
	}
	return fmt.Errorf("append %s after %d attempts: %w", key, m.appendRetries+1, lastErr)
}
