// Package scheduler triggers lifecycle runs on a cadence, enforces the
// single-active-run discipline, honors cooperative stop requests, and
// replays the ledger on startup to resume interrupted work.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"SolarAlpha/internal/ledger"
	"SolarAlpha/internal/lifecycle"
	"SolarAlpha/internal/metrics"
	"SolarAlpha/internal/model"
	"SolarAlpha/internal/publish"
	"SolarAlpha/internal/recommend"
)

// ErrRunInFlight is returned when a trigger arrives while a run has not
// reached a terminal state. The hash chain has one valid next entry, so
// overlapping runs are refused, never queued.
var ErrRunInFlight = errors.New("scheduler: run already in flight")

// Controller owns the cadence and the stop flag.
type Controller struct {
	cron    *cron.Cron
	advisor recommend.Advisor
	mgr     *lifecycle.Manager
	store   ledger.Store
	pub     publish.Publisher
	log     zerolog.Logger

	intervalHours   int
	maxTradesPerRun int
	proposeTimeout  time.Duration
	startingBalance decimal.Decimal

	mu      sync.Mutex
	running bool
	stop    atomic.Bool
}

// Options configures the Controller.
type Options struct {
	IntervalHours   int
	MaxTradesPerRun int
	ProposeTimeout  time.Duration
	StartingBalance decimal.Decimal
}

func NewController(advisor recommend.Advisor, mgr *lifecycle.Manager, store ledger.Store,
	pub publish.Publisher, opts Options, log zerolog.Logger) *Controller {
	return &Controller{
		cron:            cron.New(),
		advisor:         advisor,
		mgr:             mgr,
		store:           store,
		pub:             pub,
		log:             log.With().Str("component", "scheduler").Logger(),
		intervalHours:   opts.IntervalHours,
		maxTradesPerRun: opts.MaxTradesPerRun,
		proposeTimeout:  opts.ProposeTimeout,
		startingBalance: opts.StartingBalance,
	}
}

// Start registers the cadence and starts the cron loop.
func (c *Controller) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %dh", c.intervalHours)
	if _, err := c.cron.AddFunc(spec, func() {
		if err := c.RunCycle(ctx); err != nil && !errors.Is(err, ErrRunInFlight) {
			c.log.Error().Err(err).Msg("scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("register cadence: %w", err)
	}
	c.cron.Start()
	c.log.Info().Str("cadence", spec).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to return.
func (c *Controller) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.log.Info().Msg("scheduler stopped")
}

// RequestStop sets the cooperative stop flag. The flag is observed before
// starting a new trade, never mid-execution, so stop always means
// "finish what's in flight, start nothing new".
func (c *Controller) RequestStop() {
	c.stop.Store(true)
	c.log.Warn().Msg("stop requested: finishing in-flight work, starting nothing new")
}

func (c *Controller) stopRequested() bool { return c.stop.Load() }

func (c *Controller) tryBegin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Controller) end() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// RunCycle executes one full run: propose, drive, settle, allocate,
// publish. A second trigger while a run is in flight is refused with
// ErrRunInFlight.
func (c *Controller) RunCycle(ctx context.Context) error {
	if !c.tryBegin() {
		metrics.RunsRefused.Inc()
		c.log.Warn().Msg("run trigger refused: run already in flight")
		return ErrRunInFlight
	}
	defer c.end()

	run := &model.Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	if _, err := c.store.Append(ledger.KindRunStarted, run.ID+":started", run); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	c.log.Info().Str("run", run.ID).Msg("run started")

	outcome := model.RunCompleted
	for i := 0; i < c.maxTradesPerRun; i++ {
		if c.stopRequested() {
			outcome = model.RunStopped
			c.log.Info().Str("run", run.ID).Msg("stop observed before starting a new trade")
			break
		}

		opp, err := c.propose(ctx)
		if err != nil {
			if errors.Is(err, recommend.ErrUnavailable) {
				c.log.Info().Str("run", run.ID).Msg("no recommendation this cycle")
			} else {
				c.log.Error().Str("run", run.ID).Err(err).Msg("recommendation failed")
			}
			break
		}
		if opp == nil {
			run.OpportunitiesSeen++
			continue // advisor looked and declined
		}
		run.OpportunitiesSeen++

		trade, err := c.mgr.Propose(run.ID, opp)
		if err != nil {
			outcome = model.RunAborted
			c.log.Error().Str("run", run.ID).Err(err).Msg("could not record proposal, aborting run")
			break
		}
		run.TradeIDs = append(run.TradeIDs, trade.ID)

		if err := c.mgr.Drive(ctx, trade); err != nil {
			// An uncertain ledger state halts the run rather than guess;
			// replay resumes the trade from its last durable state.
			outcome = model.RunAborted
			c.log.Error().Str("run", run.ID).Str("trade", trade.ID).Err(err).Msg("run aborted")
			break
		}
		if trade.Settled() {
			run.TradesExecuted++
		}
	}

	return c.finishRun(run, outcome)
}

// finishRun records the run outcome and refreshes the public export.
func (c *Controller) finishRun(run *model.Run, outcome model.RunOutcome) error {
	now := time.Now().UTC()
	run.EndedAt = &now
	run.Outcome = outcome
	if _, err := c.store.Append(ledger.KindRunFinished, run.ID+":finished", run); err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	metrics.RunsTotal.WithLabelValues(string(outcome)).Inc()
	c.log.Info().Str("run", run.ID).Str("outcome", string(outcome)).
		Int("trades", run.TradesExecuted).Msg("run finished")

	sum, err := ledger.Summarize(c.store, c.startingBalance)
	if err != nil {
		c.log.Error().Err(err).Msg("summarize ledger")
		return nil
	}
	if err := c.pub.RunSummary(run, sum); err != nil {
		c.log.Error().Err(err).Msg("publish run summary")
	}
	if err := c.pub.Refresh(c.store); err != nil {
		c.log.Error().Err(err).Msg("refresh public export")
	}
	return nil
}

func (c *Controller) propose(ctx context.Context) (*model.Opportunity, error) {
	proposeCtx, cancel := context.WithTimeout(ctx, c.proposeTimeout)
	defer cancel()
	opp, err := c.advisor.Propose(proposeCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: recommendation timed out", recommend.ErrUnavailable)
	}
	return opp, err
}

// Recover replays the ledger after an unclean termination: runs that
// never finished are closed as aborted, trades interrupted mid-execution
// are failed (their external outcome is unknown and re-executing could
// double-trade), and every other non-terminal trade resumes forward.
func (c *Controller) Recover(ctx context.Context) error {
	st, err := ledger.Replay(c.store)
	if err != nil {
		return fmt.Errorf("replay ledger: %w", err)
	}

	for _, run := range st.OpenRuns {
		now := time.Now().UTC()
		run.EndedAt = &now
		run.Outcome = model.RunAborted
		if _, err := c.store.Append(ledger.KindRunFinished, run.ID+":finished", run); err != nil {
			if errors.Is(err, ledger.ErrDuplicateEntry) {
				continue
			}
			return fmt.Errorf("close interrupted run %s: %w", run.ID, err)
		}
		metrics.RunsTotal.WithLabelValues(string(model.RunAborted)).Inc()
		c.log.Warn().Str("run", run.ID).Msg("interrupted run closed as aborted")
	}

	pending := st.NonTerminal()
	if len(pending) == 0 {
		c.log.Info().Msg("recovery: ledger consistent, nothing to resume")
		return nil
	}

	c.log.Warn().Int("trades", len(pending)).Msg("recovery: resuming non-terminal trades")
	for _, t := range pending {
		if t.State == model.StateExecuting {
			t.State = model.StateFailed
			t.Reason = "execution outcome unknown after restart"
			t.UpdatedAt = time.Now().UTC()
			if _, err := c.store.Append(ledger.KindTradeFailed, t.ID+":"+string(model.StateFailed), t); err != nil {
				if errors.Is(err, ledger.ErrDuplicateEntry) {
					continue
				}
				return fmt.Errorf("fail interrupted trade %s: %w", t.ID, err)
			}
			metrics.TradesTotal.WithLabelValues(string(model.StateFailed)).Inc()
			c.log.Warn().Str("trade", t.ID).Msg("interrupted mid-execution, failed on recovery")
			continue
		}
		if err := c.mgr.Drive(ctx, t); err != nil {
			return fmt.Errorf("resume trade %s: %w", t.ID, err)
		}
		c.log.Info().Str("trade", t.ID).Str("state", string(t.State)).Msg("trade resumed to terminal state")
	}

	if err := c.pub.Refresh(c.store); err != nil {
		c.log.Error().Err(err).Msg("refresh public export after recovery")
	}
	return nil
}
