// Package instance wires one account's strategy components together and
// runs its decision cycles.
package instance

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basisalpha/basisbot/config"
	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
	"github.com/basisalpha/basisbot/internal/metrics"
	"github.com/basisalpha/basisbot/internal/notify"
	"github.com/basisalpha/basisbot/internal/services/admission"
	"github.com/basisalpha/basisbot/internal/services/closer"
	"github.com/basisalpha/basisbot/internal/services/executor"
	"github.com/basisalpha/basisbot/internal/services/market"
	"github.com/basisalpha/basisbot/internal/services/position"
	"github.com/basisalpha/basisbot/internal/services/ranker"
	"github.com/basisalpha/basisbot/internal/storage/audit"
)

// Collaborators are the external dependencies one instance needs.
type Collaborators struct {
	MarketFeed  exchange.MarketFeed
	AccountFeed exchange.AccountFeed
	Gateway     exchange.OrderGateway
	Health      exchange.Health
	Sink        audit.Sink
	Notifier    notify.Notifier
}

// Instance runs one account's strategy. Instances share no mutable state.
type Instance struct {
	cfg     config.Instance
	collab  Collaborators
	store   *market.SnapshotStore
	tracker *position.Tracker
	rank    *ranker.Ranker
	gate    *admission.Gate
	exec    *executor.Executor
	monitor *closer.Monitor
	logger  *zap.Logger

	mu   sync.Mutex
	acct domain.AccountState
}

// New assembles an instance from its configuration and collaborators.
func New(cfg config.Instance, collab Collaborators, logger *zap.Logger) *Instance {
	log := logger.With(zap.String("account", cfg.Name))

	store := market.NewSnapshotStore(log)
	tracker := position.NewTracker()

	inst := &Instance{
		cfg:     cfg,
		collab:  collab,
		store:   store,
		tracker: tracker,
		logger:  log,
		acct: domain.AccountState{
			Enabled: cfg.Enabled,
		},
	}

	inst.rank = ranker.New(store, cfg.DepthLevel, cfg.Stale, log)
	inst.gate = admission.NewGate(cfg.Name, tracker, admission.Limits{
		PerOrderUSD:   cfg.PerOrderUSD,
		MaxPositions:  cfg.MaxPositions,
		OpenYieldPct:  cfg.OpenYieldPct,
		MinExpiryDays: cfg.MinExpiryDays,
	}, log)
	inst.exec = executor.New(executor.Config{
		Account:     cfg.Name,
		Policy:      executor.Policy(cfg.ExecutionPolicy),
		FillTimeout: cfg.FillTimeout,
		MaxGap:      cfg.MaxGap,
	}, collab.Gateway, tracker, inst, collab.Sink, collab.Notifier, log)
	inst.monitor = closer.NewMonitor(store, tracker, inst.exec,
		cfg.DepthLevel, cfg.Stale, cfg.CloseYieldPct, cfg.PerOrderUSD, log)

	return inst
}

// ApplySpotFill adjusts the available quote balance for a spot fill. Buys
// spend notional; sells release it.
func (i *Instance) ApplySpotFill(direction domain.Direction, notional decimal.Decimal) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if direction == domain.DirectionBuy {
		i.acct.QuoteBalance = i.acct.QuoteBalance.Sub(notional)
	} else {
		i.acct.QuoteBalance = i.acct.QuoteBalance.Add(notional)
	}
}

func (i *Instance) accountState() domain.AccountState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.acct
}

// Run drives the instance until the context is cancelled, then drains every
// in-flight LegPair before returning.
func (i *Instance) Run(ctx context.Context) error {
	i.logger.Info("starting strategy instance",
		zap.String("policy", i.cfg.ExecutionPolicy),
		zap.Int("pairs", len(i.cfg.Pairs)))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		i.store.Run(gctx, i.collab.MarketFeed.Snapshots())
		return nil
	})
	g.Go(func() error {
		i.accountLoop(gctx)
		return nil
	})
	g.Go(func() error {
		i.exec.Run(gctx)
		return nil
	})
	g.Go(func() error {
		i.openLoop(gctx)
		return nil
	})
	g.Go(func() error {
		i.closeLoop(gctx)
		return nil
	})

	err := g.Wait()

	// never abandon a half-open position on shutdown
	i.logger.Info("draining in-flight leg pairs")
	i.exec.Drain()
	i.logger.Info("strategy instance stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// accountLoop applies account snapshots as they arrive. The latest snapshot
// supersedes local state wholesale, never merges: that avoids drift after
// missed events on reconnect.
func (i *Instance) accountLoop(ctx context.Context) {
	snapshots := i.collab.AccountFeed.Snapshots()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}

			i.mu.Lock()
			i.acct.QuoteBalance = snap.QuoteBalance
			i.acct.SyncedAt = snap.Timestamp
			i.mu.Unlock()

			i.tracker.Resync(snap, i.pairsByKey())
			metrics.OpenPositions.WithLabelValues(i.cfg.Name).Set(float64(i.tracker.Count()))

			i.logger.Debug("account state resynced",
				zap.String("quote_balance", snap.QuoteBalance.String()),
				zap.Int("positions", len(snap.Positions)))
		}
	}
}

func (i *Instance) pairsByKey() map[string]domain.InstrumentPair {
	out := make(map[string]domain.InstrumentPair, len(i.cfg.Pairs))
	for _, snap := range i.store.All() {
		out[snap.Pair.Key()] = snap.Pair
	}
	return out
}

// openLoop is the open-decision cycle: rank, guard, admit, execute.
func (i *Instance) openLoop(ctx context.Context) {
	ticker := time.NewTicker(i.cfg.OpenInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.openCycle(ctx)
		}
	}
}

func (i *Instance) openCycle(ctx context.Context) {
	entries := i.rank.Rank(time.Now())
	if len(entries) > 0 {
		metrics.BestYield.WithLabelValues(i.cfg.Name).Set(entries[0].Yield.InexactFloat64())
	}

	if degraded := !i.collab.Health.Healthy(); degraded {
		metrics.Degraded.WithLabelValues(i.cfg.Name).Set(1)
		i.logger.Warn("collaborator feeds down, refusing new opens")
		return
	}
	metrics.Degraded.WithLabelValues(i.cfg.Name).Set(0)

	if i.exec.Reconciling() {
		// reconciliation preempts all new admission work
		i.logger.Warn("reconciliation in progress, skipping open cycle")
		return
	}

	admitted := i.gate.Admit(entries, i.accountState())
	for _, entry := range admitted {
		req := executor.Request{
			Pair:        entry.Pair,
			Intent:      domain.IntentOpen,
			SpotPrice:   entry.SpotPrice,
			FuturePrice: entry.FuturePrice,
			SpotSize:    i.cfg.PerOrderUSD.Div(entry.SpotPrice),
			FutureSize:  i.cfg.PerOrderUSD,
			Yield:       entry.Yield,
		}

		i.logger.Info("opening hedge",
			zap.String("pair", entry.Pair.String()),
			zap.String("yield", entry.Yield.StringFixed(4)))

		if _, err := i.exec.Execute(ctx, req); err != nil {
			i.logger.Error("open execution failed",
				zap.String("pair", entry.Pair.String()), zap.Error(err))
			if errors.Is(err, domain.ErrPartialFillMismatch) {
				// reconciliation owns the account until resolved
				return
			}
		}
	}
}

// closeLoop is the independent close-decision cycle.
func (i *Instance) closeLoop(ctx context.Context) {
	ticker := time.NewTicker(i.cfg.CloseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.monitor.Cycle(ctx)
		}
	}
}
