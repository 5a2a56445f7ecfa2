// Package executor runs the two-leg order placement protocol: a spot order
// and an offsetting coin-margined future order that must open or close
// together, with reconciliation of one-sided fills.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
	"github.com/basisalpha/basisbot/internal/metrics"
	"github.com/basisalpha/basisbot/internal/notify"
	"github.com/basisalpha/basisbot/internal/services/position"
	"github.com/basisalpha/basisbot/internal/services/precision"
	"github.com/basisalpha/basisbot/internal/storage/audit"
)

// Policy selects how the two legs are sequenced.
type Policy string

const (
	// PolicySimultaneous submits both legs concurrently as beyond-market
	// limit orders sized to fill against existing liquidity.
	PolicySimultaneous Policy = "simultaneous"
	// PolicySequenced submits the spot leg as a passive maker order first,
	// then hedges with an aggressive future order once the spot leg fills.
	PolicySequenced Policy = "sequenced"
)

// Config tunes the execution protocol for one account.
type Config struct {
	Account string
	Policy  Policy
	// FillTimeout bounds every leg's wait for acknowledgment and fill.
	FillTimeout time.Duration
	// MaxGap bounds the exposure window between the spot and future fills
	// under PolicySequenced; past it the spot fill is force-hedged at best
	// available price.
	MaxGap time.Duration
}

// Ledger lets the executor apply spot fills to the account's quote balance.
type Ledger interface {
	// ApplySpotFill adjusts the available quote balance: buys spend
	// notional, sells release it.
	ApplySpotFill(direction domain.Direction, notional decimal.Decimal)
}

// Request describes one hedge action the executor should carry out. Prices
// are the actionable depth-level prices, sizes are pre-normalization.
type Request struct {
	Pair        domain.InstrumentPair
	Intent      domain.Intent
	SpotPrice   decimal.Decimal
	FuturePrice decimal.Decimal
	SpotSize    decimal.Decimal
	FutureSize  decimal.Decimal
	Yield       decimal.Decimal
}

// Executor owns all order placement for one strategy instance. Execution is
// serialized per instrument pair through the tracker's work lease.
type Executor struct {
	cfg      Config
	gateway  exchange.OrderGateway
	tracker  *position.Tracker
	ledger   Ledger
	sink     audit.Sink
	notifier notify.Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	waiters map[string]chan exchange.Fill

	reconciling atomic.Int32
	inflight    sync.WaitGroup
}

// New creates an Executor.
func New(cfg Config, gateway exchange.OrderGateway, tracker *position.Tracker, ledger Ledger,
	sink audit.Sink, notifier notify.Notifier, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		gateway:  gateway,
		tracker:  tracker,
		ledger:   ledger,
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		waiters:  make(map[string]chan exchange.Fill),
	}
}

// Run routes fill notifications from the gateway to waiting legs. After the
// context is cancelled it keeps routing until every in-flight LegPair has
// settled: a draining pair must still observe its fills.
func (e *Executor) Run(ctx context.Context) {
	fills := e.gateway.Fills()
	for {
		select {
		case <-ctx.Done():
			e.routeUntilDrained(fills)
			return
		case fill, ok := <-fills:
			if !ok {
				return
			}
			e.dispatch(fill)
		}
	}
}

func (e *Executor) routeUntilDrained(fills <-chan exchange.Fill) {
	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(drained)
	}()

	for {
		select {
		case <-drained:
			return
		case fill, ok := <-fills:
			if !ok {
				return
			}
			e.dispatch(fill)
		}
	}
}

// Reconciling reports whether a one-sided fill is being unwound right now.
// Reconciliation preempts all new open admissions for the account.
func (e *Executor) Reconciling() bool {
	return e.reconciling.Load() > 0
}

// Drain blocks until every in-flight LegPair has reached a terminal state.
// Called on instance disable so a half-open position is never abandoned.
func (e *Executor) Drain() {
	e.inflight.Wait()
}

// Execute runs the two-leg protocol for the request and returns the settled
// LegPair. The returned error reports why the pair failed; the LegPair state
// is authoritative either way.
func (e *Executor) Execute(ctx context.Context, req Request) (*domain.LegPair, error) {
	key := req.Pair.Key()
	if err := e.tracker.Begin(key); err != nil {
		return nil, err
	}
	e.inflight.Add(1)
	defer func() {
		e.tracker.Finish(key)
		e.inflight.Done()
	}()

	// An instance disable must let an in-flight pair reach a terminal state,
	// reconciliation included, so the wait budget is detached from the
	// caller's cancellation and bounded on its own.
	budget := 2*e.cfg.FillTimeout + e.cfg.MaxGap + 2*time.Minute
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	lp, err := e.buildLegPair(req)
	if err != nil {
		return nil, err
	}

	log := e.logger.With(
		zap.String("pair", req.Pair.String()),
		zap.String("leg_pair", lp.ID),
		zap.String("intent", string(lp.Intent)))

	spotCh := e.register(lp.Spot.ClientOrderID)
	futureCh := e.register(lp.Future.ClientOrderID)
	defer e.unregister(lp.Spot.ClientOrderID)
	defer e.unregister(lp.Future.ClientOrderID)

	switch e.cfg.Policy {
	case PolicySequenced:
		err = e.runSequenced(ctx, lp, spotCh, futureCh, log)
	default:
		err = e.runSimultaneous(ctx, lp, spotCh, futureCh, log)
	}

	e.settle(lp, log)
	return lp, err
}

func (e *Executor) buildLegPair(req Request) (*domain.LegPair, error) {
	spotDir, futureDir := domain.DirectionBuy, domain.DirectionSell
	if req.Intent == domain.IntentClose {
		spotDir, futureDir = domain.DirectionSell, domain.DirectionBuy
	}

	spotPrice, err := precision.NormalizePrice(req.SpotPrice, req.Pair.SpotTick, spotDir)
	if err != nil {
		return nil, errors.Wrapf(err, "spot price for %s", req.Pair.SpotSymbol)
	}
	spotSize, err := precision.NormalizeSize(req.SpotSize, req.Pair.SpotLot)
	if err != nil {
		return nil, errors.Wrapf(err, "spot size for %s", req.Pair.SpotSymbol)
	}
	futurePrice, err := precision.NormalizePrice(req.FuturePrice, req.Pair.FutureTick, futureDir)
	if err != nil {
		return nil, errors.Wrapf(err, "future price for %s", req.Pair.FutureSymbol)
	}
	futureSize, err := precision.NormalizeSize(req.FutureSize, req.Pair.FutureLot)
	if err != nil {
		return nil, errors.Wrapf(err, "future size for %s", req.Pair.FutureSymbol)
	}
	if spotSize.IsZero() || futureSize.IsZero() {
		return nil, errors.Wrapf(domain.ErrPrecision, "normalized size is zero for %s", req.Pair)
	}

	return &domain.LegPair{
		ID:         uuid.NewString(),
		Pair:       req.Pair,
		Intent:     req.Intent,
		State:      domain.PairInitiated,
		EntryYield: req.Yield,
		CreatedAt:  time.Now(),
		Spot: domain.Leg{
			Side:            domain.LegSideSpot,
			Direction:       spotDir,
			Instrument:      req.Pair.SpotSymbol,
			Price:           req.SpotPrice,
			Size:            req.SpotSize,
			NormalizedPrice: spotPrice,
			NormalizedSize:  spotSize,
			ClientOrderID:   "spot-" + uuid.NewString(),
			State:           domain.LegPending,
		},
		Future: domain.Leg{
			Side:            domain.LegSideFuture,
			Direction:       futureDir,
			Instrument:      req.Pair.FutureSymbol,
			Price:           req.FuturePrice,
			Size:            req.FutureSize,
			NormalizedPrice: futurePrice,
			NormalizedSize:  futureSize,
			ClientOrderID:   "fut-" + uuid.NewString(),
			State:           domain.LegPending,
		},
	}, nil
}

// settle applies the terminal LegPair to the tracker and ledger, then emits
// the audit record. Tracker updates happen here only, so observers never see
// a hedge between leg settlement and reconciliation completion.
func (e *Executor) settle(lp *domain.LegPair, log *zap.Logger) {
	lp.SettledAt = time.Now()

	if lp.State.Success() {
		switch lp.Intent {
		case domain.IntentOpen:
			if err := e.tracker.RecordOpen(lp.Pair, lp.Spot.FilledSize, lp.Future.FilledSize, lp.EntryYield, lp.SettledAt); err != nil {
				log.Error("failed to record open position", zap.Error(err))
			}
			e.ledger.ApplySpotFill(domain.DirectionBuy, lp.Spot.AvgFillPrice.Mul(lp.Spot.FilledSize))
		case domain.IntentClose:
			e.tracker.Reduce(lp.Pair.Key(), lp.Spot.FilledSize, lp.Future.FilledSize)
			e.ledger.ApplySpotFill(domain.DirectionSell, lp.Spot.AvgFillPrice.Mul(lp.Spot.FilledSize))
		}
	}

	metrics.LegPairs.WithLabelValues(e.cfg.Account, string(lp.Intent), string(lp.State)).Inc()
	metrics.OpenPositions.WithLabelValues(e.cfg.Account).Set(float64(e.tracker.Count()))

	if err := e.sink.Save(audit.NewRecord(e.cfg.Account, lp)); err != nil {
		log.Error("failed to persist audit record", zap.Error(err))
	}

	log.Info("leg pair settled",
		zap.String("state", string(lp.State)),
		zap.String("spot_filled", lp.Spot.FilledSize.String()),
		zap.String("future_filled", lp.Future.FilledSize.String()))
}

func (e *Executor) register(clientOrderID string) chan exchange.Fill {
	ch := make(chan exchange.Fill, 8)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.waiters[clientOrderID] = ch
	return ch
}

func (e *Executor) unregister(clientOrderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.waiters, clientOrderID)
}

func (e *Executor) dispatch(fill exchange.Fill) {
	e.mu.Lock()
	ch, ok := e.waiters[fill.ClientOrderID]
	e.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- fill:
	default:
		e.logger.Warn("fill waiter buffer full, dropping update",
			zap.String("client_order_id", fill.ClientOrderID))
	}
}
