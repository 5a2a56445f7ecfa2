package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
	"github.com/basisalpha/basisbot/internal/metrics"
)

const (
	unwindAttempts = 5
	alertTimeout   = 10 * time.Second
)

// recover resolves a LegPair that cannot complete: it cancels anything still
// live, and if any quantity filled, unwinds it immediately so no unintended
// directional exposure is carried.
func (e *Executor) recover(ctx context.Context, lp *domain.LegPair,
	spotCh, futureCh chan exchange.Fill, log *zap.Logger) error {

	e.cancel(ctx, spotCh, &lp.Spot)
	e.cancel(ctx, futureCh, &lp.Future)

	exposed := lp.Spot.FilledSize.GreaterThan(decimal.Zero) ||
		lp.Future.FilledSize.GreaterThan(decimal.Zero)
	if !exposed {
		// nothing filled: no exposure was created
		lp.State = domain.PairSubmissionRejected
		return errors.Wrapf(domain.ErrLegRejected, "leg pair %s aborted", lp.ID)
	}

	lp.State = domain.PairPartialFillMismatch
	return e.reconcile(ctx, lp, log)
}

// reconcile unwinds every filled quantity of a failed LegPair with
// opposite-direction taker orders at best available price. This is the
// highest-priority action the executor performs: while it runs, new open
// admissions for the account are preempted.
func (e *Executor) reconcile(ctx context.Context, lp *domain.LegPair, log *zap.Logger) error {
	lp.State = domain.PairReconciling
	e.reconciling.Add(1)
	defer e.reconciling.Add(-1)
	metrics.Reconciliations.WithLabelValues(e.cfg.Account).Inc()

	log.Warn("reconciling one-sided fill",
		zap.String("spot_filled", lp.Spot.FilledSize.String()),
		zap.String("future_filled", lp.Future.FilledSize.String()))

	var failed bool
	for _, leg := range []*domain.Leg{&lp.Spot, &lp.Future} {
		if leg.FilledSize.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if err := e.unwind(ctx, lp, leg, log); err != nil {
			failed = true
			log.Error("unwind failed", zap.String("leg", leg.Side.String()), zap.Error(err))
		}
	}

	if failed {
		e.alert(ctx, fmt.Sprintf("reconciliation INCOMPLETE for %s leg pair %s (%s): manual intervention required",
			lp.Pair, lp.ID, lp.Intent))
		return errors.Wrapf(domain.ErrPartialFillMismatch, "leg pair %s not fully reconciled", lp.ID)
	}

	lp.State = domain.PairReconciled
	e.alert(ctx, fmt.Sprintf("reconciled one-sided fill for %s leg pair %s (%s)", lp.Pair, lp.ID, lp.Intent))
	return errors.Wrapf(domain.ErrPartialFillMismatch, "leg pair %s reconciled", lp.ID)
}

// unwind flattens one filled leg with market orders, retrying with backoff
// until the filled quantity is gone or attempts run out.
func (e *Executor) unwind(ctx context.Context, lp *domain.LegPair, leg *domain.Leg, log *zap.Logger) error {
	remaining := leg.FilledSize
	direction := leg.Direction.Opposite()
	// buying back a short future contract only ever reduces exposure
	reduceOnly := leg.Side == domain.LegSideFuture && direction == domain.DirectionBuy

	delay := &backoff.Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2, Jitter: true}

	for attempt := 0; attempt < unwindAttempts && remaining.GreaterThan(decimal.Zero); attempt++ {
		clientID := "rec-" + uuid.NewString()
		ch := e.register(clientID)

		orderID, err := e.gateway.SubmitOrder(ctx, exchange.OrderRequest{
			Instrument:    leg.Instrument,
			ClientOrderID: clientID,
			Direction:     direction,
			Type:          exchange.OrderTypeMarket,
			Size:          remaining,
			ReduceOnly:    reduceOnly,
		})
		if err != nil {
			e.unregister(clientID)
			log.Warn("unwind submission rejected, retrying",
				zap.Int("attempt", attempt+1), zap.Error(err))
			if !sleep(ctx, delay.Duration()) {
				return ctx.Err()
			}
			continue
		}

		unwinder := domain.Leg{
			Side:           leg.Side,
			Direction:      direction,
			Instrument:     leg.Instrument,
			NormalizedSize: remaining,
			ClientOrderID:  clientID,
			OrderID:        orderID,
			State:          domain.LegPending,
		}
		err = e.waitFill(ctx, ch, &unwinder, time.Now().Add(e.cfg.FillTimeout))
		e.unregister(clientID)

		remaining = remaining.Sub(unwinder.FilledSize)
		if err != nil && remaining.GreaterThan(decimal.Zero) {
			log.Warn("unwind order did not complete, retrying",
				zap.Int("attempt", attempt+1),
				zap.String("remaining", remaining.String()), zap.Error(err))
			if !sleep(ctx, delay.Duration()) {
				return ctx.Err()
			}
		}
	}

	if remaining.GreaterThan(decimal.Zero) {
		return errors.Wrapf(domain.ErrPartialFillMismatch,
			"%s units of %s still exposed", remaining, leg.Instrument)
	}
	return nil
}

// alert dispatches the operator notification off the trading path. A slow
// or unreachable notifier must never stall settlement or unwinding.
func (e *Executor) alert(ctx context.Context, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()
		if err := e.notifier.Alert(ctx, text); err != nil {
			e.logger.Warn("operator alert failed", zap.Error(err))
		}
	}()
}

// sleep waits the given duration unless the context ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
