package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
)

// cancelDrain is how long a cancel waits for a racing fill notification
// before trusting the cancellation.
const cancelDrain = 500 * time.Millisecond

// runSimultaneous submits both legs concurrently as beyond-market limit
// orders. Submissions are issued without waiting on one leg's ack before
// issuing the other, to minimize the price-exposure window.
func (e *Executor) runSimultaneous(ctx context.Context, lp *domain.LegPair,
	spotCh, futureCh chan exchange.Fill, log *zap.Logger) error {

	type ack struct {
		side domain.LegSide
		err  error
	}
	acks := make(chan ack, 2)
	go func() {
		acks <- ack{domain.LegSideSpot, e.submit(ctx, lp, &lp.Spot, exchange.OrderTypeLimit, false)}
	}()
	go func() {
		acks <- ack{domain.LegSideFuture, e.submit(ctx, lp, &lp.Future, exchange.OrderTypeLimit, false)}
	}()

	var spotErr, futureErr error
	for i := 0; i < 2; i++ {
		a := <-acks
		if a.side == domain.LegSideSpot {
			spotErr = a.err
		} else {
			futureErr = a.err
		}
	}

	if spotErr != nil && futureErr != nil {
		lp.State = domain.PairSubmissionRejected
		return errors.Wrap(domain.ErrLegRejected, "both legs rejected")
	}
	if spotErr != nil || futureErr != nil {
		// one submission refused; the acknowledged leg may still fill
		log.Warn("one leg submission rejected",
			zap.NamedError("spot", spotErr), zap.NamedError("future", futureErr))
		return e.recover(ctx, lp, spotCh, futureCh, log)
	}
	lp.State = domain.PairBothSubmitted

	deadline := time.Now().Add(e.cfg.FillTimeout)
	spotErr = e.waitFill(ctx, spotCh, &lp.Spot, deadline)
	futureErr = e.waitFill(ctx, futureCh, &lp.Future, deadline)
	if spotErr == nil && futureErr == nil {
		lp.State = domain.PairBothFilled
		return nil
	}
	return e.recover(ctx, lp, spotCh, futureCh, log)
}

// runSequenced submits the spot leg first as a passive maker order and
// hedges with the future leg only once the spot leg fills. The exposure
// window between the two fills is bounded by MaxGap; past it the still-open
// spot fill is force-hedged at best available price regardless of target
// yield.
func (e *Executor) runSequenced(ctx context.Context, lp *domain.LegPair,
	spotCh, futureCh chan exchange.Fill, log *zap.Logger) error {

	if err := e.submit(ctx, lp, &lp.Spot, exchange.OrderTypeLimit, true); err != nil {
		lp.State = domain.PairSubmissionRejected
		return errors.Wrap(domain.ErrLegRejected, "spot leg")
	}
	lp.State = domain.PairSpotSubmitted

	if err := e.waitFill(ctx, spotCh, &lp.Spot, time.Now().Add(e.cfg.FillTimeout)); err != nil {
		log.Warn("spot maker leg did not fill", zap.Error(err))
		return e.recover(ctx, lp, spotCh, futureCh, log)
	}

	// exposure clock starts at the spot fill
	gapDeadline := time.Now().Add(e.cfg.MaxGap)

	if err := e.submit(ctx, lp, &lp.Future, exchange.OrderTypeLimit, false); err != nil {
		log.Warn("future taker leg rejected after spot fill", zap.Error(err))
		return e.recover(ctx, lp, spotCh, futureCh, log)
	}
	lp.State = domain.PairBothSubmitted

	if err := e.waitFill(ctx, futureCh, &lp.Future, gapDeadline); err != nil {
		log.Warn("sequencing gap exhausted, force-hedging spot fill", zap.Error(err))
		e.cancel(ctx, futureCh, &lp.Future)
		if err := e.forceHedge(ctx, lp, log); err != nil {
			return e.recover(ctx, lp, spotCh, futureCh, log)
		}
	}

	lp.State = domain.PairBothFilled
	return nil
}

// submit places one leg and records the acknowledgment.
func (e *Executor) submit(ctx context.Context, lp *domain.LegPair, leg *domain.Leg,
	orderType exchange.OrderType, postOnly bool) error {

	reduceOnly := lp.Intent == domain.IntentClose && leg.Side == domain.LegSideFuture

	orderID, err := e.gateway.SubmitOrder(ctx, exchange.OrderRequest{
		Instrument:    leg.Instrument,
		ClientOrderID: leg.ClientOrderID,
		Direction:     leg.Direction,
		Type:          orderType,
		Price:         leg.NormalizedPrice,
		Size:          leg.NormalizedSize,
		PostOnly:      postOnly,
		ReduceOnly:    reduceOnly,
	})
	if err != nil {
		leg.State = domain.LegRejected
		return errors.Wrapf(domain.ErrLegRejected, "submit %s %s: %v", leg.Direction, leg.Instrument, err)
	}
	leg.OrderID = orderID
	return nil
}

// waitFill suspends until the leg reaches a terminal state or the deadline
// expires. Partial fills keep the wait alive and accumulate on the leg.
func (e *Executor) waitFill(ctx context.Context, ch chan exchange.Fill, leg *domain.Leg, deadline time.Time) error {
	if leg.State.Terminal() {
		if leg.State == domain.LegFilled {
			return nil
		}
		return errors.Wrapf(domain.ErrLegRejected, "%s %s", leg.Side, leg.Instrument)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fill := <-ch:
			applyFill(leg, fill)
			switch leg.State {
			case domain.LegFilled:
				return nil
			case domain.LegRejected:
				return errors.Wrapf(domain.ErrLegRejected, "%s %s", leg.Side, leg.Instrument)
			case domain.LegCancelled:
				return errors.Wrapf(domain.ErrLegTimeout, "%s %s cancelled", leg.Side, leg.Instrument)
			}
		case <-timer.C:
			return errors.Wrapf(domain.ErrLegTimeout, "%s %s", leg.Side, leg.Instrument)
		}
	}
}

// cancel revokes a still-live leg and drains a racing fill notification so a
// last-moment fill is not lost.
func (e *Executor) cancel(ctx context.Context, ch chan exchange.Fill, leg *domain.Leg) {
	if leg.State.Terminal() {
		return
	}
	if leg.OrderID != "" {
		if err := e.gateway.CancelOrder(ctx, leg.Instrument, leg.OrderID); err != nil {
			e.logger.Warn("cancel failed", zap.String("instrument", leg.Instrument), zap.Error(err))
		}
	}

	timer := time.NewTimer(cancelDrain)
	defer timer.Stop()
	for {
		select {
		case fill := <-ch:
			applyFill(leg, fill)
			if leg.State.Terminal() {
				return
			}
		case <-timer.C:
			leg.State = domain.LegCancelled
			return
		case <-ctx.Done():
			leg.State = domain.LegCancelled
			return
		}
	}
}

// forceHedge closes the exposure window with an aggressive market order for
// the unfilled remainder of the future leg.
func (e *Executor) forceHedge(ctx context.Context, lp *domain.LegPair, log *zap.Logger) error {
	remaining := lp.Future.NormalizedSize.Sub(lp.Future.FilledSize)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	clientID := "hedge-" + uuid.NewString()
	ch := e.register(clientID)
	defer e.unregister(clientID)

	orderID, err := e.gateway.SubmitOrder(ctx, exchange.OrderRequest{
		Instrument:    lp.Future.Instrument,
		ClientOrderID: clientID,
		Direction:     lp.Future.Direction,
		Type:          exchange.OrderTypeMarket,
		Size:          remaining,
		ReduceOnly:    lp.Intent == domain.IntentClose,
	})
	if err != nil {
		return errors.Wrapf(domain.ErrLegRejected, "force hedge %s: %v", lp.Future.Instrument, err)
	}

	hedge := domain.Leg{
		Side:           domain.LegSideFuture,
		Direction:      lp.Future.Direction,
		Instrument:     lp.Future.Instrument,
		NormalizedSize: remaining,
		ClientOrderID:  clientID,
		OrderID:        orderID,
		State:          domain.LegPending,
	}
	err = e.waitFill(ctx, ch, &hedge, time.Now().Add(e.cfg.FillTimeout))
	if err != nil {
		e.cancel(ctx, ch, &hedge)
	}

	// fold whatever the hedge caught into the leg even on failure, or the
	// reconciler would never buy the partial back
	lp.Future.FilledSize = lp.Future.FilledSize.Add(hedge.FilledSize)
	if hedge.AvgFillPrice.GreaterThan(decimal.Zero) {
		lp.Future.AvgFillPrice = hedge.AvgFillPrice
	}
	if err != nil {
		log.Warn("force hedge incomplete",
			zap.String("hedged", hedge.FilledSize.String()),
			zap.Error(err))
		return err
	}

	lp.Future.State = domain.LegFilled
	log.Info("force hedge filled",
		zap.String("size", hedge.FilledSize.String()),
		zap.String("price", hedge.AvgFillPrice.String()))
	return nil
}

func applyFill(leg *domain.Leg, fill exchange.Fill) {
	if fill.OrderID != "" {
		leg.OrderID = fill.OrderID
	}
	if fill.FilledSize.GreaterThan(leg.FilledSize) {
		leg.FilledSize = fill.FilledSize
	}
	if fill.AvgPrice.GreaterThan(decimal.Zero) {
		leg.AvgFillPrice = fill.AvgPrice
	}
	leg.State = fill.State
}
