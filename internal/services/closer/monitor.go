// Package closer re-evaluates open hedges against live yields and triggers
// unwinds once the spread has narrowed enough.
package closer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/services/executor"
	"github.com/basisalpha/basisbot/internal/services/market"
	"github.com/basisalpha/basisbot/internal/services/position"
)

// Monitor scans the position tracker each cycle and submits close LegPairs
// for hedges whose live yield fell below the close threshold. A position
// already undergoing closure is excluded until its LegPair settles.
type Monitor struct {
	store   *market.SnapshotStore
	tracker *position.Tracker
	exec    *executor.Executor
	logger  *zap.Logger

	depth int
	// maxAge snapshot freshness bound shared with ranking.
	maxAge time.Duration
	// closeYieldPct close threshold; lower than the open threshold: the
	// spread must narrow, not merely stay favorable.
	closeYieldPct decimal.Decimal
	// perOrderUSD caps the notional unwound per cycle per hedge.
	perOrderUSD decimal.Decimal
}

// NewMonitor creates a close monitor.
func NewMonitor(store *market.SnapshotStore, tracker *position.Tracker, exec *executor.Executor,
	depth int, maxAge time.Duration, closeYieldPct, perOrderUSD decimal.Decimal, logger *zap.Logger) *Monitor {
	if maxAge <= 0 {
		maxAge = market.DefaultMaxSnapshotAge
	}
	return &Monitor{
		store:         store,
		tracker:       tracker,
		exec:          exec,
		logger:        logger,
		depth:         depth,
		maxAge:        maxAge,
		closeYieldPct: closeYieldPct,
		perOrderUSD:   perOrderUSD,
	}
}

// Cycle evaluates every open hedge once and dispatches unwinds.
func (m *Monitor) Cycle(ctx context.Context) {
	now := time.Now()

	for _, pos := range m.tracker.All() {
		key := pos.Pair.Key()
		if m.tracker.Busy(key) {
			// a LegPair for this pair is still in flight
			continue
		}

		req, liveYield, err := m.evaluate(pos, now)
		if err != nil {
			if !errors.Is(err, errYieldStillWide) {
				m.logger.Debug("close evaluation skipped",
					zap.String("pair", pos.Pair.String()), zap.Error(err))
			}
			continue
		}

		m.logger.Info("live yield below close threshold, unwinding",
			zap.String("pair", pos.Pair.String()),
			zap.String("entry_yield", pos.EntryYield.StringFixed(4)),
			zap.String("live_yield", liveYield.StringFixed(4)))

		if _, err := m.exec.Execute(ctx, *req); err != nil {
			m.logger.Error("close execution failed",
				zap.String("pair", pos.Pair.String()), zap.Error(err))
		}
	}
}

var errYieldStillWide = errors.New("live yield above close threshold")

// evaluate recomputes the unwind yield for one hedge and, when it breaches
// the threshold, builds the close request. The unwind sells spot into the
// bid and buys the future back at the ask.
func (m *Monitor) evaluate(pos *domain.Position, now time.Time) (*executor.Request, decimal.Decimal, error) {
	snap, ok := m.store.Latest(pos.Pair.Key())
	if !ok {
		return nil, decimal.Zero, errors.New("no snapshot")
	}
	if !market.Fresh(snap.Timestamp, now, m.maxAge) {
		return nil, decimal.Zero, errors.Wrapf(domain.ErrStaleData, "age %s", snap.Age(now))
	}

	spotBid, err := snap.Spot.BidAt(m.depth)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "spot book")
	}
	futureAsk, err := snap.Future.AskAt(m.depth)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "future book")
	}
	if spotBid.Price.LessThanOrEqual(decimal.Zero) || futureAsk.Price.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, errors.New("zero price level")
	}

	liveYield := domain.AnnualizedYield(spotBid.Price, futureAsk.Price, snap.ExpiryDays)
	if liveYield.GreaterThanOrEqual(m.closeYieldPct) {
		return nil, liveYield, errYieldStillWide
	}

	// unwind at most perOrderUSD worth per cycle, never more than the hedge
	futureSize := decimal.Min(pos.FutureSize, m.perOrderUSD)
	spotSize := decimal.Min(pos.SpotSize, m.perOrderUSD.Div(spotBid.Price))

	return &executor.Request{
		Pair:        pos.Pair,
		Intent:      domain.IntentClose,
		SpotPrice:   spotBid.Price,
		FuturePrice: futureAsk.Price,
		SpotSize:    spotSize,
		FutureSize:  futureSize,
		Yield:       liveYield,
	}, liveYield, nil
}
