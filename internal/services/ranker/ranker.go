// Package ranker computes the annualized-yield ranking over all tracked
// instrument pairs.
package ranker

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/services/market"
)

// Ranker produces a descending yield ranking from the latest snapshots.
// The ranking is recomputed in full every cycle; cycle cadence is bounded by
// market data arrival, not ranking cost.
type Ranker struct {
	store *market.SnapshotStore
	// depth book level (1-based) whose prices the legs would actually trade.
	depth  int
	maxAge time.Duration
	logger *zap.Logger
}

// New creates a Ranker reading from the given snapshot store.
func New(store *market.SnapshotStore, depth int, maxAge time.Duration, logger *zap.Logger) *Ranker {
	if maxAge <= 0 {
		maxAge = market.DefaultMaxSnapshotAge
	}
	return &Ranker{store: store, depth: depth, maxAge: maxAge, logger: logger}
}

// Rank returns yield entries for every pair with a fresh, usable snapshot,
// sorted by yield descending, ties broken by currency for determinism.
func (r *Ranker) Rank(now time.Time) []domain.YieldEntry {
	var entries []domain.YieldEntry

	for _, snap := range r.store.All() {
		if !market.Fresh(snap.Timestamp, now, r.maxAge) {
			r.logger.Debug("skipping stale snapshot",
				zap.String("pair", snap.Pair.String()),
				zap.Duration("age", snap.Age(now)))
			continue
		}
		if snap.ExpiryDays <= 0 {
			continue
		}

		// The open direction buys spot at the ask and sells the future at
		// the bid, so those are the actionable prices.
		ask, err := snap.Spot.AskAt(r.depth)
		if err != nil {
			continue
		}
		bid, err := snap.Future.BidAt(r.depth)
		if err != nil {
			continue
		}
		if ask.Price.LessThanOrEqual(decimal.Zero) || bid.Price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		entries = append(entries, domain.YieldEntry{
			Pair:        snap.Pair,
			Yield:       domain.AnnualizedYield(ask.Price, bid.Price, snap.ExpiryDays),
			SpotPrice:   ask.Price,
			FuturePrice: bid.Price,
			ExpiryDays:  snap.ExpiryDays,
			Timestamp:   snap.Timestamp,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Yield.Equal(entries[j].Yield) {
			return entries[i].Pair.Key() < entries[j].Pair.Key()
		}
		return entries[i].Yield.GreaterThan(entries[j].Yield)
	})

	return entries
}
