// Package position maintains the authoritative set of open hedges.
package position

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/basisalpha/basisbot/internal/domain"
)

// Tracker is the source of truth for open positions. A position only ever
// appears with both legs recorded; reconciliation updates are applied under
// one lock so observers never see a one-sided hedge.
//
// The work lease (Begin/Finish) excludes a pair from admission and close
// consideration while any LegPair for it is non-terminal, which also
// serializes execution per pair.
type Tracker struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	busy      map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]*domain.Position),
		busy:      make(map[string]struct{}),
	}
}

// Begin takes the work lease for a pair. Fails with domain.ErrPairBusy when
// another LegPair for the same pair is still in flight.
func (t *Tracker) Begin(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, inFlight := t.busy[key]; inFlight {
		return errors.Wrap(domain.ErrPairBusy, key)
	}
	t.busy[key] = struct{}{}
	return nil
}

// Finish releases the work lease taken by Begin.
func (t *Tracker) Finish(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.busy, key)
}

// Busy reports whether a pair currently holds the work lease.
func (t *Tracker) Busy(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, inFlight := t.busy[key]
	return inFlight
}

// RecordOpen stores a freshly opened hedge. At most one position may exist
// per pair.
func (t *Tracker) RecordOpen(pair domain.InstrumentPair, spotSize, futureSize, entryYield decimal.Decimal, openedAt time.Time) error {
	pos, err := domain.NewPosition(pair, spotSize, futureSize, entryYield, openedAt)
	if err != nil {
		return errors.Wrap(err, "invalid position")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.positions[pair.Key()]; exists {
		return errors.Wrapf(domain.ErrPositionLimit, "position already open for %s", pair.Key())
	}
	t.positions[pair.Key()] = pos
	return nil
}

// RecordClose removes the hedge for the pair after a successful two-leg
// close or a reconciliation unwind.
func (t *Tracker) RecordClose(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.positions, key)
}

// Reduce shrinks both legs of an open hedge after a partial close. The
// position is removed once either leg reaches zero, so observers never see a
// one-sided hedge.
func (t *Tracker) Reduce(key string, spotDelta, futureDelta decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[key]
	if !ok {
		return
	}

	spot := pos.SpotSize.Sub(spotDelta)
	future := pos.FutureSize.Sub(futureDelta)
	if spot.LessThanOrEqual(decimal.Zero) || future.LessThanOrEqual(decimal.Zero) {
		delete(t.positions, key)
		return
	}
	pos.SpotSize = spot
	pos.FutureSize = future
}

// Get returns the open position for the pair, if any.
func (t *Tracker) Get(key string) (*domain.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[key]
	return pos, ok
}

// Has reports whether a hedge is open for the pair.
func (t *Tracker) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Count returns the number of open hedges.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.positions)
}

// All returns a copy of the open-position set.
func (t *Tracker) All() []*domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*domain.Position, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, pos)
	}
	return out
}

// Resync replaces the tracked set with the venue-reported one. The external
// snapshot is authoritative after a reconnect: state is replaced, never
// merged. Pairs holding the work lease are left untouched so an in-flight
// LegPair settles against the state it started from.
func (t *Tracker) Resync(snapshot domain.AccountSnapshot, pairs map[string]domain.InstrumentPair) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.positions {
		if _, inFlight := t.busy[key]; inFlight {
			continue
		}
		if _, reported := snapshot.Positions[key]; !reported {
			delete(t.positions, key)
		}
	}

	for key, ps := range snapshot.Positions {
		if _, inFlight := t.busy[key]; inFlight {
			continue
		}
		pair, known := pairs[key]
		if !known {
			continue
		}
		if ps.SpotSize.LessThanOrEqual(decimal.Zero) || ps.FutureSize.LessThanOrEqual(decimal.Zero) {
			delete(t.positions, key)
			continue
		}

		entryYield := decimal.Zero
		if prev, ok := t.positions[key]; ok {
			entryYield = prev.EntryYield
		}
		t.positions[key] = &domain.Position{
			Pair:       pair,
			SpotSize:   ps.SpotSize,
			FutureSize: ps.FutureSize,
			EntryYield: entryYield,
			OpenedAt:   snapshot.Timestamp,
		}
	}
}
