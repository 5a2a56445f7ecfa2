package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BookLevel is a single price level of one order book side.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is one instrument's depth, both sides ordered best to worst.
type Book struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BidAt returns the bid level at the given depth (1-based), falling back to
// the deepest available level when the book is thinner than requested.
func (b Book) BidAt(depth int) (BookLevel, error) {
	return levelAt(b.Bids, depth)
}

// AskAt returns the ask level at the given depth (1-based), falling back to
// the deepest available level when the book is thinner than requested.
func (b Book) AskAt(depth int) (BookLevel, error) {
	return levelAt(b.Asks, depth)
}

func levelAt(side []BookLevel, depth int) (BookLevel, error) {
	if len(side) == 0 {
		return BookLevel{}, errors.New("order book side is empty")
	}
	if depth < 1 {
		depth = 1
	}
	if depth > len(side) {
		depth = len(side)
	}
	return side[depth-1], nil
}

// MarketSnapshot is the latest depth view for one instrument pair: the spot
// book and the paired future book taken together. Timestamps are
// monotonically non-decreasing per pair.
type MarketSnapshot struct {
	Pair   InstrumentPair
	Spot   Book
	Future Book
	// ExpiryDays days until the future contract settles.
	ExpiryDays int
	Timestamp  time.Time
}

// Age returns how old the snapshot is relative to now.
func (s *MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
