package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegSide identifies which instrument of the hedge the leg trades.
type LegSide int

const (
	LegSideSpot LegSide = iota
	LegSideFuture
)

// String returns the string representation.
func (s LegSide) String() string {
	if s == LegSideFuture {
		return "future"
	}
	return "spot"
}

// Direction is the order direction of a leg.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

// String returns the string representation.
func (d Direction) String() string {
	if d == DirectionSell {
		return "sell"
	}
	return "buy"
}

// Opposite returns the unwind direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// LegState is the fill state of a single leg.
type LegState string

const (
	LegPending         LegState = "pending"
	LegPartiallyFilled LegState = "partially_filled"
	LegFilled          LegState = "filled"
	LegCancelled       LegState = "cancelled"
	LegRejected        LegState = "rejected"
)

// Terminal reports whether the leg can no longer change state.
func (s LegState) Terminal() bool {
	switch s {
	case LegFilled, LegCancelled, LegRejected:
		return true
	}
	return false
}

// Leg is one side of a two-leg hedge action.
type Leg struct {
	Side      LegSide
	Direction Direction
	// Instrument the venue symbol this leg trades.
	Instrument string
	// Price requested price before precision normalization.
	Price decimal.Decimal
	// Size requested size before precision normalization.
	Size decimal.Decimal
	// NormalizedPrice price after tick rounding; what is actually submitted.
	NormalizedPrice decimal.Decimal
	// NormalizedSize size after lot truncation; what is actually submitted.
	NormalizedSize decimal.Decimal
	// OrderID exchange order id, set once the submission is acknowledged.
	OrderID string
	// ClientOrderID id generated locally before submission.
	ClientOrderID string
	State         LegState
	FilledSize    decimal.Decimal
	AvgFillPrice  decimal.Decimal
}

// Intent is what the LegPair is trying to do to the hedge.
type Intent string

const (
	IntentOpen  Intent = "open"
	IntentClose Intent = "close"
)

// PairState is the state of the two-leg protocol.
type PairState string

const (
	PairInitiated           PairState = "initiated"
	PairSpotSubmitted       PairState = "spot_submitted"
	PairBothSubmitted       PairState = "both_submitted"
	PairBothFilled          PairState = "both_filled"
	PairPartialFillMismatch PairState = "partial_fill_mismatch"
	PairReconciling         PairState = "reconciling"
	PairReconciled          PairState = "reconciled"
	PairSubmissionRejected  PairState = "submission_rejected"
)

// Terminal reports whether the LegPair has reached an end state.
func (s PairState) Terminal() bool {
	switch s {
	case PairBothFilled, PairReconciled, PairSubmissionRejected:
		return true
	}
	return false
}

// Success reports whether the LegPair completed what it intended.
func (s PairState) Success() bool {
	return s == PairBothFilled
}

// LegPair binds the spot and future legs of one open or close action.
type LegPair struct {
	ID     string
	Pair   InstrumentPair
	Intent Intent
	Spot   Leg
	Future Leg
	State  PairState
	// EntryYield yield the action was admitted at.
	EntryYield decimal.Decimal
	CreatedAt  time.Time
	SettledAt  time.Time
}
