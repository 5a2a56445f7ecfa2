package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Position is an open hedge: long spot, short future, sized consistently.
// Created on a successful two-leg open, removed on a successful two-leg
// close. At most one Position exists per instrument pair.
type Position struct {
	Pair       InstrumentPair
	SpotSize   decimal.Decimal
	FutureSize decimal.Decimal
	EntryYield decimal.Decimal
	OpenedAt   time.Time
}

// NewPosition constructs a position from two settled legs.
func NewPosition(pair InstrumentPair, spotSize, futureSize, entryYield decimal.Decimal, openedAt time.Time) (*Position, error) {
	if spotSize.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("spot leg size must be greater than zero")
	}
	if futureSize.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("future leg size must be greater than zero")
	}
	return &Position{
		Pair:       pair,
		SpotSize:   spotSize,
		FutureSize: futureSize,
		EntryYield: entryYield,
		OpenedAt:   openedAt,
	}, nil
}
