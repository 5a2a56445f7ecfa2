// Package precision rounds prices and sizes to each instrument's tick and
// lot rules.
package precision

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/basisalpha/basisbot/internal/domain"
)

// NormalizePrice rounds a raw price to the nearest valid tick in the
// direction that keeps a beyond-market limit order resting: buys round down,
// sells round up. Idempotent: an already-normalized price is returned
// unchanged.
func NormalizePrice(raw, tick decimal.Decimal, direction domain.Direction) (decimal.Decimal, error) {
	if tick.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.Wrapf(domain.ErrPrecision, "tick size %s", tick)
	}

	steps := raw.Div(tick)
	if direction == domain.DirectionBuy {
		return steps.Floor().Mul(tick), nil
	}
	return steps.Ceil().Mul(tick), nil
}

// NormalizeSize truncates a raw size to the lot step. Never rounds up: the
// result never exceeds what the caller can afford. Idempotent.
func NormalizeSize(raw, lot decimal.Decimal) (decimal.Decimal, error) {
	if lot.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.Wrapf(domain.ErrPrecision, "lot size %s", lot)
	}
	if raw.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, nil
	}

	return raw.Div(lot).Floor().Mul(lot), nil
}
