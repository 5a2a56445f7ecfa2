package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

// YieldEntry is one row of the annualized-yield ranking. Entries are
// recomputed from snapshots on every ranking pass, never cached across passes.
type YieldEntry struct {
	Pair        InstrumentPair
	Yield       decimal.Decimal
	SpotPrice   decimal.Decimal
	FuturePrice decimal.Decimal
	ExpiryDays  int
	Timestamp   time.Time
}

// AnnualizedYield computes the annualized basis yield in percent:
//
//	(future - spot) / spot / expiryDays * 365 * 100
//
// Returns zero when spot price or expiry days are non-positive.
func AnnualizedYield(spot, future decimal.Decimal, expiryDays int) decimal.Decimal {
	if spot.LessThanOrEqual(decimal.Zero) || expiryDays <= 0 {
		return decimal.Zero
	}
	// multiply first and divide once, so decimal truncation cannot
	// compound across intermediate quotients
	return future.Sub(spot).
		Mul(daysPerYear).
		Mul(hundred).
		Div(spot.Mul(decimal.NewFromInt(int64(expiryDays))))
}
