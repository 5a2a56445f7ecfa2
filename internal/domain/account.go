package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountState is the strategy instance's view of its account. Owned by
// exactly one instance; mutated only by the executor (on fill) and by the
// account feed (on resync, latest snapshot wins).
type AccountState struct {
	// QuoteBalance available spot balance in the quote currency (USDT).
	QuoteBalance decimal.Decimal
	// Enabled strategy-enable flag for this account.
	Enabled bool
	// SyncedAt when the state was last replaced by an account feed snapshot.
	SyncedAt time.Time
}

// AccountSnapshot is what the external account feed pushes. The latest
// snapshot is authoritative and replaces local state wholesale.
type AccountSnapshot struct {
	QuoteBalance decimal.Decimal
	// Positions hedge sizes per currency as the venue reports them.
	Positions map[string]PositionSnapshot
	Timestamp time.Time
}

// PositionSnapshot is one venue-reported hedge in an account snapshot.
type PositionSnapshot struct {
	Currency   string
	SpotSize   decimal.Decimal
	FutureSize decimal.Decimal
}
