package admission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/services/position"
)

func pair(currency string) domain.InstrumentPair {
	return domain.InstrumentPair{
		Currency:     currency,
		SpotSymbol:   currency + "-USDT",
		FutureSymbol: currency + "-USD-27MAR26",
	}
}

func entry(currency, yield string, expiryDays int) domain.YieldEntry {
	return domain.YieldEntry{
		Pair:       pair(currency),
		Yield:      decimal.RequireFromString(yield),
		ExpiryDays: expiryDays,
		Timestamp:  time.Now(),
	}
}

func testLimits() Limits {
	return Limits{
		PerOrderUSD:   decimal.NewFromInt(100),
		MaxPositions:  3,
		OpenYieldPct:  decimal.NewFromInt(20),
		MinExpiryDays: 30,
	}
}

func enabled(balance int64) domain.AccountState {
	return domain.AccountState{
		QuoteBalance: decimal.NewFromInt(balance),
		Enabled:      true,
		SyncedAt:     time.Now(),
	}
}

func TestAdmitDisabledAccount(t *testing.T) {
	gate := NewGate("test", position.NewTracker(), testLimits(), zap.NewNop())

	acct := enabled(1000)
	acct.Enabled = false

	admitted := gate.Admit([]domain.YieldEntry{entry("BTC", "30", 90)}, acct)
	require.Empty(t, admitted)
}

func TestAdmitRespectsRankingOrderUnderBalance(t *testing.T) {
	gate := NewGate("test", position.NewTracker(), testLimits(), zap.NewNop())

	// balance covers exactly one order; the best-ranked candidate gets it
	admitted := gate.Admit([]domain.YieldEntry{
		entry("BTC", "30", 90),
		entry("ETH", "25", 90),
	}, enabled(150))

	require.Len(t, admitted, 1)
	require.Equal(t, "BTC", admitted[0].Pair.Currency)
}

func TestAdmitDecrementsBalancePerAdmission(t *testing.T) {
	gate := NewGate("test", position.NewTracker(), testLimits(), zap.NewNop())

	admitted := gate.Admit([]domain.YieldEntry{
		entry("BTC", "30", 90),
		entry("ETH", "25", 90),
		entry("SOL", "22", 90),
	}, enabled(250))

	require.Len(t, admitted, 2)
	require.Equal(t, "BTC", admitted[0].Pair.Currency)
	require.Equal(t, "ETH", admitted[1].Pair.Currency)
}

func TestAdmitYieldThreshold(t *testing.T) {
	gate := NewGate("test", position.NewTracker(), testLimits(), zap.NewNop())

	admitted := gate.Admit([]domain.YieldEntry{
		entry("BTC", "19.9999", 90),
		entry("ETH", "20", 90),
	}, enabled(1000))

	require.Len(t, admitted, 1)
	require.Equal(t, "ETH", admitted[0].Pair.Currency)
}

func TestAdmitNearExpiry(t *testing.T) {
	gate := NewGate("test", position.NewTracker(), testLimits(), zap.NewNop())

	admitted := gate.Admit([]domain.YieldEntry{
		entry("BTC", "30", 29),
		entry("ETH", "25", 30),
	}, enabled(1000))

	require.Len(t, admitted, 1)
	require.Equal(t, "ETH", admitted[0].Pair.Currency)
}

func TestAdmitPositionLimitCountsAdmissions(t *testing.T) {
	tracker := position.NewTracker()
	require.NoError(t, tracker.RecordOpen(pair("XRP"), decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero, time.Now()))

	gate := NewGate("test", tracker, testLimits(), zap.NewNop())

	// one open position plus two admissions hits MaxPositions of three
	admitted := gate.Admit([]domain.YieldEntry{
		entry("BTC", "30", 90),
		entry("ETH", "28", 90),
		entry("SOL", "26", 90),
	}, enabled(10000))

	require.Len(t, admitted, 2)
}

func TestAdmitSkipsOpenAndBusyPairs(t *testing.T) {
	tracker := position.NewTracker()
	require.NoError(t, tracker.RecordOpen(pair("BTC"), decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero, time.Now()))
	require.NoError(t, tracker.Begin("ETH"))

	gate := NewGate("test", tracker, testLimits(), zap.NewNop())

	admitted := gate.Admit([]domain.YieldEntry{
		entry("BTC", "30", 90),
		entry("ETH", "28", 90),
		entry("SOL", "26", 90),
	}, enabled(10000))

	require.Len(t, admitted, 1)
	require.Equal(t, "SOL", admitted[0].Pair.Currency)
}
