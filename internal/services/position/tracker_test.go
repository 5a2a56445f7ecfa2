package position

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/basisalpha/basisbot/internal/domain"
)

var btc = domain.InstrumentPair{Currency: "BTC", SpotSymbol: "BTC-USDT", FutureSymbol: "BTC-USD-27MAR26"}
var eth = domain.InstrumentPair{Currency: "ETH", SpotSymbol: "ETH-USDT", FutureSymbol: "ETH-USD-27MAR26"}

func TestTrackerWorkLease(t *testing.T) {
	tracker := NewTracker()

	require.NoError(t, tracker.Begin("BTC"))
	require.True(t, tracker.Busy("BTC"))

	err := tracker.Begin("BTC")
	require.True(t, errors.Is(err, domain.ErrPairBusy))

	// other pairs are unaffected
	require.NoError(t, tracker.Begin("ETH"))

	tracker.Finish("BTC")
	require.False(t, tracker.Busy("BTC"))
	require.NoError(t, tracker.Begin("BTC"))
}

func TestTrackerRecordOpen(t *testing.T) {
	tracker := NewTracker()

	err := tracker.RecordOpen(btc, decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(10), time.Now())
	require.NoError(t, err)
	require.True(t, tracker.Has("BTC"))
	require.Equal(t, 1, tracker.Count())

	// one position per pair
	err = tracker.RecordOpen(btc, decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(10), time.Now())
	require.True(t, errors.Is(err, domain.ErrPositionLimit))
}

func TestTrackerRecordOpenRejectsOneSided(t *testing.T) {
	tracker := NewTracker()

	err := tracker.RecordOpen(btc, decimal.Zero, decimal.NewFromInt(1), decimal.Zero, time.Now())
	require.Error(t, err)
	require.False(t, tracker.Has("BTC"))

	err = tracker.RecordOpen(btc, decimal.NewFromInt(1), decimal.Zero, decimal.Zero, time.Now())
	require.Error(t, err)
	require.False(t, tracker.Has("BTC"))
}

func TestTrackerReduce(t *testing.T) {
	tracker := NewTracker()
	require.NoError(t, tracker.RecordOpen(btc, decimal.NewFromInt(10), decimal.NewFromInt(5), decimal.Zero, time.Now()))

	tracker.Reduce("BTC", decimal.NewFromInt(4), decimal.NewFromInt(2))

	pos, ok := tracker.Get("BTC")
	require.True(t, ok)
	require.Equal(t, "6", pos.SpotSize.String())
	require.Equal(t, "3", pos.FutureSize.String())

	// either leg reaching zero removes the whole hedge
	tracker.Reduce("BTC", decimal.NewFromInt(1), decimal.NewFromInt(3))
	require.False(t, tracker.Has("BTC"))
}

func TestTrackerResyncReplacesState(t *testing.T) {
	tracker := NewTracker()
	now := time.Now()
	require.NoError(t, tracker.RecordOpen(btc, decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(12), now))
	require.NoError(t, tracker.RecordOpen(eth, decimal.NewFromInt(2), decimal.NewFromInt(2), decimal.NewFromInt(8), now))

	pairs := map[string]domain.InstrumentPair{"BTC": btc, "ETH": eth}
	tracker.Resync(domain.AccountSnapshot{
		Positions: map[string]domain.PositionSnapshot{
			"BTC": {Currency: "BTC", SpotSize: decimal.NewFromInt(3), FutureSize: decimal.NewFromInt(3)},
		},
		Timestamp: now,
	}, pairs)

	// ETH was not reported by the venue and is gone
	require.False(t, tracker.Has("ETH"))

	// BTC sizes follow the snapshot, entry yield survives the resync
	pos, ok := tracker.Get("BTC")
	require.True(t, ok)
	require.Equal(t, "3", pos.SpotSize.String())
	require.Equal(t, "12", pos.EntryYield.String())
}

func TestTrackerResyncSkipsBusyPairs(t *testing.T) {
	tracker := NewTracker()
	now := time.Now()
	require.NoError(t, tracker.RecordOpen(btc, decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero, now))
	require.NoError(t, tracker.Begin("BTC"))

	tracker.Resync(domain.AccountSnapshot{
		Positions: map[string]domain.PositionSnapshot{},
		Timestamp: now,
	}, map[string]domain.InstrumentPair{"BTC": btc})

	// an in-flight pair settles against the state it started from
	require.True(t, tracker.Has("BTC"))

	tracker.Finish("BTC")
	tracker.Resync(domain.AccountSnapshot{
		Positions: map[string]domain.PositionSnapshot{},
		Timestamp: now,
	}, map[string]domain.InstrumentPair{"BTC": btc})
	require.False(t, tracker.Has("BTC"))
}

func TestTrackerResyncIgnoresUnknownAndFlatPairs(t *testing.T) {
	tracker := NewTracker()
	now := time.Now()

	tracker.Resync(domain.AccountSnapshot{
		Positions: map[string]domain.PositionSnapshot{
			"DOGE": {Currency: "DOGE", SpotSize: decimal.NewFromInt(1), FutureSize: decimal.NewFromInt(1)},
			"BTC":  {Currency: "BTC", SpotSize: decimal.Zero, FutureSize: decimal.NewFromInt(1)},
		},
		Timestamp: now,
	}, map[string]domain.InstrumentPair{"BTC": btc})

	require.Equal(t, 0, tracker.Count())
}
