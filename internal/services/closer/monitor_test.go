package closer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
	"github.com/basisalpha/basisbot/internal/notify"
	"github.com/basisalpha/basisbot/internal/services/executor"
	"github.com/basisalpha/basisbot/internal/services/market"
	"github.com/basisalpha/basisbot/internal/services/position"
	"github.com/basisalpha/basisbot/internal/storage/audit"
)

// fillingGateway acknowledges and fully fills every order.
type fillingGateway struct {
	mu       sync.Mutex
	fills    chan exchange.Fill
	requests []exchange.OrderRequest
}

func newFillingGateway() *fillingGateway {
	return &fillingGateway{fills: make(chan exchange.Fill, 32)}
}

func (g *fillingGateway) SubmitOrder(_ context.Context, req exchange.OrderRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	orderID := "ord-" + req.ClientOrderID
	g.fills <- exchange.Fill{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		Instrument:    req.Instrument,
		State:         domain.LegFilled,
		FilledSize:    req.Size,
		AvgPrice:      req.Price,
	}
	return orderID, nil
}

func (g *fillingGateway) CancelOrder(context.Context, string, string) error { return nil }

func (g *fillingGateway) Fills() <-chan exchange.Fill { return g.fills }

func (g *fillingGateway) submissions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type nopLedger struct{}

func (nopLedger) ApplySpotFill(domain.Direction, decimal.Decimal) {}

func btcPair() domain.InstrumentPair {
	return domain.InstrumentPair{
		Currency:     "BTC",
		SpotSymbol:   "BTC-USDT",
		FutureSymbol: "BTC-USD-27MAR26",
		SpotTick:     decimal.RequireFromString("0.1"),
		SpotLot:      decimal.RequireFromString("0.001"),
		FutureTick:   decimal.RequireFromString("0.1"),
		FutureLot:    decimal.NewFromInt(1),
	}
}

// btcSnapshot yields roughly 4.87% at level 1 (100 spot bid, 100.4 future ask,
// 30 days), below a 5% close threshold.
func btcSnapshot(futureAsk string, ts time.Time) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Pair: btcPair(),
		Spot: domain.Book{
			Bids: []domain.BookLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(10)}},
			Asks: []domain.BookLevel{{Price: decimal.RequireFromString("100.1"), Size: decimal.NewFromInt(10)}},
		},
		Future: domain.Book{
			Bids: []domain.BookLevel{{Price: decimal.RequireFromString("100.3"), Size: decimal.NewFromInt(10)}},
			Asks: []domain.BookLevel{{Price: decimal.RequireFromString(futureAsk), Size: decimal.NewFromInt(10)}},
		},
		ExpiryDays: 30,
		Timestamp:  ts,
	}
}

func newTestMonitor(t *testing.T, g *fillingGateway) (*Monitor, *market.SnapshotStore, *position.Tracker) {
	t.Helper()

	store := market.NewSnapshotStore(zap.NewNop())
	tracker := position.NewTracker()
	exec := executor.New(executor.Config{
		Account:     "test",
		Policy:      executor.PolicySimultaneous,
		FillTimeout: 200 * time.Millisecond,
		MaxGap:      100 * time.Millisecond,
	}, g, tracker, nopLedger{}, audit.NopSink{}, notify.Nop{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go exec.Run(ctx)

	monitor := NewMonitor(store, tracker, exec,
		1, 10*time.Second, decimal.NewFromInt(5), decimal.NewFromInt(1000), zap.NewNop())
	return monitor, store, tracker
}

func TestCycleClosesWhenYieldNarrows(t *testing.T) {
	g := newFillingGateway()
	monitor, store, tracker := newTestMonitor(t, g)

	require.NoError(t, tracker.RecordOpen(btcPair(), decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(24), time.Now()))
	store.Put(btcSnapshot("100.4", time.Now())) // ~4.87%, below the 5% threshold

	monitor.Cycle(context.Background())

	require.Equal(t, 2, g.submissions())
	require.False(t, tracker.Has("BTC"))
}

func TestCycleHoldsWhileYieldStillWide(t *testing.T) {
	g := newFillingGateway()
	monitor, store, tracker := newTestMonitor(t, g)

	require.NoError(t, tracker.RecordOpen(btcPair(), decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(24), time.Now()))
	store.Put(btcSnapshot("100.5", time.Now())) // ~6.08%, spread still wide

	monitor.Cycle(context.Background())

	require.Equal(t, 0, g.submissions())
	require.True(t, tracker.Has("BTC"))
}

func TestCycleSkipsStaleSnapshots(t *testing.T) {
	g := newFillingGateway()
	monitor, store, tracker := newTestMonitor(t, g)

	require.NoError(t, tracker.RecordOpen(btcPair(), decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(24), time.Now()))
	store.Put(btcSnapshot("100.4", time.Now().Add(-11*time.Second)))

	monitor.Cycle(context.Background())

	require.Equal(t, 0, g.submissions())
	require.True(t, tracker.Has("BTC"))
}

func TestCycleSkipsBusyPairs(t *testing.T) {
	g := newFillingGateway()
	monitor, store, tracker := newTestMonitor(t, g)

	require.NoError(t, tracker.RecordOpen(btcPair(), decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(24), time.Now()))
	store.Put(btcSnapshot("100.4", time.Now()))
	require.NoError(t, tracker.Begin("BTC"))

	monitor.Cycle(context.Background())

	require.Equal(t, 0, g.submissions())
	require.True(t, tracker.Has("BTC"))
}

func TestCycleCapsPartialCloseSize(t *testing.T) {
	g := newFillingGateway()
	monitor, store, tracker := newTestMonitor(t, g)

	// hedge larger than the per-cycle cap of 1000 USD
	require.NoError(t, tracker.RecordOpen(btcPair(), decimal.NewFromInt(50), decimal.NewFromInt(5000), decimal.NewFromInt(24), time.Now()))
	store.Put(btcSnapshot("100.4", time.Now()))

	monitor.Cycle(context.Background())

	require.Equal(t, 2, g.submissions())

	pos, ok := tracker.Get("BTC")
	require.True(t, ok)
	// 1000 USD at 100 closes 10 spot units and 1000 contracts
	require.Equal(t, "40", pos.SpotSize.String())
	require.Equal(t, "4000", pos.FutureSize.String())
}
