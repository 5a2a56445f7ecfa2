// Package okx adapts the OKX v5 API to the engine's collaborator
// interfaces: public depth over websocket, private order/account streams,
// and order placement over REST.
package okx

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/config"
	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
)

const (
	defaultRESTBaseURL  = "https://www.okx.com"
	defaultPublicWSURL  = "wss://ws.okx.com:8443/ws/v5/public"
	defaultPrivateWSURL = "wss://ws.okx.com:8443/ws/v5/private"

	feedBuffer = 256
)

// Client talks to OKX for one account.
type Client struct {
	cfg    config.OKX
	pairs  []config.PairSpec
	logger *zap.Logger
	httpc  *http.Client

	snapshots chan *domain.MarketSnapshot
	accounts  chan domain.AccountSnapshot
	fills     chan exchange.Fill

	publicUp  atomic.Bool
	privateUp atomic.Bool

	// clords maps venue-safe client order ids back to the engine's ids for
	// fill correlation.
	clords sync.Map

	mu    sync.Mutex
	books map[string]domain.Book
	// pairMeta instrument pairs enriched with venue tick/lot rules.
	pairMeta map[string]domain.InstrumentPair
	// lastBalance / lastPositions cache for account snapshot assembly.
	lastBalance   decimal.Decimal
	lastPositions map[string]domain.PositionSnapshot
}

// New creates a Client and loads instrument precision metadata over REST.
func New(ctx context.Context, cfg config.OKX, pairs []config.PairSpec, logger *zap.Logger) (*Client, error) {
	if cfg.RESTBaseURL == "" {
		cfg.RESTBaseURL = defaultRESTBaseURL
	}
	if cfg.PublicWSURL == "" {
		cfg.PublicWSURL = defaultPublicWSURL
	}
	if cfg.PrivateWSURL == "" {
		cfg.PrivateWSURL = defaultPrivateWSURL
	}

	c := &Client{
		cfg:    cfg,
		pairs:  pairs,
		logger: logger.With(zap.String("collaborator", "okx")),
		httpc:  &http.Client{Timeout: 10 * time.Second},

		snapshots: make(chan *domain.MarketSnapshot, feedBuffer),
		accounts:  make(chan domain.AccountSnapshot, 16),
		fills:     make(chan exchange.Fill, feedBuffer),

		books:         make(map[string]domain.Book),
		pairMeta:      make(map[string]domain.InstrumentPair),
		lastPositions: make(map[string]domain.PositionSnapshot),
	}

	if err := c.loadInstrumentMeta(ctx); err != nil {
		return nil, errors.Wrap(err, "load instrument metadata")
	}
	return c, nil
}

// Run maintains the public and private websocket sessions until the context
// is cancelled. Reconnects use exponential backoff; while either session is
// down the client reports unhealthy and the engine stops opening.
func (c *Client) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.runPublic(ctx)
	}()
	go func() {
		defer wg.Done()
		c.runPrivate(ctx)
	}()
	wg.Wait()
}

// Healthy reports whether both websocket sessions are up.
func (c *Client) Healthy() bool {
	return c.publicUp.Load() && c.privateUp.Load()
}

// Market returns the market-data feed view of this client.
func (c *Client) Market() exchange.MarketFeed { return marketFeed{c} }

// Account returns the account feed view of this client.
func (c *Client) Account() exchange.AccountFeed { return accountFeed{c} }

// Fills streams order updates for orders this client submitted.
func (c *Client) Fills() <-chan exchange.Fill { return c.fills }

type marketFeed struct{ c *Client }

func (f marketFeed) Snapshots() <-chan *domain.MarketSnapshot { return f.c.snapshots }

type accountFeed struct{ c *Client }

func (f accountFeed) Snapshots() <-chan domain.AccountSnapshot { return f.c.accounts }

// pairForInstrument resolves the tracked pair an instrument belongs to.
func (c *Client) pairForInstrument(instID string) (config.PairSpec, bool) {
	for _, p := range c.pairs {
		if p.Spot == instID || p.Future == instID {
			return p, true
		}
	}
	return config.PairSpec{}, false
}

// futureExpiryDays parses the settlement date out of an OKX future
// instrument id such as "BTC-USD-250328" and returns whole days left.
func futureExpiryDays(instID string, now time.Time) int {
	idx := strings.LastIndex(instID, "-")
	if idx < 0 || idx+1 >= len(instID) {
		return 0
	}
	expiry, err := time.Parse("060102", instID[idx+1:])
	if err != nil {
		return 0
	}
	days := int(expiry.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
