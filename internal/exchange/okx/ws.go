package okx

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/config"
	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
)

const (
	wsReadTimeout = 30 * time.Second
	wsPingPeriod  = 15 * time.Second
)

type wsMessage struct {
	Event string `json:"event,omitempty"`
	Code  string `json:"code,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []json.RawMessage `json:"data"`
}

type bookData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	TS   string     `json:"ts"`
}

type orderData struct {
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	InstID    string `json:"instId"`
	State     string `json:"state"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
}

type accountData struct {
	Details []struct {
		Ccy     string `json:"ccy"`
		AvailEq string `json:"availEq"`
	} `json:"details"`
}

type positionData struct {
	InstID string `json:"instId"`
	Pos    string `json:"pos"`
}

// runPublic maintains the public session subscribed to depth for every
// tracked instrument.
func (c *Client) runPublic(ctx context.Context) {
	c.runSession(ctx, c.cfg.PublicWSURL, false, func(conn *websocket.Conn) error {
		var args []map[string]string
		for _, p := range c.pairs {
			args = append(args,
				map[string]string{"channel": "books5", "instId": p.Spot},
				map[string]string{"channel": "books5", "instId": p.Future})
		}
		return conn.WriteJSON(map[string]any{"op": "subscribe", "args": args})
	}, c.handlePublic, &c.publicUp)
}

// runPrivate maintains the authenticated session for order and account
// updates.
func (c *Client) runPrivate(ctx context.Context) {
	c.runSession(ctx, c.cfg.PrivateWSURL, true, func(conn *websocket.Conn) error {
		return conn.WriteJSON(map[string]any{"op": "subscribe", "args": []map[string]string{
			{"channel": "orders", "instType": "ANY"},
			{"channel": "account"},
			{"channel": "positions", "instType": "FUTURES"},
		}})
	}, c.handlePrivate, &c.privateUp)
}

// runSession dials, authenticates (when private), subscribes, and pumps
// messages until failure, then reconnects with backoff.
func (c *Client) runSession(ctx context.Context, url string, private bool,
	subscribe func(*websocket.Conn) error, handle func(wsMessage), up interface{ Store(bool) }) {

	retry := &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true}

	for ctx.Err() == nil {
		err := c.session(ctx, url, private, subscribe, handle, up)
		up.Store(false)
		if ctx.Err() != nil {
			return
		}

		wait := retry.Duration()
		c.logger.Warn("websocket session ended, reconnecting",
			zap.String("url", url), zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Client) session(ctx context.Context, url string, private bool,
	subscribe func(*websocket.Conn) error, handle func(wsMessage), up interface{ Store(bool) }) error {

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if private {
		if err := c.login(conn); err != nil {
			return err
		}
	}
	if err := subscribe(conn); err != nil {
		return err
	}
	up.Store(true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "pong" {
			continue
		}

		var msg wsMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("undecodable websocket message", zap.Error(err))
			continue
		}
		if msg.Event == "error" {
			c.logger.Error("websocket error event", zap.String("code", msg.Code), zap.String("msg", msg.Msg))
			continue
		}
		if msg.Event != "" || len(msg.Data) == 0 {
			continue
		}
		handle(msg)
	}
}

// login authenticates the connection and blocks until the venue
// acknowledges. Subscribing before the ack lands fails silently on OKX, so
// the session must not proceed without it.
func (c *Client) login(conn *websocket.Conn) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	err := conn.WriteJSON(map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     c.cfg.APIKey,
			"passphrase": c.cfg.Passphrase,
			"timestamp":  ts,
			"sign":       sign(c.cfg.APISecret, ts+"GET"+"/users/self/verify"),
		}},
	})
	if err != nil {
		return err
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "read login response")
	}

	var msg wsMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return errors.Wrap(err, "decode login response")
	}
	if msg.Event != "login" || msg.Code != "0" {
		return errors.Errorf("okx login rejected: code=%s msg=%s", msg.Code, msg.Msg)
	}
	return nil
}

func (c *Client) handlePublic(msg wsMessage) {
	if msg.Arg.Channel != "books5" {
		return
	}
	pair, tracked := c.pairForInstrument(msg.Arg.InstID)
	if !tracked {
		return
	}

	for _, raw := range msg.Data {
		var book bookData
		if err := sonic.Unmarshal(raw, &book); err != nil {
			continue
		}
		c.applyBook(pair, msg.Arg.InstID, book)
	}
}

// applyBook stores one instrument's depth and, once both halves of the pair
// are present, emits a combined snapshot.
func (c *Client) applyBook(pair config.PairSpec, instID string, data bookData) {
	ms, _ := strconv.ParseInt(data.TS, 10, 64)
	ts := time.UnixMilli(ms)

	c.mu.Lock()
	c.books[instID] = domain.Book{
		Bids: parseLevels(data.Bids),
		Asks: parseLevels(data.Asks),
	}

	spot, hasSpot := c.books[pair.Spot]
	future, hasFuture := c.books[pair.Future]
	meta, hasMeta := c.pairMeta[pair.Currency]
	c.mu.Unlock()

	if !hasSpot || !hasFuture || !hasMeta {
		return
	}

	snap := &domain.MarketSnapshot{
		Pair:       meta,
		Spot:       spot,
		Future:     future,
		ExpiryDays: futureExpiryDays(pair.Future, ts),
		Timestamp:  ts,
	}

	select {
	case c.snapshots <- snap:
	default:
		c.logger.Debug("snapshot feed full, dropping", zap.String("pair", meta.String()))
	}
}

func (c *Client) handlePrivate(msg wsMessage) {
	switch msg.Arg.Channel {
	case "orders":
		for _, raw := range msg.Data {
			var od orderData
			if err := sonic.Unmarshal(raw, &od); err != nil {
				continue
			}
			c.emitFill(od)
		}
	case "account":
		for _, raw := range msg.Data {
			var ad accountData
			if err := sonic.Unmarshal(raw, &ad); err != nil {
				continue
			}
			c.applyAccount(ad)
		}
	case "positions":
		for _, raw := range msg.Data {
			var pd positionData
			if err := sonic.Unmarshal(raw, &pd); err != nil {
				continue
			}
			c.applyPosition(pd)
		}
	}
}

func (c *Client) emitFill(od orderData) {
	clientID := od.ClOrdID
	if orig, ok := c.clords.Load(od.ClOrdID); ok {
		clientID = orig.(string)
	}

	fill := exchange.Fill{
		OrderID:       od.OrdID,
		ClientOrderID: clientID,
		Instrument:    od.InstID,
		State:         legState(od.State),
		FilledSize:    parseDecimal(od.AccFillSz),
		AvgPrice:      parseDecimal(od.AvgPx),
	}
	if fill.State.Terminal() {
		c.clords.Delete(od.ClOrdID)
	}

	select {
	case c.fills <- fill:
	default:
		c.logger.Warn("fill feed full, dropping update", zap.String("order_id", od.OrdID))
	}
}

// applyAccount refreshes the cached balance view and pushes a combined
// account snapshot downstream.
func (c *Client) applyAccount(ad accountData) {
	c.mu.Lock()
	for _, d := range ad.Details {
		if d.Ccy == "USDT" {
			c.lastBalance = parseDecimal(d.AvailEq)
		} else if ps, ok := c.lastPositions[d.Ccy]; ok {
			ps.SpotSize = parseDecimal(d.AvailEq)
			c.lastPositions[d.Ccy] = ps
		}
	}
	c.mu.Unlock()
	c.pushAccountSnapshot()
}

func (c *Client) applyPosition(pd positionData) {
	pair, tracked := c.pairForInstrument(pd.InstID)
	if !tracked {
		return
	}

	c.mu.Lock()
	ps := c.lastPositions[pair.Currency]
	ps.Currency = pair.Currency
	ps.FutureSize = parseDecimal(pd.Pos).Abs()
	c.lastPositions[pair.Currency] = ps
	c.mu.Unlock()
	c.pushAccountSnapshot()
}

func (c *Client) pushAccountSnapshot() {
	c.mu.Lock()
	snap := domain.AccountSnapshot{
		QuoteBalance: c.lastBalance,
		Positions:    make(map[string]domain.PositionSnapshot, len(c.lastPositions)),
		Timestamp:    time.Now(),
	}
	for k, v := range c.lastPositions {
		snap.Positions[k] = v
	}
	c.mu.Unlock()

	select {
	case c.accounts <- snap:
	default:
	}
}

func parseLevels(raw [][]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		levels = append(levels, domain.BookLevel{
			Price: parseDecimal(l[0]),
			Size:  parseDecimal(l[1]),
		})
	}
	return levels
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func legState(state string) domain.LegState {
	switch state {
	case "filled":
		return domain.LegFilled
	case "partially_filled":
		return domain.LegPartiallyFilled
	case "canceled", "mmp_canceled":
		return domain.LegCancelled
	case "rejected":
		return domain.LegRejected
	}
	return domain.LegPending
}
