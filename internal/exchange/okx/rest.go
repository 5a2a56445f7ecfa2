package okx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/exchange"
)

type orderRequest struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	ClOrdID    string `json:"clOrdId"`
	Side       string `json:"side"`
	OrdType    string `json:"ordType"`
	Px         string `json:"px,omitempty"`
	Sz         string `json:"sz"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
}

type orderResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		OrdID   string `json:"ordId"`
		ClOrdID string `json:"clOrdId"`
		SCode   string `json:"sCode"`
		SMsg    string `json:"sMsg"`
	} `json:"data"`
}

type instrumentsResponse struct {
	Code string `json:"code"`
	Data []struct {
		InstID string `json:"instId"`
		TickSz string `json:"tickSz"`
		LotSz  string `json:"lotSz"`
		CtVal  string `json:"ctVal"`
	} `json:"data"`
}

// SubmitOrder places one leg and returns the venue order id.
func (c *Client) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	body := orderRequest{
		InstID:     req.Instrument,
		TdMode:     tdMode(req.Instrument),
		ClOrdID:    clOrdID(req.ClientOrderID),
		Side:       req.Direction.String(),
		OrdType:    ordType(req),
		Sz:         req.Size.String(),
		ReduceOnly: req.ReduceOnly,
	}
	if req.Type == exchange.OrderTypeLimit {
		body.Px = req.Price.String()
	}

	c.clords.Store(body.ClOrdID, req.ClientOrderID)

	var resp orderResponse
	if err := c.call(ctx, http.MethodPost, "/api/v5/trade/order", body, &resp); err != nil {
		return "", err
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return "", errors.Errorf("okx rejected order: code=%s msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data[0].SCode != "0" {
		return "", errors.Errorf("okx rejected order: sCode=%s sMsg=%s", resp.Data[0].SCode, resp.Data[0].SMsg)
	}
	return resp.Data[0].OrdID, nil
}

// CancelOrder revokes a live order.
func (c *Client) CancelOrder(ctx context.Context, instrument, orderID string) error {
	body := map[string]string{"instId": instrument, "ordId": orderID}

	var resp orderResponse
	if err := c.call(ctx, http.MethodPost, "/api/v5/trade/cancel-order", body, &resp); err != nil {
		return err
	}
	if resp.Code != "0" {
		return errors.Errorf("okx cancel failed: code=%s msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// loadInstrumentMeta fetches tick/lot rules for every tracked instrument and
// bakes them into the pair metadata attached to outgoing snapshots.
func (c *Client) loadInstrumentMeta(ctx context.Context) error {
	ticks := make(map[string]decimal.Decimal)
	lots := make(map[string]decimal.Decimal)

	for _, instType := range []string{"SPOT", "FUTURES"} {
		var resp instrumentsResponse
		if err := c.call(ctx, http.MethodGet, "/api/v5/public/instruments?instType="+instType, nil, &resp); err != nil {
			return errors.Wrapf(err, "fetch %s instruments", instType)
		}
		if resp.Code != "0" {
			return errors.Errorf("instruments request failed: code=%s", resp.Code)
		}
		for _, inst := range resp.Data {
			tick, err := decimal.NewFromString(inst.TickSz)
			if err != nil {
				continue
			}
			// futures are sized in contracts; lot is the contract step
			lotRaw := inst.LotSz
			if instType == "FUTURES" && inst.CtVal != "" {
				lotRaw = inst.CtVal
			}
			lot, err := decimal.NewFromString(lotRaw)
			if err != nil {
				continue
			}
			ticks[inst.InstID] = tick
			lots[inst.InstID] = lot
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pairs {
		spotTick, ok1 := ticks[p.Spot]
		futureTick, ok2 := ticks[p.Future]
		if !ok1 || !ok2 {
			return errors.Errorf("no venue metadata for pair %s/%s", p.Spot, p.Future)
		}
		c.pairMeta[p.Currency] = domain.InstrumentPair{
			Currency:     p.Currency,
			SpotSymbol:   p.Spot,
			FutureSymbol: p.Future,
			SpotTick:     spotTick,
			SpotLot:      lots[p.Spot],
			FutureTick:   futureTick,
			FutureLot:    lots[p.Future],
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = sonic.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RESTBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", sign(c.cfg.APISecret, ts+method+path+string(payload)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	if c.cfg.Testnet {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(domain.ErrConnectivity, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(domain.ErrConnectivity, err.Error())
	}
	return errors.Wrap(sonic.Unmarshal(raw, out), "decode response")
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ordType(req exchange.OrderRequest) string {
	if req.Type == exchange.OrderTypeMarket {
		return "market"
	}
	if req.PostOnly {
		return "post_only"
	}
	return "limit"
}

func tdMode(instrument string) string {
	// coin-margined futures trade cross-margin; spot trades cash
	if strings.Count(instrument, "-") > 1 {
		return "cross"
	}
	return "cash"
}

// clOrdID squeezes a client order id into OKX's 32-char alphanumeric limit.
func clOrdID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 32 {
		return id[:32]
	}
	return id
}
