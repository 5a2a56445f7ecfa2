// Package exchange defines the collaborator boundary to the venue: market
// data, account state, and order execution. The engine only depends on these
// interfaces; adapters live in subpackages.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/basisalpha/basisbot/internal/domain"
)

// OrderType distinguishes passive from aggressive placement.
type OrderType string

const (
	// OrderTypeLimit resting limit order, possibly priced beyond market so
	// it fills immediately against existing liquidity.
	OrderTypeLimit OrderType = "limit"
	// OrderTypeMarket aggressive order consuming the book at best price.
	OrderTypeMarket OrderType = "market"
)

// OrderRequest is one leg submission.
type OrderRequest struct {
	Instrument    string
	ClientOrderID string
	Direction     domain.Direction
	Type          OrderType
	Price         decimal.Decimal
	Size          decimal.Decimal
	// PostOnly makes the order maker-only; the venue rejects it instead of
	// crossing the book.
	PostOnly bool
	// ReduceOnly restricts the order to closing existing exposure.
	ReduceOnly bool
}

// Fill is an asynchronous order update pushed by the venue, keyed by the
// client order id the leg was submitted with.
type Fill struct {
	OrderID       string
	ClientOrderID string
	Instrument    string
	State         domain.LegState
	FilledSize    decimal.Decimal
	AvgPrice      decimal.Decimal
}

// OrderGateway submits and cancels orders and streams fill updates.
type OrderGateway interface {
	// SubmitOrder places the order and returns the exchange order id once
	// acknowledged.
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, instrument, orderID string) error
	// Fills streams order updates for every order this gateway submitted.
	Fills() <-chan Fill
}

// MarketFeed pushes depth snapshots per instrument pair. The stream is
// unbounded and non-restartable from the engine's point of view.
type MarketFeed interface {
	Snapshots() <-chan *domain.MarketSnapshot
}

// AccountFeed pushes balance and position snapshots. The latest snapshot is
// authoritative.
type AccountFeed interface {
	Snapshots() <-chan domain.AccountSnapshot
}

// Health reports collaborator connectivity. While unhealthy the engine
// degrades to "no new opens"; reconciliation work continues on last-known
// state.
type Health interface {
	Healthy() bool
}
