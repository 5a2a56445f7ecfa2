// Package domain defines the core data structures of the arbitrage engine.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentPair binds a spot symbol to its coin-margined future contract.
// Tick and lot sizes come from the latest market snapshot, not static config:
// the venue can change them.
type InstrumentPair struct {
	// Currency base currency symbol, e.g. "BTC".
	Currency string
	// SpotSymbol spot instrument name, e.g. "BTC-USDT".
	SpotSymbol string
	// FutureSymbol future instrument name, e.g. "BTC-USD-27MAR26".
	FutureSymbol string

	SpotTick   decimal.Decimal
	SpotLot    decimal.Decimal
	FutureTick decimal.Decimal
	FutureLot  decimal.Decimal
}

// String returns the string representation.
func (p InstrumentPair) String() string {
	return fmt.Sprintf("%s/%s", p.SpotSymbol, p.FutureSymbol)
}

// Key identifies the pair for map lookups and deterministic ordering.
func (p InstrumentPair) Key() string {
	return p.Currency
}
