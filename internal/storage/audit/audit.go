// Package audit records every terminal LegPair outcome for offline review.
// The engine only emits records; nothing here is queried on the hot path.
package audit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/basisalpha/basisbot/internal/domain"
)

// Record is one terminal LegPair outcome.
type Record struct {
	LegPairID  string           `json:"leg_pair_id"`
	Account    string           `json:"account"`
	Currency   string           `json:"currency"`
	Spot       string           `json:"spot"`
	Future     string           `json:"future"`
	Intent     domain.Intent    `json:"intent"`
	Outcome    domain.PairState `json:"outcome"`
	EntryYield decimal.Decimal  `json:"entry_yield"`

	SpotState      domain.LegState `json:"spot_state"`
	SpotFilledSize decimal.Decimal `json:"spot_filled_size"`
	SpotPrice      decimal.Decimal `json:"spot_price"`
	FutureState    domain.LegState `json:"future_state"`
	FutureFilled   decimal.Decimal `json:"future_filled_size"`
	FuturePrice    decimal.Decimal `json:"future_price"`

	CreatedAt time.Time `json:"created_at"`
	SettledAt time.Time `json:"settled_at"`
}

// NewRecord builds an audit record from a settled LegPair.
func NewRecord(account string, lp *domain.LegPair) Record {
	return Record{
		LegPairID:      lp.ID,
		Account:        account,
		Currency:       lp.Pair.Currency,
		Spot:           lp.Pair.SpotSymbol,
		Future:         lp.Pair.FutureSymbol,
		Intent:         lp.Intent,
		Outcome:        lp.State,
		EntryYield:     lp.EntryYield,
		SpotState:      lp.Spot.State,
		SpotFilledSize: lp.Spot.FilledSize,
		SpotPrice:      lp.Spot.NormalizedPrice,
		FutureState:    lp.Future.State,
		FutureFilled:   lp.Future.FilledSize,
		FuturePrice:    lp.Future.NormalizedPrice,
		CreatedAt:      lp.CreatedAt,
		SettledAt:      lp.SettledAt,
	}
}

// Sink receives terminal LegPair records.
type Sink interface {
	Save(record Record) error
	Close() error
}

// NopSink discards records; used when no audit backend is configured.
type NopSink struct{}

func (NopSink) Save(Record) error { return nil }
func (NopSink) Close() error      { return nil }

// MultiSink fans one record out to several backends.
type MultiSink []Sink

// Save writes the record to every backend, returning the first error.
func (m MultiSink) Save(record Record) error {
	var firstErr error
	for _, s := range m {
		if err := s.Save(record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every backend.
func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
