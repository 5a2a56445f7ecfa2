// Package admission decides whether capital may be committed to a new hedge.
package admission

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/basisalpha/basisbot/internal/domain"
	"github.com/basisalpha/basisbot/internal/metrics"
	"github.com/basisalpha/basisbot/internal/services/position"
)

// Limits are the admission-control knobs for one strategy instance.
type Limits struct {
	PerOrderUSD   decimal.Decimal
	MaxPositions  int
	OpenYieldPct  decimal.Decimal
	MinExpiryDays int
}

// Gate applies the open-side checks to ranked candidates. Checks run in
// order and short-circuit on the first failure; failing candidates are
// skipped until the next cycle, never retried within one.
type Gate struct {
	account string
	tracker *position.Tracker
	limits  Limits
	logger  *zap.Logger
}

// NewGate creates a Gate for one account.
func NewGate(account string, tracker *position.Tracker, limits Limits, logger *zap.Logger) *Gate {
	return &Gate{account: account, tracker: tracker, limits: limits, logger: logger}
}

// Admit filters ranked candidates down to the ones allowed to open this
// cycle, preserving ranking order. Admission stops once the account-level
// position limit would be reached.
func (g *Gate) Admit(entries []domain.YieldEntry, acct domain.AccountState) []domain.YieldEntry {
	if !acct.Enabled {
		g.skip(domain.ErrStrategyDisabled, nil)
		return nil
	}

	open := g.tracker.Count()
	balance := acct.QuoteBalance

	var admitted []domain.YieldEntry
	for i := range entries {
		entry := entries[i]
		if open+len(admitted) >= g.limits.MaxPositions {
			g.skip(domain.ErrPositionLimit, &entry)
			break
		}
		if err := g.check(entry, balance); err != nil {
			g.skip(err, &entry)
			continue
		}
		admitted = append(admitted, entry)
		balance = balance.Sub(g.limits.PerOrderUSD)
	}
	return admitted
}

func (g *Gate) check(entry domain.YieldEntry, balance decimal.Decimal) error {
	if balance.LessThan(g.limits.PerOrderUSD) {
		return domain.ErrInsufficientBalance
	}
	if entry.ExpiryDays < g.limits.MinExpiryDays {
		return domain.ErrNearExpiry
	}
	if g.tracker.Has(entry.Pair.Key()) || g.tracker.Busy(entry.Pair.Key()) {
		return domain.ErrPairBusy
	}
	if entry.Yield.LessThan(g.limits.OpenYieldPct) {
		return domain.ErrYieldBelowThreshold
	}
	return nil
}

// skip logs the admission skip. Skips are expected steady-state, not errors.
func (g *Gate) skip(reason error, entry *domain.YieldEntry) {
	metrics.AdmissionSkips.WithLabelValues(g.account, reasonLabel(reason)).Inc()
	fields := []zap.Field{zap.String("reason", reason.Error())}
	if entry != nil {
		fields = append(fields,
			zap.String("pair", entry.Pair.String()),
			zap.String("yield", entry.Yield.StringFixed(4)))
	}
	g.logger.Debug("open candidate skipped", fields...)
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrStrategyDisabled):
		return "disabled"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, domain.ErrNearExpiry):
		return "near_expiry"
	case errors.Is(err, domain.ErrPairBusy):
		return "pair_busy"
	case errors.Is(err, domain.ErrPositionLimit):
		return "position_limit"
	case errors.Is(err, domain.ErrYieldBelowThreshold):
		return "yield"
	}
	return "other"
}
