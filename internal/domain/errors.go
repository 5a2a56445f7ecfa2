package domain

import "github.com/pkg/errors"

// Error kinds shared across the engine. Admission errors mark candidates
// skipped for a cycle, not failures. ErrPartialFillMismatch is the one class
// that must always be resolved: it triggers mandatory reconciliation.
var (
	ErrStaleData           = errors.New("market snapshot is stale")
	ErrInsufficientBalance = errors.New("insufficient quote balance")
	ErrPositionLimit       = errors.New("position limit exceeded")
	ErrYieldBelowThreshold = errors.New("yield below open threshold")
	ErrNearExpiry          = errors.New("future contract too close to expiry")
	ErrStrategyDisabled    = errors.New("strategy is disabled")
	ErrPairBusy            = errors.New("instrument pair has a leg pair in flight")
	ErrPrecision           = errors.New("malformed tick or lot size")
	ErrLegRejected         = errors.New("exchange rejected leg submission")
	ErrLegTimeout          = errors.New("leg not filled within timeout")
	ErrPartialFillMismatch = errors.New("one leg filled, the other did not")
	ErrConnectivity        = errors.New("collaborator connection lost")
)
