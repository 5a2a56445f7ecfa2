// Package notify delivers operator alerts for events that need human eyes:
// reconciliations, rejected submissions, degraded mode.
package notify

import "context"

// Notifier sends one operator-facing message. Implementations must not block
// the trading path; failures are logged by callers, never retried inline.
type Notifier interface {
	Alert(ctx context.Context, text string) error
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Alert(context.Context, string) error { return nil }
