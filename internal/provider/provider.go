// Package provider defines the channel capability contract and the
// configuration-driven registry that maps channel names to instances.
package provider

import (
	"context"

	"notifyd/internal/notification"
)

// Provider implements delivery for one channel.
//
// Implementations must be stateless with respect to recipients and safe for
// concurrent use: many delivery runs share one instance.
type Provider interface {
	// Send performs one delivery attempt. It never panics and never returns
	// an unclassified failure: every outcome is captured in the
	// AttemptResult, with Err carrying a notification.Kind on failure.
	Send(ctx context.Context, rcpt notification.Recipient, msg notification.Rendered) notification.AttemptResult

	// Reachable reports whether the recipient has syntactically valid
	// contact data for this channel. Pure and side-effect free.
	Reachable(rcpt notification.Recipient) bool

	// ValidateConfig checks that the provider's settings are present and
	// well-formed. A failure carries a config or auth kind.
	ValidateConfig(ctx context.Context) error

	// Name is the stable channel identifier used in configuration ordering
	// and in report provider sets.
	Name() string
}
