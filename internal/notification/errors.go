package notification

import (
	"errors"
	"fmt"
)

// Kind classifies a delivery failure for retry decisions.
//
// Permanent kinds are never retried; transient kinds consume retry budget.
type Kind uint8

const (
	KindNone Kind = iota

	// Permanent.
	KindConfig      // missing or malformed channel settings
	KindAuth        // credentials rejected by the channel
	KindUnreachable // recipient has no usable contact data for this channel

	// Transient.
	KindSend      // channel-side delivery failure
	KindRateLimit // channel throttled the request
	KindTimeout   // per-attempt deadline expired
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindUnreachable:
		return "unreachable"
	case KindSend:
		return "send"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Transient reports whether a failure of this kind may be retried.
func (k Kind) Transient() bool {
	switch k {
	case KindSend, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is a kind-tagged delivery error. All provider failures surface as
// one of these so the retry controller can branch on classification instead
// of error types.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.err) }
func (e *Error) Unwrap() error { return e.err }

// E wraps err with a kind. A nil err returns nil.
func E(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: err}
}

// Errorf builds a kind-tagged error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err. Unclassified errors are
// treated as send failures so an unexpected error still gets a bounded retry
// rather than an immediate give-up or an unbounded loop.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSend
}

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Transient()
}
