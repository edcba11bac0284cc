package notification

import "time"

// Channel names are the stable identifiers used for provider ordering in
// config and for the successful-provider set in reports.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelTelegram = "telegram"
)

// Recipient is one delivery target. Contact fields are optional; a channel
// can only be attempted when its field is present and syntactically valid
// (the provider decides that via Reachable).
type Recipient struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// Message is the pre-render form of a notification: subject and body may
// contain {name} placeholders resolved from Data.
type Message struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// Rendered is the post-substitution snapshot every provider receives.
// All attempts within one delivery run see the same rendered content.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AttemptResult is the outcome of a single provider send call.
// Err is nil iff Success; its kind (see errors.go) drives retry decisions.
type AttemptResult struct {
	Success  bool
	Channel  string
	Message  string
	Err      error
	At       time.Time
	Duration time.Duration
}

// CompletedAt is the attempt's start time plus its duration.
func (r AttemptResult) CompletedAt() time.Time { return r.At.Add(r.Duration) }

// Attempt wraps an AttemptResult with the provider identity and the 1-based
// index within that provider's retry sequence.
type Attempt struct {
	Provider string
	Number   int
	Result   AttemptResult
}

// Report is the complete record of one recipient's delivery run.
//
// Attempts are strictly ordered by start time (append-only, single writer);
// once the run returns, the report is immutable. Success is derived from the
// attempt sequence and the strategy, never set independently.
type Report struct {
	Recipient Recipient
	Rendered  Rendered

	Attempts []Attempt
	Success  bool

	// FailureReason is set for run-level terminal conditions that produce no
	// attempt, e.g. no reachable channel for the recipient.
	FailureReason string

	SuccessfulProviders []string
	TotalAttempts       int
	DeliveryTime        time.Duration
}

// Record appends one attempt, assigning the per-provider 1-based index.
func (r *Report) Record(provider string, res AttemptResult) {
	n := 1
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Provider == provider {
			n = r.Attempts[i].Number + 1
			break
		}
	}
	r.Attempts = append(r.Attempts, Attempt{Provider: provider, Number: n, Result: res})
}

// Finalize computes the aggregate fields from the attempt sequence:
// total attempt count, elapsed wall-clock time (last completion minus first
// start, zero when no attempts), and the order-preserving deduplicated set of
// providers with at least one successful attempt.
func (r *Report) Finalize() {
	r.TotalAttempts = len(r.Attempts)
	r.DeliveryTime = 0
	r.SuccessfulProviders = nil
	if len(r.Attempts) == 0 {
		return
	}

	first := r.Attempts[0].Result.At
	last := r.Attempts[len(r.Attempts)-1].Result.CompletedAt()
	if last.After(first) {
		r.DeliveryTime = last.Sub(first)
	}

	seen := map[string]bool{}
	for _, a := range r.Attempts {
		if a.Result.Success && !seen[a.Provider] {
			seen[a.Provider] = true
			r.SuccessfulProviders = append(r.SuccessfulProviders, a.Provider)
		}
	}
}
