package delivery

import "time"

// Event types published on the bus.
const (
	EventAttempt      = "delivery.attempt"
	EventSent         = "delivery.sent"
	EventFailed       = "delivery.failed"
	EventBulkStarted  = "bulk.started"
	EventBulkFinished = "bulk.finished"
)

// AttemptEvent describes one provider send call.
type AttemptEvent struct {
	Recipient string        `json:"recipient"`
	Channel   string        `json:"channel"`
	Attempt   int           `json:"attempt"`
	Success   bool          `json:"success"`
	Kind      string        `json:"kind,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// DeliveryEvent summarizes one finished delivery run.
type DeliveryEvent struct {
	Recipient string        `json:"recipient"`
	Success   bool          `json:"success"`
	Attempts  int           `json:"attempts"`
	Providers []string      `json:"providers,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Took      time.Duration `json:"took"`
}

// BulkEvent summarizes a bulk dispatch.
type BulkEvent struct {
	Recipients int           `json:"recipients"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Took       time.Duration `json:"took,omitempty"`
}
