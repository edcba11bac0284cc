package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSONL append file (default backend)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one compact row of delivery history. Keep it
// schema-stable; reports carry the full detail, this is the audit trail.
type DeliveryRecord struct {
	At          time.Time `json:"at"`
	RecipientID string    `json:"recipient_id"`
	Subject     string    `json:"subject,omitempty"`
	Success     bool      `json:"success"`
	Attempts    int       `json:"attempts"`
	Providers   []string  `json:"providers,omitempty"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
}
