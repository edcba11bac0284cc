package storage

import (
	"context"
	"errors"
	"strings"

	"notifyd/pkg/logx"
)

// Store is the persistence API consumed by the delivery engine.
type Store interface {
	AppendDelivery(ctx context.Context, rec DeliveryRecord) error
	// RecentDeliveries returns up to n records, newest last.
	RecentDeliveries(ctx context.Context, n int) ([]DeliveryRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
