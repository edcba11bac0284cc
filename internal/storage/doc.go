// Package storage persists delivery history.
//
// Two backends share one Store API: a dependency-free JSONL file backend and
// an optional SQLite backend behind the "sqlite" build tag. History writes
// are best-effort from the caller's point of view; a failing store must
// never fail a delivery.
package storage
