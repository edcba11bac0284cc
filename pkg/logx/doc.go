// Package logx is a small structured-logging wrapper over zerolog used by
// the persistence and configuration layers.
//
// The zero Logger value is a safe no-op, so libraries can accept a Logger
// without nil checks.
package logx
