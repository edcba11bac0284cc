// Package logging configures notifyd's structured logging.
//
// It builds slog handlers from configuration and can emit to multiple sinks:
// console text output and an optional JSON file. Handlers can be swapped at
// runtime (config reload) without replacing the *slog.Logger held by
// services.
package logging
