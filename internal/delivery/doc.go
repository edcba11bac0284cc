// Package delivery implements the notification delivery engine:
//
//   - the orchestrator, which walks the configured channel order under a
//     delivery strategy (first-success, try-all, fail-fast), skipping
//     channels the recipient is not reachable on;
//   - the retry controller, which drives bounded retries for one provider
//     and stops early on permanent failures;
//   - the bulk dispatcher, which fans the orchestrator out across many
//     recipients under a concurrency bound with per-recipient isolation.
//
// A single recipient's run is strictly sequential: each strategy decision
// depends on the previous attempt's outcome. Parallelism exists only across
// recipients, and reports are correlated back to input order.
package delivery
