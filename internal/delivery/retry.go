package delivery

import (
	"context"
	"log/slog"
	"time"

	"notifyd/internal/notification"
	"notifyd/internal/provider"
)

// runRetries drives up to maxRetries attempts against one provider.
//
// Every send call, successful or not, is recorded on the report with a
// 1-based per-provider attempt index. Permanent failures stop the sequence
// immediately; transient ones wait the fixed delay and try again while
// budget remains. The final result (success or last failure) is returned.
func (s *Service) runRetries(ctx context.Context, p provider.Provider, rcpt notification.Recipient, msg notification.Rendered, report *notification.Report, maxRetries int, delay, timeout time.Duration) notification.AttemptResult {
	var res notification.AttemptResult
	for attempt := 1; attempt <= maxRetries; attempt++ {
		res = attemptOnce(ctx, p, rcpt, msg, timeout)
		report.Record(p.Name(), res)

		kind := notification.KindOf(res.Err)
		s.publish(EventAttempt, AttemptEvent{
			Recipient: rcpt.ID,
			Channel:   p.Name(),
			Attempt:   attempt,
			Success:   res.Success,
			Kind:      kind.String(),
			Duration:  res.Duration,
		})

		if res.Success {
			s.log.Debug("attempt succeeded",
				slog.String("recipient", rcpt.ID), slog.String("channel", p.Name()), slog.Int("attempt", attempt))
			return res
		}

		s.log.Warn("attempt failed",
			slog.String("recipient", rcpt.ID),
			slog.String("channel", p.Name()),
			slog.Int("attempt", attempt),
			slog.String("kind", kind.String()),
			slog.Any("err", res.Err))

		if !kind.Transient() {
			// Permanent failures are never retried, even with budget left.
			return res
		}
		if attempt == maxRetries {
			return res
		}
		if !sleepCtx(ctx, delay) {
			return res
		}
	}
	return res
}

// attemptOnce performs a single bounded send call. Panics and unclassified
// outcomes are normalized so no provider failure ever escapes as an
// unhandled error; timestamps are stamped here for attempt ordering.
func attemptOnce(ctx context.Context, p provider.Provider, rcpt notification.Recipient, msg notification.Rendered, timeout time.Duration) (res notification.AttemptResult) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = notification.AttemptResult{
				Message: "provider panicked",
				Err:     notification.Errorf(notification.KindSend, "provider %s panicked: %v", p.Name(), r),
			}
		}
		res.At = start
		res.Duration = time.Since(start)
		if res.Channel == "" {
			res.Channel = p.Name()
		}
		if !res.Success && res.Err == nil {
			res.Err = notification.Errorf(notification.KindSend, "provider %s failed: %s", p.Name(), res.Message)
		}
	}()

	res = p.Send(ctx, rcpt, msg)
	return
}

// sleepCtx waits d, honoring cancellation. Reports false when the context
// ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
