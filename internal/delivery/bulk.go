package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notifyd/internal/notification"
)

// SendBulk runs one delivery per recipient with at most maxConcurrent runs
// in flight. Reports come back in input order regardless of completion
// order, and one recipient's failure never affects another's run.
//
// The template is validated up front so a broken message fails the call
// before any fan-out instead of producing N identical failures.
func (s *Service) SendBulk(ctx context.Context, rcpts []notification.Recipient, msg notification.Message, opts Options) ([]*notification.Report, error) {
	cfg, _, lim := s.snapshot()

	if _, err := notification.Render(msg); err != nil {
		return nil, err
	}
	if _, err := ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, err
	}

	reports := make([]*notification.Report, len(rcpts))
	if len(rcpts) == 0 {
		return reports, nil
	}

	workers := opts.MaxConcurrent
	if workers <= 0 {
		workers = cfg.MaxConcurrent
	}
	if workers > len(rcpts) {
		workers = len(rcpts)
	}

	s.log.Info("bulk dispatch started",
		slog.Int("recipients", len(rcpts)), slog.Int("max_concurrent", workers))
	s.publish(EventBulkStarted, BulkEvent{Recipients: len(rcpts)})
	start := time.Now()

	// Unbuffered job channel: recipients are admitted in input order as
	// slots free up (FIFO admission).
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				reports[idx] = s.sendIsolated(ctx, rcpts[idx], msg, opts, lim)
			}
		}()
	}

feed:
	for i := range rcpts {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Recipients never admitted (cancellation) still get a report so the
	// result slice stays index-correlated.
	for i, r := range reports {
		if r == nil {
			reports[i] = cancelledReport(rcpts[i])
		}
	}

	succeeded := 0
	for _, r := range reports {
		if r.Success {
			succeeded++
		}
	}
	took := time.Since(start)
	s.log.Info("bulk dispatch finished",
		slog.Int("recipients", len(rcpts)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(rcpts)-succeeded),
		slog.Duration("took", took))
	s.publish(EventBulkFinished, BulkEvent{
		Recipients: len(rcpts),
		Succeeded:  succeeded,
		Failed:     len(rcpts) - succeeded,
		Took:       took,
	})
	return reports, nil
}

// sendIsolated shields sibling recipients from one run's failure modes,
// including panics that slip past the retry controller.
func (s *Service) sendIsolated(ctx context.Context, rcpt notification.Recipient, msg notification.Message, opts Options, lim *rate.Limiter) (report *notification.Report) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("delivery run panicked",
				slog.String("recipient", rcpt.ID), slog.Any("panic", r))
			report = failedReport(rcpt, "delivery run panicked")
		}
	}()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return cancelledReport(rcpt)
		}
	}

	rep, err := s.Send(ctx, rcpt, msg, opts)
	if err != nil {
		// Structural errors were validated before fan-out; anything left is
		// per-recipient and must not abort the batch.
		return failedReport(rcpt, err.Error())
	}
	return rep
}

func failedReport(rcpt notification.Recipient, reason string) *notification.Report {
	r := &notification.Report{Recipient: rcpt, FailureReason: reason}
	r.Finalize()
	return r
}

func cancelledReport(rcpt notification.Recipient) *notification.Report {
	return failedReport(rcpt, "dispatch cancelled")
}
