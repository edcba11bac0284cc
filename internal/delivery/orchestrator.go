package delivery

import (
	"context"
	"log/slog"
	"time"

	"notifyd/internal/notification"
	"notifyd/internal/storage"
)

// ReasonNoReachableChannel is recorded at report level when no configured
// provider can reach the recipient. No attempt is recorded in that case.
const ReasonNoReachableChannel = "no reachable channel"

// Send delivers one message to one recipient under the given strategy and
// returns the complete delivery report.
//
// A run that exhausts all providers without success is a normal return with
// report.Success == false. Only structurally invalid input (an unrenderable
// template, a broken provider order) is an error of the operation itself.
func (s *Service) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Message, opts Options) (*notification.Report, error) {
	cfg, providers, _ := s.snapshot()

	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = cfg.MaxRetries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = cfg.RetryDelay
	}

	rendered, err := notification.Render(msg)
	if err != nil {
		return nil, err
	}

	report := &notification.Report{Recipient: rcpt, Rendered: rendered}
	start := time.Now()

	attempted := false
	anySuccess := false
	finalFailure := false

run:
	for _, p := range providers {
		if ctx.Err() != nil {
			break
		}
		if !p.Reachable(rcpt) {
			s.log.Debug("channel skipped: recipient not reachable",
				slog.String("recipient", rcpt.ID), slog.String("channel", p.Name()))
			continue
		}
		attempted = true

		res := s.runRetries(ctx, p, rcpt, rendered, report, maxRetries, delay, cfg.SendTimeout)
		if res.Success {
			anySuccess = true
			if strategy == FirstSuccess {
				break run
			}
			continue
		}
		finalFailure = true
		if strategy == FailFast {
			break run
		}
	}

	if !attempted {
		report.FailureReason = ReasonNoReachableChannel
		s.log.Warn("no reachable channel for recipient", slog.String("recipient", rcpt.ID))
	}

	switch strategy {
	case FailFast:
		report.Success = anySuccess && !finalFailure
	default:
		report.Success = anySuccess
	}
	report.Finalize()

	s.finishRun(ctx, report, time.Since(start))
	return report, nil
}

// finishRun emits the run summary: log line, bus event, history record.
func (s *Service) finishRun(ctx context.Context, report *notification.Report, took time.Duration) {
	ev := DeliveryEvent{
		Recipient: report.Recipient.ID,
		Success:   report.Success,
		Attempts:  report.TotalAttempts,
		Providers: report.SuccessfulProviders,
		Reason:    report.FailureReason,
		Took:      took,
	}
	if report.Success {
		s.log.Info("notification delivered",
			slog.String("recipient", report.Recipient.ID),
			slog.Int("attempts", report.TotalAttempts),
			slog.Any("providers", report.SuccessfulProviders),
			slog.Duration("took", took))
		s.publish(EventSent, ev)
	} else {
		s.log.Warn("notification not delivered",
			slog.String("recipient", report.Recipient.ID),
			slog.Int("attempts", report.TotalAttempts),
			slog.String("reason", report.FailureReason),
			slog.Duration("took", took))
		s.publish(EventFailed, ev)
	}

	if s.store == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:          time.Now(),
		RecipientID: report.Recipient.ID,
		Subject:     report.Rendered.Subject,
		Success:     report.Success,
		Attempts:    report.TotalAttempts,
		Providers:   report.SuccessfulProviders,
		Error:       failureDetail(report),
		TookMS:      took.Milliseconds(),
	}
	// Best-effort: history must never fail a delivery.
	if err := s.store.AppendDelivery(ctx, rec); err != nil {
		s.log.Warn("delivery history write failed", slog.Any("err", err))
	}
}

func failureDetail(report *notification.Report) string {
	if report.Success {
		return ""
	}
	if report.FailureReason != "" {
		return report.FailureReason
	}
	if n := len(report.Attempts); n > 0 {
		if err := report.Attempts[n-1].Result.Err; err != nil {
			return err.Error()
		}
	}
	return ""
}
