package delivery

import (
	"context"
	"fmt"
	"log/slog"
)

// Overall service health derived from per-provider validation.
const (
	StatusHealthy     = "healthy"     // every provider validated
	StatusDegraded    = "degraded"    // some providers validated
	StatusUnavailable = "unavailable" // no provider validated
)

type ProviderStatus struct {
	Channel   string `json:"channel"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type ServiceStatus struct {
	Overall   string           `json:"overall"`
	Providers []ProviderStatus `json:"providers"`
}

// Status validates every configured provider. A provider whose validation
// fails is reported unavailable; it never fails the status call itself.
func (s *Service) Status(ctx context.Context) ServiceStatus {
	_, providers, _ := s.snapshot()

	out := ServiceStatus{Providers: make([]ProviderStatus, 0, len(providers))}
	available := 0
	for _, p := range providers {
		ps := ProviderStatus{Channel: p.Name()}
		if err := validate(ctx, p); err != nil {
			ps.Error = err.Error()
			s.log.Warn("provider validation failed",
				slog.String("channel", p.Name()), slog.Any("err", err))
		} else {
			ps.Available = true
			available++
		}
		out.Providers = append(out.Providers, ps)
	}

	switch {
	case available == len(providers) && available > 0:
		out.Overall = StatusHealthy
	case available > 0:
		out.Overall = StatusDegraded
	default:
		out.Overall = StatusUnavailable
	}
	return out
}

func validate(ctx context.Context, p interface {
	ValidateConfig(context.Context) error
	Name() string
}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s validation panicked: %v", p.Name(), r)
		}
	}()
	return p.ValidateConfig(ctx)
}
