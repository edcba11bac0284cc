package delivery

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notifyd/internal/eventbus"
	"notifyd/internal/provider"
	"notifyd/internal/storage"
)

// Strategy selects provider ordering and termination behavior.
type Strategy string

const (
	// FirstSuccess stops at the first provider that delivers.
	FirstSuccess Strategy = "first_success"
	// TryAll attempts every reachable provider for a full fan-out report.
	TryAll Strategy = "try_all"
	// FailFast stops the whole run as soon as any attempted provider
	// exhausts its retry budget without success. Unreachable providers are
	// skipped, not failed.
	FailFast Strategy = "fail_fast"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case FirstSuccess, TryAll, FailFast:
		return Strategy(s), nil
	case "":
		return FirstSuccess, nil
	default:
		return "", fmt.Errorf("unknown delivery strategy %q", s)
	}
}

// Config carries the delivery defaults from configuration. Per-call Options
// may override the retry knobs.
type Config struct {
	ProviderOrder []string
	MaxRetries    int
	RetryDelay    time.Duration
	MaxConcurrent int
	SendTimeout   time.Duration

	// RatePerSec globally limits bulk dispatch admission. 0 disables.
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// Options are per-call overrides for Send and SendBulk. Zero values fall
// back to the service configuration.
type Options struct {
	Strategy      Strategy
	MaxRetries    int
	RetryDelay    time.Duration
	MaxConcurrent int
}

// Service is the delivery engine. It is safe for concurrent use; Apply may
// swap configuration while deliveries are in flight.
type Service struct {
	log   *slog.Logger
	bus   eventbus.Bus
	store storage.Store

	mu        sync.Mutex
	cfg       Config
	providers []provider.Provider
	limiter   *rate.Limiter

	reg *provider.Registry
}

// New builds the delivery service over registered providers. The configured
// provider order must resolve to at least one registered channel.
func New(reg *provider.Registry, cfg Config, log *slog.Logger, bus eventbus.Bus, store storage.Store) (*Service, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, errors.New("delivery: no providers registered")
	}
	if log == nil {
		return nil, errors.New("delivery: logger is required")
	}
	s := &Service{log: log, bus: bus, store: store, reg: reg}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply re-resolves provider order and delivery defaults. Used on config
// reload; in-flight runs keep the snapshot they started with.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	providers, err := s.reg.Ordered(cfg.ProviderOrder)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.providers = providers
	s.limiter = nil
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return nil
}

// snapshot copies the mutable state a delivery run depends on, so Apply
// can't change policy mid-run.
func (s *Service) snapshot() (Config, []provider.Provider, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.providers, s.limiter
}

func (s *Service) publish(eventType string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Data: data})
}
