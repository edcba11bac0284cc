package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"notifyd/internal/delivery"
	"notifyd/internal/notification"
	"notifyd/pkg/logx"
)

// Dispatcher is the slice of the delivery service the scheduler needs.
type Dispatcher interface {
	SendBulk(ctx context.Context, rcpts []notification.Recipient, msg notification.Message, opts delivery.Options) ([]*notification.Report, error)
}

// Job is one recurring dispatch definition.
type Job struct {
	Name       string
	Spec       string // 5-field or 6-field (seconds) cron spec
	Strategy   delivery.Strategy
	Message    notification.Message
	Recipients []notification.Recipient
}

type Config struct {
	Enabled  bool
	Timezone string
	Jobs     []Job
}

// Service owns the cron runner. Apply swaps the whole job set; Start/Stop
// bracket the runner lifecycle.
type Service struct {
	log  logx.Logger
	disp Dispatcher

	parser cron.Parser

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, disp Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg,
		disp: disp,
		log:  log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateSpec reports whether the cron spec parses under the runner's parser.
func (s *Service) ValidateSpec(spec string) error {
	_, err := s.parser.Parse(strings.TrimSpace(spec))
	return err
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply replaces the job set. If the runner is active it is restarted so
// removed jobs stop firing and spec changes take effect.
func (s *Service) Apply(cfg Config) error {
	for _, j := range cfg.Jobs {
		if err := s.ValidateSpec(j.Spec); err != nil {
			return fmt.Errorf("schedule job %q: %w", j.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c != nil {
		s.c.Stop()
		s.c = nil
		if cfg.Enabled {
			return s.startLocked()
		}
	}
	return nil
}

// Start registers all jobs and begins triggering. No-op when already
// started or disabled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule timezone %q: %w", tz, err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.cfg.Jobs {
		job := s.cfg.Jobs[i]
		if _, err := c.AddFunc(job.Spec, s.runner(job)); err != nil {
			return fmt.Errorf("schedule job %q: %w", job.Name, err)
		}
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started",
		logx.String("tz", loc.String()), logx.Int("jobs", len(s.cfg.Jobs)))
	return nil
}

// runner wraps one job with overlap suppression: a trigger that fires while
// the previous dispatch is still running is skipped.
func (s *Service) runner(job Job) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			s.log.Warn("schedule trigger skipped; previous run still active",
				logx.String("job", job.Name))
			return
		}
		defer running.Store(false)

		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}

		start := time.Now()
		reports, err := s.disp.SendBulk(ctx, job.Recipients, job.Message, delivery.Options{Strategy: job.Strategy})
		if err != nil {
			s.log.Error("scheduled dispatch failed", logx.String("job", job.Name), logx.Err(err))
			return
		}
		succeeded := 0
		for _, r := range reports {
			if r.Success {
				succeeded++
			}
		}
		s.log.Info("scheduled dispatch finished",
			logx.String("job", job.Name),
			logx.Int("recipients", len(reports)),
			logx.Int("succeeded", succeeded),
			logx.Duration("took", time.Since(start)))
	}
}

// Stop halts triggering and waits for in-flight jobs up to ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
		s.runCtx = nil
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("scheduler stopped")
}
