package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"notifyd/internal/config"
	"notifyd/internal/delivery"
	"notifyd/internal/eventbus"
	"notifyd/internal/logging"
	"notifyd/internal/provider"
	"notifyd/internal/provider/email"
	"notifyd/internal/provider/sms"
	"notifyd/internal/provider/telegram"
	"notifyd/internal/schedule"
	"notifyd/internal/storage"
	"notifyd/pkg/logx"
)

// App wires configuration, logging, storage, providers, delivery and the
// scheduler together, and owns their lifecycle.
type App struct {
	cfgm *config.Manager

	logs  *logging.Service
	log   *slog.Logger
	bus   eventbus.Bus
	store storage.Store

	deliv *delivery.Service
	sched *schedule.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	// storage and config use the structured console logger; services log
	// through slog below.
	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(slog.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, bootLog.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", slog.String("driver", cfg.Storage.Driver))
		}
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	dcfg, err := mapDeliveryConfig(cfg.Delivery)
	if err != nil {
		return nil, err
	}
	deliv, err := delivery.New(reg, dcfg, log.With(slog.String("comp", "delivery")), bus, store)
	if err != nil {
		return nil, err
	}

	scfg, err := mapScheduleConfig(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	sched := schedule.New(scfg, deliv, bootLog.With(logx.String("comp", "schedule")))

	return &App{
		cfgm:  cfgm,
		logs:  logSvc,
		log:   log,
		bus:   bus,
		store: store,
		deliv: deliv,
		sched: sched,
	}, nil
}

// Delivery exposes the delivery service for one-shot CLI operations.
func (a *App) Delivery() *delivery.Service { return a.deliv }

// History returns up to n recent delivery records, newest last. Returns
// storage.ErrDisabled when no storage is configured.
func (a *App) History(ctx context.Context, n int) ([]storage.DeliveryRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentDeliveries(ctx, n)
}

// Start launches the scheduler and the config watcher. It returns once
// everything is running; shutdown happens via Stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	reloads := a.cfgm.Subscribe(1)
	events, unsubscribe := a.bus.Subscribe(64)
	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", slog.Any("err", err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer unsubscribe()
		// operator event trace; delivery outcomes are logged at info by the
		// delivery service itself
		elog := a.log.With(slog.String("comp", "events"))
		for {
			select {
			case <-runCtx.Done():
				return
			case e := <-events:
				elog.Debug(e.Type, slog.Any("data", e.Data))
			}
		}
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg := <-reloads:
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("started")
	return nil
}

// applyReload pushes a validated config into the running services. Channel
// sections are bound at construction; adding or removing a channel takes a
// restart, everything else hot-applies.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if dcfg, err := mapDeliveryConfig(cfg.Delivery); err != nil {
		a.log.Warn("reload: delivery config rejected", slog.Any("err", err))
	} else if err := a.deliv.Apply(dcfg); err != nil {
		a.log.Warn("reload: delivery config rejected", slog.Any("err", err))
	}

	if scfg, err := mapScheduleConfig(cfg.Schedule); err != nil {
		a.log.Warn("reload: schedule config rejected", slog.Any("err", err))
	} else if err := a.sched.Apply(scfg); err != nil {
		a.log.Warn("reload: schedule config rejected", slog.Any("err", err))
	}

	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	a.wg.Wait()

	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	a.log.Info("stopped")
	return firstErr
}

// buildRegistry registers one provider per configured channel section.
func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	if c := cfg.Email; c != nil {
		if err := reg.Register(email.New(email.Config{
			Host:     c.Host,
			Port:     c.Port,
			Username: c.Username,
			Password: c.Password,
			From:     c.From,
			STARTTLS: c.STARTTLS,
		})); err != nil {
			return nil, err
		}
	}
	if c := cfg.SMS; c != nil {
		if err := reg.Register(sms.New(sms.Config{
			AccountSID: c.AccountSID,
			AuthToken:  c.AuthToken,
			FromNumber: c.FromNumber,
		})); err != nil {
			return nil, err
		}
	}
	if c := cfg.Telegram; c != nil {
		timeout, err := config.ParseDurationField("telegram.timeout", c.Timeout)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(telegram.New(telegram.Config{
			Token:   c.Token,
			Timeout: timeout,
		})); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
