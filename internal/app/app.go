// Package app assembles the bot: config, logging, storage, scheduling,
// delivery, and the chat gateway.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/broadcast"
	"remindbot/internal/clock"
	"remindbot/internal/config"
	"remindbot/internal/dispatch"
	"remindbot/internal/eventbus"
	"remindbot/internal/gateway"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/store"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram"
	"remindbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter *telegram.Adapter
	store   store.Store
	clk     *clock.Clock

	sched  *scheduler.Service
	disp   *dispatch.Dispatcher
	bcasts *broadcast.Registry
	rem    *reminder.Service
	gw     *gateway.Gateway

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the telegram sink disabled: the target chat must be
	// set before Apply enables it, or Apply warns spuriously.
	baseLogCfg := mapLoggingConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chatID)
	}
	logSvc.Apply(mapLoggingConfig(cfg))

	bus := eventbus.New()

	clk := clock.New(clock.Config{
		UTCOffsetHours: cfg.Clock.UTCOffsetHours,
		Label:          cfg.Clock.Label,
	})

	st, err := store.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{}, log.With(logx.String("comp", "scheduler")))

	sendTimeout, err := config.ParseDurationOrDefault("reminders.send_timeout", cfg.Reminders.SendTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dispatch.Config{
		SendTimeout: sendTimeout,
		RatePerSec:  cfg.Reminders.RatePerSec,
	}, ad, log.With(logx.String("comp", "dispatch")), bus)

	sweepInterval, err := config.ParseDurationOrDefault("reminders.sweep_interval", cfg.Reminders.SweepInterval, time.Minute)
	if err != nil {
		return nil, err
	}
	rem := reminder.New(reminder.Config{SweepInterval: sweepInterval},
		st, clk, disp, log.With(logx.String("comp", "reminder")), bus)

	bcasts := broadcast.New(broadcast.Config{
		Path:    cfg.Broadcasts.Path,
		Contact: cfg.Telegram.EmergencyContact,
	}, sched, disp, log.With(logx.String("comp", "broadcast")), bus)

	gw := gateway.New(gateway.Config{
		EmergencyContact: cfg.Telegram.EmergencyContact,
		Keywords:         cfg.Telegram.EmergencyKeywords,
	}, gateway.CommandInterpreter{}, rem, disp, clk,
		log.With(logx.String("comp", "gateway")), bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		store:   st,
		clk:     clk,
		sched:   sched,
		disp:    disp,
		bcasts:  bcasts,
		rem:     rem,
		gw:      gw,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// Restore persisted reminders before the sweep can run.
	if err := a.rem.Restore(a.sup.Context()); err != nil {
		return err
	}

	if n, err := a.bcasts.LoadAndRegister(a.sup.Context()); err != nil {
		a.log.Warn("broadcast registration failed", logx.Err(err))
	} else {
		a.log.Info("broadcasts registered", logx.Int("count", n))
	}

	if err := a.rem.Register(a.sched); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	a.sched.Start(a.sup.Context())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("gateway.updates", func(c context.Context) error {
		return a.gw.Run(c, a.updates)
	})

	// Debug visibility into the event stream.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload fan-out: logging and broadcast definitions apply live,
	// everything else takes effect on restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(c, last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, prev, cfg *config.Config) {
	if prev != nil {
		// Fixed-at-startup sections: applying them live would re-interpret
		// persisted UTC instants or swap storage under the queue.
		if prev.Clock != cfg.Clock {
			a.log.Warn("clock config changed; restart required for changes to take effect")
		}
		if (prev.Storage == nil) != (cfg.Storage == nil) ||
			(prev.Storage != nil && *prev.Storage != *cfg.Storage) {
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
		if prev.Reminders.SweepInterval != cfg.Reminders.SweepInterval {
			a.log.Warn("reminders.sweep_interval changed; restart required for changes to take effect")
		}
		if prev.Telegram.Token != cfg.Telegram.Token {
			a.log.Warn("telegram.token changed; restart required for changes to take effect")
		}
	}

	if chatID, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID)
	} else {
		a.logs.SetTelegramTarget(0)
	}
	a.logs.Apply(mapLoggingConfig(cfg))

	// Re-reading the definitions file picks up added/removed broadcasts;
	// registration is idempotent by job name.
	if n, err := a.bcasts.LoadAndRegister(ctx); err != nil {
		a.log.Warn("broadcast reload failed", logx.Err(err))
	} else {
		a.log.Info("config reloaded", logx.Int("broadcasts", n))
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("store", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) store.Config {
	if cfg.Storage == nil {
		return store.Config{Driver: "file", Path: "./reminders.json"}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		Addr:        cfg.Storage.Addr,
		Password:    cfg.Storage.Password,
		DB:          cfg.Storage.DB,
	}
}

func parseChatID(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
