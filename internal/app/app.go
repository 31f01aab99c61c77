// Package app wires the process together: config, logging, transport,
// roster, archive, the broadcast command surface and the local console.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"heraldbot/internal/archive"
	"heraldbot/internal/broadcast"
	"heraldbot/internal/config"
	"heraldbot/internal/console"
	"heraldbot/internal/ops"
	"heraldbot/internal/roster"
	"heraldbot/internal/runtime/supervisor"
	kit "heraldbot/internal/transport"
	telegram "heraldbot/internal/transport/telegram/adapter"
	logx "heraldbot/pkg/logx"
	"heraldbot/pkg/tgui"
)

func noticePanel(title, body string) string {
	return tgui.Panel(tgui.KindInfo, title, body)
}

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	roster  *roster.Store
	arch    *archive.Archive
	stats   *broadcast.Cell
	ops     *ops.Service

	updates   chan kit.Update
	reason    reasonCell
	startedAt time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("roster.busy_timeout", cfg.Roster.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	rosterPath := cfg.Roster.Path
	if rosterPath == "" {
		rosterPath = "./data/roster.db"
	}
	ros, err := roster.Open(roster.Config{Path: rosterPath, BusyTimeout: busyTimeout},
		log.With(logx.String("comp", "roster")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		adapter:   ad,
		roster:    ros,
		arch:      archive.New(archive.DefaultCapacity),
		stats:     &broadcast.Cell{},
		updates:   make(chan kit.Update, 256),
		startedAt: time.Now(),
	}

	opsSettings, err := mapOpsSettings(cfg, ad)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(ad, a.arch, ros, a.stats, opsSettings,
		log.With(logx.String("comp", "ops")), a.RequestStop)
	return a, nil
}

func mapOpsSettings(cfg *config.Config, ad *telegram.Adapter) (ops.Settings, error) {
	pace, err := config.ParseDurationOrDefault("broadcast.pace", cfg.Broadcast.Pace, broadcast.DefaultPace)
	if err != nil {
		return ops.Settings{}, err
	}
	confirm, err := config.ParseDurationOrDefault("broadcast.confirm_timeout", cfg.Broadcast.ConfirmTimeout, 2*time.Minute)
	if err != nil {
		return ops.Settings{}, err
	}
	brand := "Announcement"
	if u := ad.BotUsername(); u != "" {
		brand = "@" + u
	}
	return ops.Settings{
		CommunityID:    cfg.Telegram.CommunityID,
		AdminUserIDs:   cfg.Telegram.AdminUserIDs,
		InviteLink:     cfg.Telegram.InviteLink,
		Brand:          brand,
		ConfirmTimeout: confirm,
		Pace:           pace,
		ProgressEvery:  cfg.Broadcast.ProgressEvery,
	}, nil
}

// RequestStop records the shutdown intent and cancels the supervisor. Safe to
// call from any goroutine; the first caller's intent wins.
func (a *App) RequestStop(restart bool) {
	if restart {
		a.reason.Set(StopRestart)
	} else {
		a.reason.Set(StopPlain)
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
}

// StopReason reports the recorded shutdown intent.
func (a *App) StopReason() StopReason { return a.reason.Get() }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.ops.Go = a.sup.Go0

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapOpsSettings(cfg, a.adapter); err != nil {
			return err
		}
		if cfg.Broadcast.ProgressEvery < 0 {
			return fmt.Errorf("broadcast.progress_every must be >= 0")
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("ops.dispatch", func(c context.Context) error {
		return a.ops.Run(c, a.updates)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	cons := console.New(os.Stdin, os.Stdout, console.Hooks{
		Status: a.statusLine,
		Stop:   a.RequestStop,
	}, a.log.With(logx.String("comp", "console")))
	a.sup.Go0("console", func(c context.Context) {
		_ = cons.Run(c)
	})

	sdNotifyReady(a.log)
	a.notifyAdmins("Online", "The bot is up and ready.")
	a.log.Info("started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	// Validated before publish, so this cannot fail here.
	st, err := mapOpsSettings(cfg, a.adapter)
	if err != nil {
		a.log.Warn("reload settings rejected", logx.Err(err))
		return
	}
	a.ops.Apply(st)
	a.log.Info("settings applied")
}

func (a *App) statusLine() string {
	line := fmt.Sprintf("online; uptime %s", time.Since(a.startedAt).Round(time.Second))

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Telegram.CommunityID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if n, err := a.roster.MemberCount(ctx, cfg.Telegram.CommunityID); err == nil {
			line += fmt.Sprintf("; %d recipients", n)
		}
		cancel()
	}

	if last, ok := a.stats.Last(); ok {
		line += fmt.Sprintf("; last broadcast %d/%d at %s",
			last.Succeeded, last.Total, last.CompletedAt.Format(time.RFC3339))
	} else {
		line += "; no broadcast yet"
	}
	return line
}

// notifyAdmins sends a best-effort private notice to every admin.
func (a *App) notifyAdmins(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.ops.NotifyAdmins(ctx, noticePanel(title, body))
}

// Wait blocks until the supervisor winds down, then runs the shutdown
// sequence: farewell notices, transport stop, store close.
func (a *App) Wait() error {
	<-a.sup.Context().Done()
	sdNotifyStopping(a.log)

	switch a.reason.Get() {
	case StopRestart:
		a.notifyAdmins("Restarting", "Back in a moment.")
	default:
		a.notifyAdmins("Offline", "The bot is shutting down.")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.adapter.Stop(stopCtx)

	err := a.sup.Wait(stopCtx)
	_ = a.roster.Close()
	_ = a.logs.Close()
	return err
}
