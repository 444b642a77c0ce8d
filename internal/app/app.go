// Package app assembles the bot: config, logging, storage, the Telegram
// client, the router, and the single update-consumer loop.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"gatebot/internal/broadcast"
	"gatebot/internal/config"
	"gatebot/internal/gate"
	"gatebot/internal/router"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/internal/transport/telegram"
	"gatebot/pkg/logx"
)

type App struct {
	cfgm     *config.Manager
	log      logx.Logger
	closeLog func() error

	store  storage.Store
	client *telegram.Client
	router *router.Router
	cron   *cron.Cron

	superAdminID int64

	updates chan kit.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logFile := ""
	if cfg.Logging.File.Enabled {
		logFile = cfg.Logging.File.Path
		if logFile == "" {
			logFile = "./gatebot.log"
		}
	}
	log, closeLog, err := logx.New(logx.Config{
		Level:    cfg.Logging.Level,
		Console:  cfg.Logging.Console,
		FilePath: logFile,
	})
	if err != nil {
		return nil, err
	}

	busyTimeout, err := parseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	client, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	dispatcher := broadcast.NewDispatcher(store, client, cfg.Broadcast.RatePerSec,
		log.With(logx.String("comp", "broadcast")))
	composer := broadcast.NewComposer(client, dispatcher, router.CallbackPanel,
		log.With(logx.String("comp", "composer")))
	gateSvc := gate.New(store, client, log.With(logx.String("comp", "gate")))

	rt := router.New(router.Config{SuperAdminID: cfg.Telegram.SuperAdminID},
		store, client, gateSvc, composer, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:         cfgm,
		log:          log.With(logx.String("comp", "app")),
		closeLog:     closeLog,
		store:        store,
		client:       client,
		router:       rt,
		superAdminID: cfg.Telegram.SuperAdminID,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.updates = make(chan kit.Update, 256)

	if err := a.client.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	// Single consumer: inbound events are dispatched one at a time, so
	// handlers observe their own prior writes without extra locking. The
	// only intra-request parallelism is the verifier's channel fan-out.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case up := <-a.updates:
				a.router.HandleUpdate(runCtx, up)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx, func(cfg *config.Config) {
			logx.SetGlobalLevel(cfg.Logging.Level)
		}); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Digest.Enabled {
		spec := cfg.Digest.Cron
		if spec == "" {
			spec = "0 9 * * *"
		}
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { a.sendDigest(runCtx) }); err != nil {
			a.log.Warn("digest schedule rejected", logx.String("cron", spec), logx.Err(err))
		} else {
			c.Start()
			a.cron = c
			a.log.Info("stats digest scheduled", logx.String("cron", spec))
		}
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.cron != nil {
		a.cron.Stop()
	}
	_ = a.client.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	return nil
}

// sendDigest pushes the registry stats to the super admin's private chat.
func (a *App) sendDigest(ctx context.Context) {
	st, err := a.store.Stats(ctx)
	if err != nil {
		a.log.Warn("digest stats failed", logx.Err(err))
		return
	}
	text := fmt.Sprintf("📊 <b>Daily stats</b>\n\n👤 Users: %d\n📢 Channels: %d\n📁 Addlists: %d\n🔑 Rewards: %d\n👮 Admins: %d",
		st.Users, st.Channels, st.Addlists, st.Rewards, st.Admins)
	if _, err := a.client.SendText(ctx, kit.ChatTarget{ChatID: a.superAdminID}, text, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		a.log.Warn("digest send failed", logx.String("category", kit.Category(err)), logx.Err(err))
	}
}

func parseDurationOrDefault(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
