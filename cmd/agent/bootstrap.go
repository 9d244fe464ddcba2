package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"trade-agent/internal/broker/brokerobs"
	"trade-agent/internal/broker/kite"
	"trade-agent/internal/broker/paper"
	"trade-agent/internal/calendar"
	"trade-agent/internal/engine"
	"trade-agent/internal/engine/engineobs"
	"trade-agent/internal/eod"
	"trade-agent/internal/eod/eodobs"
	"trade-agent/internal/indicator"
	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/notify"
	"trade-agent/internal/orders"
	"trade-agent/internal/repo/memory"
	"trade-agent/internal/repo/postgres"
	"trade-agent/internal/resilience"
	"trade-agent/internal/scheduler"
	"trade-agent/internal/session"
	"trade-agent/internal/store"
)

// dependencies carries the wired component graph.
type dependencies struct {
	broker     interfaces.Broker
	kiteBroker *kite.Kite
	guard      *session.Guard
	exec       *resilience.Executor
	repo       interfaces.Repository
	coord      interfaces.OrderCoordinator
	engine     interfaces.Engine
	provider   *indicator.Provider
	notifier   interfaces.Notifier
	summarizer interfaces.EodSummarizer
	calendar   *calendar.Calendar

	pgClient *postgres.Client
}

func (d *dependencies) Close(ctx context.Context) {
	if d.kiteBroker != nil {
		d.kiteBroker.Stop()
	}
	if d.pgClient != nil {
		d.pgClient.Close()
	}
}

func buildDependencies(ctx context.Context, cfg *store.Config) (*dependencies, error) {
	d := &dependencies{}

	d.broker, d.kiteBroker = initializeBroker(ctx, cfg)
	d.guard = session.NewGuard(d.broker, time.Duration(cfg.Session.RenewMarginMinutes)*time.Minute)
	d.exec = resilience.NewExecutor(cfg.Account, resilience.PolicyFromConfig(cfg), resilience.BreakerFromConfig(cfg), d.guard)

	repo, pg, err := initializeRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.repo = repo
	d.pgClient = pg

	cache := initializeIndicatorCache(ctx, cfg)
	d.provider = indicator.NewProvider(d.broker, d.exec, cache,
		cfg.Indicator.Period, cfg.Indicator.Interval, cfg.Indicator.Lookback)

	d.notifier = initializeNotifier(ctx, cfg)
	d.coord = orders.NewCoordinator(d.broker, d.exec, d.repo, d.notifier)
	d.engine = engineobs.Wrap(engine.New(cfg, d.broker, d.exec, d.coord, d.repo, d.provider, d.notifier))
	d.summarizer = eodobs.Wrap(eod.NewSummarizer())

	if cfg.Calendar.Enabled {
		d.calendar = calendar.New(cfg.Calendar.URL)
		if err := d.calendar.Refresh(ctx); err != nil {
			logger.Warn(ctx, "Initial holiday refresh failed, weekends only", "error", err)
		}
	}

	return d, nil
}

// initializeBroker returns the wrapped broker plus, in LIVE mode, the
// concrete Kite transport for realtime feed control (subscribe, shutdown).
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, *kite.Kite) {
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
		return brokerobs.Wrap(paper.New(1_000_000, time.Now().UnixNano())), nil
	}

	brk := kite.New(kite.Params{
		APIKey:       os.Getenv("KITE_API_KEY"),
		APISecret:    os.Getenv("KITE_API_SECRET"),
		RequestToken: os.Getenv("KITE_REQUEST_TOKEN"),
		AccessToken:  os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:     cfg.Exchange,
		ExpiryTime:   cfg.Session.ExpiryTime,
		Realtime:     true,
	})
	return brokerobs.Wrap(brk), brk
}

func initializeRepository(ctx context.Context, cfg *store.Config) (interfaces.Repository, *postgres.Client, error) {
	if cfg.Storage.Driver != "postgres" {
		logger.Info(ctx, "Using in-memory storage")
		return memory.New(), nil, nil
	}

	client, err := postgres.NewClient(ctx, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := client.RunMigrations(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info(ctx, "Postgres storage ready")
	return postgres.NewStore(client), client, nil
}

func initializeIndicatorCache(ctx context.Context, cfg *store.Config) indicator.Cache {
	addr := cfg.Indicator.Cache.RedisAddr
	if addr == "" {
		return indicator.NewMemCache()
	}
	ttl := time.Duration(cfg.Indicator.Cache.TTLMinutes) * time.Minute
	c, err := indicator.NewRedisCache(addr, ttl)
	if err != nil {
		logger.Warn(ctx, "Redis unavailable, falling back to in-memory indicator cache",
			"addr", addr, "error", err)
		return indicator.NewMemCache()
	}
	logger.Info(ctx, "Redis indicator cache connected", "addr", addr)
	return c
}

func initializeNotifier(ctx context.Context, cfg *store.Config) interfaces.Notifier {
	if !cfg.Telegram.Enabled {
		return notify.Noop{}
	}
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	if token == "" || chatID == "" {
		logger.Warn(ctx, "Telegram enabled but TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID unset, notifications disabled")
		return notify.Noop{}
	}
	return notify.NewNotifier(
		[]notify.Sender{notify.NewTelegramSender(token, chatID)},
		cfg.Telegram.Events,
	)
}

// buildSchedule registers the daily task cycle.
func buildSchedule(ctx context.Context, cfg *store.Config, d *dependencies) *scheduler.Scheduler {
	var cal scheduler.Calendar
	if d.calendar != nil {
		cal = d.calendar
	}
	sched := scheduler.New(cal, cfg.Scheduler.Workers)

	poll := time.Duration(cfg.PollSeconds) * time.Second

	sched.Register("session-warmup", scheduler.MustAt("09:00"), true, func(ctx context.Context) error {
		if _, err := d.guard.Get(ctx, cfg.Account); err != nil {
			return err
		}
		if d.kiteBroker != nil {
			if err := d.kiteBroker.Subscribe(cfg.Universe); err != nil {
				logger.Warn(ctx, "Realtime subscription failed, REST quotes only", "error", err)
			}
		}
		d.provider.SnapshotPrevious(ctx, cfg.Universe)
		return nil
	})

	sched.Register("entry-scan", scheduler.MustEveryBetween(poll, "09:20", "15:00"), true,
		d.engine.RunEntryScan)

	sched.Register("exit-monitor", scheduler.MustEveryBetween(time.Minute, "09:20", "15:25"), true,
		d.engine.RunExitMonitor)

	sched.Register("order-sync", scheduler.MustEveryBetween(poll, "09:16", cfg.Scheduler.MarketClose), true,
		d.engine.RunOrderSync)

	sched.Register("eod-summary", scheduler.MustAt(cfg.Scheduler.EODSummary), true, func(ctx context.Context) error {
		p, err := d.summarizer.SummarizeToday()
		if err != nil {
			return err
		}
		if p != "" {
			logger.Info(ctx, "EOD CSV written", "path", p)
		}
		return nil
	})

	sched.Register("eod-reset", scheduler.MustAt(cfg.Scheduler.EODReset), false, func(ctx context.Context) error {
		sched.EndOfDayReset(ctx)
		compressOldLogs(ctx)
		return nil
	})

	if d.calendar != nil {
		sched.Register("calendar-refresh", scheduler.MustAt("08:30"), false, func(ctx context.Context) error {
			return d.calendar.Refresh(ctx)
		})
	}

	return sched
}
