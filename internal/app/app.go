// Package app wires the whole bot together: config, logging, the feed
// aggregator, content generation, the publisher, the scheduler, and the
// optional ledger, notifier, API server and cron trigger.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"optobot/internal/config"
	"optobot/internal/fallback"
	"optobot/internal/feed"
	"optobot/internal/generator"
	"optobot/internal/ledger"
	"optobot/internal/notifier"
	"optobot/internal/pipeline"
	"optobot/internal/publisher"
	"optobot/internal/scheduler"
	"optobot/internal/search"
	"optobot/internal/server"
	logx "optobot/pkg/logx"
)

type App struct {
	mu sync.Mutex

	cfgm   *config.Manager
	logsvc *logx.Service
	log    logx.Logger

	sched *scheduler.Service
	pipe  *pipeline.Pipeline
	notif *notifier.Service
	api   *server.Service
	store ledger.Store
	cron  *cron.Cron

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	if _, err := cfgm.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &App{cfgm: cfgm}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	cfg := a.cfgm.Get()

	logsvc, root := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.logsvc = logsvc
	a.log = root
	a.cfgm.SetLogger(root.With(logx.String("comp", "config")))

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.build(runCtx, cfg, root); err != nil {
		cancel()
		_ = logsvc.Close()
		return err
	}

	// Scheduler polling loop.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Run(runCtx)
	}()

	// Config hot-reload: logging is the only section applied live; the
	// rest requires a restart.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchConfig(runCtx)
	}()

	if cfg.Pipeline.RunOnStart {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runPass(runCtx)
		}()
	}

	a.started = true
	a.log.Info("app started")
	return nil
}

func (a *App) build(runCtx context.Context, cfg *config.Config, root logx.Logger) error {
	feedTimeout, _ := config.ParseDurationOrDefault("feed.timeout", cfg.Feed.Timeout, 15*time.Second)
	pubTimeout, _ := config.ParseDurationOrDefault("publisher.timeout", cfg.Publisher.Timeout, 15*time.Second)
	pollInterval, _ := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, scheduler.DefaultPollInterval)
	staggerUnit, _ := config.ParseDurationOrDefault("scheduler.stagger_unit", cfg.Scheduler.StaggerUnit, scheduler.DefaultStaggerUnit)
	busyTimeout, _ := config.ParseDurationOrDefault("ledger.busy_timeout", cfg.Ledger.BusyTimeout, 0)
	dedupWindow, _ := config.ParseDurationOrDefault("notifier.dedup_window", cfg.Notifier.DedupWindow, time.Minute)

	feedClient, err := feed.NewClient(feed.ClientConfig{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: feedTimeout,
	}, root.With(logx.String("comp", "feed")))
	if err != nil {
		return err
	}
	agg := feed.NewAggregator(feedClient, root.With(logx.String("comp", "feed")), cfg.Feed.TopK, cfg.Feed.CorpusLimit)

	searchClient := search.New(search.Config{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Country: cfg.Search.Country,
	}, root.With(logx.String("comp", "search")))

	llm, err := generator.NewOpenAILLM(generator.Settings{
		APIKey:  cfg.Generator.APIKey,
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
	})
	if err != nil {
		return err
	}
	builder := generator.NewBuilder(llm, cfg.Generator.Temperature, root.With(logx.String("comp", "generator")))

	endpoint, err := publisher.NewHTTPEndpoint(publisher.HTTPConfig{
		BaseURL: cfg.Publisher.BaseURL,
		Token:   cfg.Publisher.Token,
		Timeout: pubTimeout,
	})
	if err != nil {
		return err
	}
	pub := publisher.New(endpoint, cfg.Publisher.RatePerMin, root.With(logx.String("comp", "publisher")))

	a.sched = scheduler.New(scheduler.Config{
		PollInterval: pollInterval,
		StaggerUnit:  staggerUnit,
	}, pub, fallback.New(cfg.Fallback.Messages), root.With(logx.String("comp", "scheduler")))

	a.store, err = ledger.Open(ledger.Config{
		Driver:      cfg.Ledger.Driver,
		Path:        cfg.Ledger.Path,
		BusyTimeout: busyTimeout,
	}, root.With(logx.String("comp", "ledger")))
	if err != nil {
		return err
	}

	if cfg.Notifier.Enabled {
		sender, err := notifier.NewTelegramSender(cfg.Notifier.Token)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		a.notif = notifier.New(notifier.Config{
			Enabled:     true,
			ChatID:      cfg.Notifier.ChatID,
			RatePerSec:  cfg.Notifier.RatePerSec,
			DedupWindow: dedupWindow,
		}, sender, root.With(logx.String("comp", "notifier")))
		a.notif.Start(runCtx)

		notif := a.notif
		a.sched.SetOutcomeHook(func(job scheduler.Job, out publisher.Outcome) {
			switch out.Status {
			case publisher.StatusThrottled:
				_ = notif.Alertf(runCtx, "post throttled (job %s): %s", job.ID, out.Reason)
			case publisher.StatusFailed:
				_ = notif.Alertf(runCtx, "post failed (job %s): %s", job.ID, out.Reason)
			}
		})
	}

	a.pipe = pipeline.New(agg, builder, searchClient, a.sched, root.With(logx.String("comp", "pipeline")))

	if cfg.Server.Enabled {
		a.api = server.New(server.Config{
			Enabled: true,
			Addr:    cfg.Server.Addr,
			Token:   cfg.Server.Token,
		}, a.pipe, a.sched, a.store, root.With(logx.String("comp", "api")))
		if err := a.api.Start(runCtx); err != nil {
			return err
		}
	}

	if cfg.Pipeline.Cron != "" {
		if err := a.startCron(runCtx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) startCron(runCtx context.Context, cfg *config.Config) error {
	loc := time.Local
	if tz := cfg.Pipeline.Timezone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("pipeline.timezone: %w", err)
		}
		loc = l
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(cfg.Pipeline.Cron, func() {
		a.runPass(runCtx)
	})
	if err != nil {
		return fmt.Errorf("pipeline.cron: %w", err)
	}
	c.Start()
	a.cron = c
	a.log.Info("cron trigger armed", logx.String("spec", cfg.Pipeline.Cron))
	return nil
}

func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logsvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("config reloaded, logging settings applied")
		}
	}
}

// runPass executes one pipeline pass and pushes the summary to the operator.
func (a *App) runPass(ctx context.Context) {
	rep, err := a.pipe.Run(ctx)
	if err != nil {
		a.log.Error("pass failed", logx.Err(err))
		if a.notif != nil {
			_ = a.notif.Alertf(ctx, "pass failed: %v", err)
		}
		return
	}
	if a.notif != nil {
		_ = a.notif.Alertf(ctx, "pass complete: %s", rep)
	}
}

// RunPass triggers one publishing pass outside of cron (for operator use).
func (a *App) RunPass(ctx context.Context) (pipeline.Report, error) {
	a.mu.Lock()
	pipe := a.pipe
	a.mu.Unlock()
	if pipe == nil {
		return pipeline.Report{}, errors.New("app not started")
	}
	return pipe.Run(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
		a.cron = nil
	}
	if a.api != nil {
		a.api.Stop(ctx)
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.notif != nil {
		a.notif.Stop(ctx)
	}
	a.wg.Wait()

	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logsvc != nil {
		a.log.Info("app stopped")
		_ = a.logsvc.Close()
	}
	a.started = false
	return nil
}
