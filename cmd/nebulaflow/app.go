package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/notify"
	"github.com/ajitpratap0/nebulaflow/internal/pipeline"
	"github.com/ajitpratap0/nebulaflow/internal/runlock"
	"github.com/ajitpratap0/nebulaflow/internal/scheduler"
	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/clients"
	"github.com/ajitpratap0/nebulaflow/pkg/config"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/logger"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebulaflow/pkg/observability"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile    string
	pipelinesFile string
	logLevel      string
}

// app holds the wired engine and everything that has to be closed with it.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   store.Store
	engine  *pipeline.Engine
	closers []func(context.Context) error
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	if flags.pipelinesFile != "" {
		cfg.Store.PipelinesFile = flags.pipelinesFile
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return cfg, nil
}

// newApp builds the store, lock, notifier and engine described by cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log.With(zap.String("component", "nebulaflow"))}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SamplingRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	if err := a.buildStore(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.Store.PipelinesFile != "" {
		if err := a.seedPipelines(ctx, cfg.Store.PipelinesFile); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	locker, err := a.buildLocker(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	notifier, err := a.buildNotifier()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.engine, err = pipeline.NewEngine(pipeline.Dependencies{
		Store:      a.store,
		Registry:   registry.GetRegistry(),
		Locker:     locker,
		Notifier:   notifier,
		SampleSize: cfg.Engine.DefaultSampleSize,
	}, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) settings() store.Settings {
	return store.Settings{
		FailedRunRetentionDays: a.cfg.Engine.FailedRunRetentionDays,
		Notifications: store.NotificationSettings{
			Enabled:   a.cfg.Notifications.Enabled,
			OnFailure: a.cfg.Notifications.OnFailure,
			OnSuccess: a.cfg.Notifications.OnSuccess,
		},
	}
}

func (a *app) buildStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, a.cfg.Store.DSN, store.PostgresOptions{
			AutoMigrate: a.cfg.Store.AutoMigrate,
			Defaults:    a.settings(),
		}, a.logger)
		if err != nil {
			return err
		}
		a.store = pg
	default:
		a.store = store.NewMemoryStore(a.settings())
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })
	return nil
}

// seedPipelines upserts the definitions of path. The schedule position and
// the incremental checkpoint of a pipeline that already exists are kept.
func (a *app) seedPipelines(ctx context.Context, path string) error {
	pipelines, err := config.LoadPipelines(path)
	if err != nil {
		return fmt.Errorf("failed to load pipelines: %w", err)
	}
	for _, p := range pipelines {
		existing, err := a.store.GetPipeline(ctx, p.ID)
		switch {
		case err == nil:
			carryRuntimeState(p, existing)
		case !nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound):
			return err
		}
		if err := a.store.SavePipeline(ctx, p); err != nil {
			return fmt.Errorf("failed to save pipeline %s: %w", p.ID, err)
		}
	}
	a.logger.Info("pipelines loaded", zap.String("file", path), zap.Int("count", len(pipelines)))
	return nil
}

func carryRuntimeState(p, existing *models.Pipeline) {
	if p.NextRunAt == nil && sameCron(p.CronExpression, existing.CronExpression) {
		p.NextRunAt = existing.NextRunAt
	}
	if p.Incremental != nil && existing.Incremental != nil &&
		p.Incremental.Field == existing.Incremental.Field && p.Incremental.LastValue == "" {
		p.Incremental.LastValue = existing.Incremental.LastValue
	}
	p.CreatedAt = existing.CreatedAt
}

func sameCron(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.TrimSpace(*a) == strings.TrimSpace(*b)
}

func (a *app) buildLocker(ctx context.Context) (runlock.Locker, error) {
	if a.cfg.Lock.Driver != "redis" {
		return runlock.NewMemoryLocker(), nil
	}
	client, err := runlock.Connect(ctx, a.cfg.Lock.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return runlock.NewRedisLocker(client, a.cfg.Lock.TTL, a.logger), nil
}

func (a *app) buildNotifier() (notify.Dispatcher, error) {
	var sink notify.Dispatcher = notify.NewLogDispatcher(a.logger)
	if url := a.cfg.Notifications.WebhookURL; url != "" {
		webhook, err := notify.NewWebhookDispatcher(url, nil, clients.NewHTTPClient(clients.DefaultHTTPConfig(), a.logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return webhook.Close() })
		sink = webhook
	}
	return notify.NewGatedDispatcher(sink, a.store, a.logger), nil
}

func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		PollInterval:   a.cfg.Engine.PollInterval,
		ReaperInterval: a.cfg.Engine.ReaperInterval,
	}, a.store, a.store, a.engine, nil, a.logger)
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
