// Package scheduler triggers pipelines whose cron schedule is due and clears
// expired run-log snapshots.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/metrics"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultReaperInterval = time.Hour
)

// Runner executes one pipeline run.
type Runner interface {
	RunPipeline(ctx context.Context, pipelineID, triggeredBy string) (*models.PipelineRunLog, error)
}

// Config controls the loop periods.
type Config struct {
	PollInterval   time.Duration
	ReaperInterval time.Duration
}

// Scheduler polls the pipeline store on a fixed interval and starts a run for
// every pipeline whose next run time has passed.
type Scheduler struct {
	pipelines store.PipelineStore
	runs      store.RunLogStore
	runner    Runner
	clock     clockwork.Clock
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	runCtx   context.Context
	wg       sync.WaitGroup
}

// New creates a scheduler. A nil clock uses the real clock.
func New(cfg Config, pipelines store.PipelineStore, runs store.RunLogStore, runner Runner, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = DefaultReaperInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pipelines: pipelines,
		runs:      runs,
		runner:    runner,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "scheduler")),
		inFlight:  make(map[string]struct{}),
	}
}

// Run initializes missing schedules and then ticks until ctx is cancelled.
// The snapshot reaper runs alongside. Runs started by Run observe ctx; call
// Wait to drain them.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.InitializeSchedules(ctx); err != nil {
		s.logger.Error("failed to initialize schedules", zap.Error(err))
	}

	var reaper sync.WaitGroup
	reaper.Add(1)
	go func() {
		defer reaper.Done()
		s.reapLoop(ctx)
	}()
	defer reaper.Wait()

	s.logger.Info("scheduler started", zap.Duration("poll_interval", s.cfg.PollInterval))
	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// Tick starts a run for every due pipeline that is not already running and
// returns how many were started. Failures are logged per pipeline.
func (s *Scheduler) Tick(ctx context.Context) int {
	metrics.SchedulerTicks.Inc()
	now := s.clock.Now()

	due, err := s.pipelines.ListDuePipelines(ctx, now)
	if err != nil {
		metrics.SchedulerErrors.WithLabelValues("list").Inc()
		s.logger.Error("failed to list due pipelines", zap.Error(err))
		return 0
	}

	started := 0
	for _, p := range due {
		if !p.ScheduleEnabled {
			continue
		}
		if p.CronExpression == nil {
			s.disable(ctx, p.ID, errors.New("schedule enabled without a cron expression"))
			continue
		}
		if _, err := ParseCron(*p.CronExpression); err != nil {
			s.disable(ctx, p.ID, err)
			continue
		}
		if !s.claim(p.ID) {
			s.logger.Debug("pipeline still running, skipping", zap.String("pipeline_id", p.ID))
			continue
		}

		started++
		metrics.SchedulerTriggered.Inc()
		s.wg.Add(1)
		go s.runOne(s.runContext(ctx), p.ID, *p.CronExpression)
	}
	return started
}

func (s *Scheduler) runOne(ctx context.Context, pipelineID, expr string) {
	defer s.wg.Done()
	defer s.release(pipelineID)

	log := s.logger.With(zap.String("pipeline_id", pipelineID))
	run, err := s.runner.RunPipeline(ctx, pipelineID, models.TriggeredByScheduler)
	switch {
	case nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConcurrentRun):
		log.Info("scheduled run skipped, pipeline already running")
	case err != nil:
		metrics.SchedulerErrors.WithLabelValues("run").Inc()
		fields := []zap.Field{zap.Error(err)}
		if run != nil {
			fields = append(fields, zap.String("run_id", run.ID))
		}
		log.Warn("scheduled run failed", fields...)
	default:
		log.Info("scheduled run finished", zap.String("run_id", run.ID), zap.Int64("rows_processed", run.RowsProcessed))
	}

	// The next run time is persisted whatever the outcome, also during shutdown.
	persistCtx := context.WithoutCancel(ctx)
	now := s.clock.Now()
	next, err := NextRun(expr, now)
	if err != nil {
		s.disable(persistCtx, pipelineID, err)
		return
	}
	if err := s.pipelines.UpdateNextRun(persistCtx, pipelineID, &next); err != nil {
		metrics.SchedulerErrors.WithLabelValues("store").Inc()
		log.Error("failed to persist next run time", zap.Time("next_run_at", next), zap.Error(err))
		return
	}
	log.Debug("next run scheduled", zap.Time("next_run_at", next))
}

// disable clears the next run time of a pipeline whose schedule cannot be
// evaluated so it stops being due.
func (s *Scheduler) disable(ctx context.Context, pipelineID string, cause error) {
	metrics.SchedulerErrors.WithLabelValues("cron").Inc()
	s.logger.Error("pipeline schedule cannot be evaluated, clearing next run time",
		zap.String("pipeline_id", pipelineID), zap.Error(cause))
	if err := s.pipelines.UpdateNextRun(ctx, pipelineID, nil); err != nil {
		metrics.SchedulerErrors.WithLabelValues("store").Inc()
		s.logger.Error("failed to clear next run time", zap.String("pipeline_id", pipelineID), zap.Error(err))
	}
}

// SetRunContext makes runs started afterwards observe ctx instead of the
// context passed to Run or Tick, so the loop can stop while runs drain.
func (s *Scheduler) SetRunContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = ctx
}

func (s *Scheduler) runContext(tickCtx context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return tickCtx
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[id]; ok {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// InFlight returns how many scheduled runs are executing.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Wait blocks until every run started by Tick has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// InitializeSchedules computes NextRunAt for enabled pipelines that lack one
// and returns how many were set.
func (s *Scheduler) InitializeSchedules(ctx context.Context) (int, error) {
	pipelines, err := s.pipelines.ListPipelines(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	set := 0
	for _, p := range pipelines {
		if !p.ScheduleEnabled || p.NextRunAt != nil || p.CronExpression == nil {
			continue
		}
		next, err := NextRun(*p.CronExpression, now)
		if err != nil {
			s.logger.Error("invalid schedule", zap.String("pipeline_id", p.ID), zap.Error(err))
			continue
		}
		if err := s.pipelines.UpdateNextRun(ctx, p.ID, &next); err != nil {
			return set, err
		}
		set++
	}
	if set > 0 {
		s.logger.Info("schedules initialized", zap.Int("pipelines", set))
	}
	return set, nil
}

// Reap clears snapshots whose retention has passed.
func (s *Scheduler) Reap(ctx context.Context) (int, error) {
	cleared, err := s.runs.ClearExpiredSnapshots(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		metrics.SnapshotsCleared.Add(float64(cleared))
		s.logger.Info("expired snapshots cleared", zap.Int("cleared", cleared))
	}
	return cleared, nil
}

func (s *Scheduler) reapLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Reap(ctx); err != nil {
			metrics.SchedulerErrors.WithLabelValues("reaper").Inc()
			s.logger.Error("snapshot reaper failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}
