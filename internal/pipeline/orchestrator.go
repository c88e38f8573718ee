package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/notify"
	"github.com/ajitpratap0/nebulaflow/internal/runlock"
	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/logger"
	"github.com/ajitpratap0/nebulaflow/pkg/metrics"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebulaflow/pkg/observability"
)

const notifyTimeout = 10 * time.Second

// retryContext links a run to the failed run it retries.
type retryContext struct {
	of           string
	usedSnapshot bool
}

// runOutcome is what the stages produced, also on failure.
type runOutcome struct {
	written   int64
	skipped   int64
	watermark string
}

// RunPipeline executes the stored pipeline once.
//
// A second call for a pipeline that is already running fails with
// ConcurrentRunRejected and creates no run log. When the run itself fails,
// the finalized Failed log is returned together with the stage error.
func (e *Engine) RunPipeline(ctx context.Context, pipelineID, triggeredBy string) (*models.PipelineRunLog, error) {
	release, err := e.acquire(ctx, pipelineID, triggeredBy)
	if err != nil {
		return nil, err
	}
	defer release()

	// Loaded under the lock so the checkpoint written by the previous run is seen.
	p, err := e.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, p, triggeredBy, nil)
}

// RetryRun re-executes a failed run. While the failed run's snapshot is
// retained, the retry uses the frozen configuration; afterwards it uses the
// live pipeline.
func (e *Engine) RetryRun(ctx context.Context, runID, triggeredBy string) (*models.PipelineRunLog, error) {
	prev, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if prev.Status != models.RunStatusFailed {
		return nil, nebulaerrors.ValidationError("run %s is %s; only failed runs can be retried", runID, prev.Status)
	}

	release, err := e.acquire(ctx, prev.PipelineID, triggeredBy)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := e.pipelines.GetPipeline(ctx, prev.PipelineID)
	if err != nil {
		return nil, err
	}

	retry := &retryContext{of: prev.ID}
	if prev.SnapshotUsable(e.clock.Now()) {
		p = p.WithSnapshot(prev.Snapshot)
		retry.usedSnapshot = true
	}
	return e.execute(ctx, p, triggeredBy, retry)
}

// acquire takes the per-pipeline run lock. A held lock is reported as
// ConcurrentRunRejected.
func (e *Engine) acquire(ctx context.Context, pipelineID, triggeredBy string) (func(), error) {
	lease, err := e.locker.TryAcquire(ctx, pipelineID)
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			metrics.RunsRejected.Inc()
			e.logger.Info("run rejected, pipeline already running",
				zap.String("pipeline_id", pipelineID),
				zap.String("triggered_by", triggeredBy))
			return nil, nebulaerrors.ConcurrentRunRejected(pipelineID)
		}
		return nil, fmt.Errorf("acquire run lock for %s: %w", pipelineID, err)
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("failed to release run lock", zap.String("pipeline_id", pipelineID), zap.Error(err))
		}
	}, nil
}

// execute runs p. The caller holds the pipeline's run lock.
func (e *Engine) execute(ctx context.Context, p *models.Pipeline, triggeredBy string, retry *retryContext) (*models.PipelineRunLog, error) {
	run := &models.PipelineRunLog{
		ID:          e.newID(),
		PipelineID:  p.ID,
		StartedAt:   e.clock.Now(),
		Status:      models.RunStatusRunning,
		TriggeredBy: triggeredBy,
	}
	if retry != nil {
		of := retry.of
		run.RetryOf = &of
		run.UsedSnapshot = retry.usedSnapshot
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	metrics.InFlightRuns.Inc()
	defer metrics.InFlightRuns.Dec()

	ctx = logger.ContextWithPipeline(ctx, p.ID, run.ID)
	log := logger.FromContext(ctx, e.logger)
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		observability.PipelineIDKey.String(p.ID),
		observability.RunIDKey.String(run.ID))

	log.Info("pipeline run started",
		zap.String("triggered_by", triggeredBy),
		zap.Bool("used_snapshot", run.UsedSnapshot))

	out, runErr := e.runStages(ctx, p, log)

	// The terminal state is written even when ctx was cancelled.
	done := context.WithoutCancel(ctx)
	now := e.clock.Now()
	if runErr != nil {
		settings := e.currentSettings(done, log)
		stage, _ := nebulaerrors.StageOf(runErr)
		run.MarkFailed(now, string(stage), nebulaerrors.Flatten(runErr), out.written, out.skipped,
			models.CaptureSnapshot(p, now), settings.Retention())
	} else {
		run.MarkSuccess(now, out.written, out.skipped)
	}

	span.SetAttributes(observability.RowsKey.Int64(out.written))
	observability.EndSpan(span, runErr)
	metrics.ObserveRun(string(run.Status), triggerLabel(triggeredBy), now.Sub(run.StartedAt))

	if err := e.runs.FinalizeRun(done, run); err != nil {
		log.Error("failed to finalize run log", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("finalize run log: %w", err)
		}
		return run, runErr
	}

	if runErr != nil {
		log.Warn("pipeline run failed",
			zap.String("stage", run.Stage),
			zap.Int64("rows_processed", run.RowsProcessed),
			zap.String("error", *run.ErrorMessage))
	} else {
		log.Info("pipeline run succeeded",
			zap.Int64("rows_processed", run.RowsProcessed),
			zap.Int64("rows_skipped", run.RowsSkipped),
			zap.Int64p("duration_ms", run.DurationMs))
		e.advanceWatermark(done, p, out.watermark, log)
	}

	e.dispatch(done, p, run, log)
	return run, runErr
}

func (e *Engine) runStages(ctx context.Context, p *models.Pipeline, log *zap.Logger) (runOutcome, error) {
	var out runOutcome

	var wm *core.Watermark
	if p.Incremental != nil {
		wm = core.NewWatermark(p.Incremental.Field, p.Incremental.LastValue)
	}

	var records []*models.Record
	err := e.stage(ctx, nebulaerrors.StageSourceRead, func(ctx context.Context) error {
		reader, err := e.registry.ResolveSourceReader(p.Source.Type)
		if err != nil {
			return err
		}
		records, err = reader.Read(ctx, p.Source, wm)
		if err != nil {
			return err
		}
		if p.Incremental != nil {
			out.watermark, _ = base.MaxWatermark(records, p.Incremental.Field)
		}
		log.Debug("source read", zap.Int("records", len(records)), zap.Bool("incremental", wm != nil))
		return nil
	})
	if err != nil {
		return out, err
	}

	var mapped []*models.Record
	err = e.stage(ctx, nebulaerrors.StageMapping, func(context.Context) error {
		var err error
		mapped, err = MapRecords(records, p.FieldMappings)
		return err
	})
	if err != nil {
		return out, err
	}

	var transformed []*models.Record
	err = e.stage(ctx, nebulaerrors.StageTransform, func(context.Context) error {
		t, err := NewTransformer(p.Transformations, e.clock.Now)
		if err != nil {
			return err
		}
		res := t.Apply(mapped)
		transformed = res.Records
		out.skipped = int64(len(res.Skipped))
		for _, sk := range res.Skipped {
			metrics.RecordsSkipped.WithLabelValues(sk.Transformation).Inc()
		}
		if len(res.Skipped) > 0 {
			log.Warn("records skipped by transformations",
				zap.Int("skipped", len(res.Skipped)),
				zap.String("first_error", res.Skipped[0].Error))
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	err = e.stage(ctx, nebulaerrors.StageDestinationWrite, func(ctx context.Context) error {
		writer, err := e.registry.ResolveDestinationWriter(p.Destination.Type)
		if err != nil {
			return err
		}
		out.written, err = e.batches.Write(ctx, transformed, BatchConfigFor(p), func(ctx context.Context, chunk []*models.Record) error {
			return writer.Write(ctx, p.Destination, chunk)
		})
		return err
	})
	return out, err
}

// stage runs fn as one tagged execution stage of a run.
func (e *Engine) stage(ctx context.Context, stage nebulaerrors.Stage, fn func(context.Context) error) error {
	return e.runStage(ctx, stage, "pipeline.stage.", true, fn)
}

// previewStage runs a dry run stage. It is traced under its own span name and
// kept out of the stage metrics.
func (e *Engine) previewStage(ctx context.Context, stage nebulaerrors.Stage, fn func(context.Context) error) error {
	return e.runStage(ctx, stage, "pipeline.preview.", false, fn)
}

// runStage checks cancellation, then runs fn and tags its error with stage.
func (e *Engine) runStage(ctx context.Context, stage nebulaerrors.Stage, spanPrefix string, observe bool, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return nebulaerrors.ExecutionError(stage, nebulaerrors.Cancelled(err))
	}

	ctx, span := observability.StartSpan(ctx, spanPrefix+string(stage),
		observability.StageKey.String(string(stage)))
	start := e.clock.Now()
	err := fn(ctx)
	if observe {
		metrics.ObserveStage(string(stage), e.clock.Since(start), err)
	}
	observability.EndSpan(span, err)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !nebulaerrors.IsType(err, nebulaerrors.ErrorTypeCancelled) {
		err = nebulaerrors.Cancelled(err)
	}
	return nebulaerrors.ExecutionError(stage, err)
}

func (e *Engine) currentSettings(ctx context.Context, log *zap.Logger) store.Settings {
	s, err := e.settings.Settings(ctx)
	if err != nil {
		log.Warn("failed to load settings, using defaults", zap.Error(err))
		return store.DefaultSettings()
	}
	return s
}

// advanceWatermark moves the live checkpoint forward. It never moves it back.
func (e *Engine) advanceWatermark(ctx context.Context, p *models.Pipeline, value string, log *zap.Logger) {
	if p.Incremental == nil || value == "" {
		return
	}
	if p.Incremental.LastValue != "" && base.CompareWatermark(value, p.Incremental.LastValue) <= 0 {
		return
	}
	if err := e.pipelines.UpdateWatermark(ctx, p.ID, value); err != nil {
		log.Error("failed to advance watermark", zap.String("watermark", value), zap.Error(err))
		return
	}
	log.Debug("watermark advanced", zap.String("field", p.Incremental.Field), zap.String("watermark", value))
}

// dispatch sends the outcome notification. Its failures are logged only.
func (e *Engine) dispatch(ctx context.Context, p *models.Pipeline, run *models.PipelineRunLog, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("notification dispatcher panicked", zap.Any("panic", r))
		}
	}()

	at := e.clock.Now()
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}

	var err error
	if run.Status == models.RunStatusFailed {
		msg := ""
		if run.ErrorMessage != nil {
			msg = *run.ErrorMessage
		}
		err = e.notifier.SendFailure(ctx, notify.FailureNotification{
			PipelineID:   p.ID,
			PipelineName: p.Name,
			ErrorMessage: msg,
			Stage:        run.Stage,
			TriggeredBy:  run.TriggeredBy,
			Timestamp:    at,
		})
	} else {
		err = e.notifier.SendSuccess(ctx, notify.SuccessNotification{
			PipelineID:    p.ID,
			PipelineName:  p.Name,
			RowsProcessed: run.RowsProcessed,
			TriggeredBy:   run.TriggeredBy,
			Timestamp:     at,
		})
	}
	if err != nil {
		log.Warn("notification dispatch failed", zap.Error(err))
	}
}

// triggerLabel keeps the metric label set bounded.
func triggerLabel(triggeredBy string) string {
	if triggeredBy == models.TriggeredByScheduler {
		return "scheduler"
	}
	return "manual"
}
