package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

func TestRunPipelineSuccess(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(25)
	p := fakePipeline("p1", "in")
	p.BatchSize = intPtr(10)
	p.FieldMappings = []models.FieldMap{{SourceField: "seq", DestinationField: "id"}}
	h.save(t, p)

	run, err := h.engine.RunPipeline(context.Background(), "p1", "alice")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, int64(25), run.RowsProcessed)
	assert.Equal(t, "alice", run.TriggeredBy)
	assert.Nil(t, run.Snapshot)
	assert.Equal(t, []int{10, 10, 5}, h.dest.writes())

	stored, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, stored.Status)

	require.Len(t, h.notifier.successes, 1)
	assert.Equal(t, int64(25), h.notifier.successes[0].RowsProcessed)
	assert.Equal(t, "pipeline p1", h.notifier.successes[0].PipelineName)
	assert.False(t, h.locker.Held("p1"))
}

func TestRunPipelineFailureCapturesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(25)
	h.dest.failures = 1
	p := fakePipeline("p1", "in")
	p.BatchSize = intPtr(10)
	p.Transformations = []string{"trim"}
	h.save(t, p)

	run, err := h.engine.RunPipeline(context.Background(), "p1", "alice")
	require.Error(t, err)
	stage, ok := nebulaerrors.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, nebulaerrors.StageDestinationWrite, stage)

	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, "DestinationWrite", run.Stage)
	assert.Equal(t, int64(0), run.RowsProcessed)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "DestinationWrite stage failed --> destination rejected batch", *run.ErrorMessage)

	require.NotNil(t, run.Snapshot)
	assert.Equal(t, "in", run.Snapshot.Source.ConnectionString)
	assert.Equal(t, []string{"trim"}, run.Snapshot.Transformations)
	require.NotNil(t, run.FinishedAt)
	require.NotNil(t, run.SnapshotExpiresAt)
	assert.Equal(t, run.FinishedAt.Add(7*24*time.Hour), *run.SnapshotExpiresAt)

	require.Len(t, h.notifier.failures, 1)
	assert.Equal(t, "DestinationWrite", h.notifier.failures[0].Stage)
	assert.Equal(t, *run.ErrorMessage, h.notifier.failures[0].ErrorMessage)
}

func TestRunPipelineStageTagging(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness, p *models.Pipeline)
		wantStage string
		wantMsg   string
	}{
		{
			name:      "unknown source type",
			setup:     func(_ *harness, p *models.Pipeline) { p.Source.Type = "ftp" },
			wantStage: "SourceRead",
			wantMsg:   `no source connector registered for type "ftp"`,
		},
		{
			name:      "source failure",
			setup:     func(h *harness, _ *models.Pipeline) { h.source.err = errors.New("connection refused") },
			wantStage: "SourceRead",
			wantMsg:   "SourceRead stage failed --> connection refused",
		},
		{
			name:      "unknown transformation",
			setup:     func(_ *harness, p *models.Pipeline) { p.Transformations = []string{"explode"} },
			wantStage: "Transform",
			wantMsg:   `unknown transformation "explode"`,
		},
		{
			name:      "unknown destination type",
			setup:     func(_ *harness, p *models.Pipeline) { p.Destination.Type = "ftp" },
			wantStage: "DestinationWrite",
			wantMsg:   "ftp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.source.datasets["in"] = seq(3)
			p := fakePipeline("p1", "in")
			tt.setup(h, p)
			h.save(t, p)

			run, err := h.engine.RunPipeline(context.Background(), "p1", "alice")
			require.Error(t, err)
			assert.Equal(t, models.RunStatusFailed, run.Status)
			assert.Equal(t, tt.wantStage, run.Stage)
			assert.Contains(t, *run.ErrorMessage, tt.wantMsg)
		})
	}
}

func TestRunPipelineCountsSkippedRecords(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = []*models.Record{rec("n", "1"), rec("n", "x"), rec("n", "3")}
	p := fakePipeline("p1", "in")
	p.Transformations = []string{"cast:n:int"}
	h.save(t, p)

	run, err := h.engine.RunPipeline(context.Background(), "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), run.RowsProcessed)
	assert.Equal(t, int64(1), run.RowsSkipped)
}

func TestRunPipelineCancelled(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(3)
	h.save(t, fakePipeline("p1", "in"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := h.engine.RunPipeline(ctx, "p1", "alice")
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeCancelled))

	stored, getErr := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, "SourceRead", stored.Stage)
	assert.Contains(t, *stored.ErrorMessage, "run cancelled")
	assert.Empty(t, h.dest.writes())
}

func TestRunPipelineRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(5)
	h.dest.entered = make(chan struct{}, 1)
	h.dest.block = make(chan struct{})
	h.save(t, fakePipeline("p1", "in"))

	type result struct {
		run *models.PipelineRunLog
		err error
	}
	first := make(chan result, 1)
	go func() {
		run, err := h.engine.RunPipeline(context.Background(), "p1", "alice")
		first <- result{run, err}
	}()

	select {
	case <-h.dest.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the destination")
	}

	run, err := h.engine.RunPipeline(context.Background(), "p1", "bob")
	assert.Nil(t, run)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConcurrentRun))

	runs, err := h.store.ListRuns(context.Background(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusRunning, runs[0].Status)

	close(h.dest.block)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, models.RunStatusSuccess, res.run.Status)

	h.dest.entered = nil
	h.dest.block = nil
	_, err = h.engine.RunPipeline(context.Background(), "p1", "bob")
	assert.NoError(t, err, "the lock is released after the first run")
}

func TestRetryRunUsesSnapshotUntilExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.datasets["v1"] = seq(4)
	h.source.datasets["v2"] = seq(2)
	h.dest.failures = 1
	h.save(t, fakePipeline("p1", "v1"))

	failed, err := h.engine.RunPipeline(ctx, "p1", "alice")
	require.Error(t, err)
	require.Equal(t, models.RunStatusFailed, failed.Status)

	live, err := h.store.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	live.Source.ConnectionString = "v2"
	h.save(t, live)

	retry, err := h.engine.RetryRun(ctx, failed.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v1", h.source.lastSeen())
	assert.True(t, retry.UsedSnapshot)
	require.NotNil(t, retry.RetryOf)
	assert.Equal(t, failed.ID, *retry.RetryOf)
	assert.Equal(t, int64(4), retry.RowsProcessed)

	h.clock.Advance(8 * 24 * time.Hour)
	late, err := h.engine.RetryRun(ctx, failed.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", h.source.lastSeen())
	assert.False(t, late.UsedSnapshot)
	assert.Equal(t, int64(2), late.RowsProcessed)

	_, err = h.engine.RetryRun(ctx, retry.ID, "alice")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeValidation), "successful runs cannot be retried")
}

func TestRunPipelineAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.datasets["in"] = seq(5)
	p := fakePipeline("p1", "in")
	p.Incremental = &models.IncrementalConfig{Field: "seq"}
	h.save(t, p)

	run, err := h.engine.RunPipeline(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), run.RowsProcessed)

	stored, err := h.store.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "5", stored.Incremental.LastValue)

	h.source.datasets["in"] = seq(8)
	run, err = h.engine.RunPipeline(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), run.RowsProcessed)

	run, err = h.engine.RunPipeline(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), run.RowsProcessed)
	stored, err = h.store.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "8", stored.Incremental.LastValue)
}

func TestNotificationFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(2)
	h.notifier.err = errors.New("smtp down")
	h.save(t, fakePipeline("p1", "in"))

	run, err := h.engine.RunPipeline(context.Background(), "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
}

func TestRunPipelineNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.RunPipeline(context.Background(), "missing", "alice")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound))
}

// stallingStore holds the first GetPipeline call until release is closed.
type stallingStore struct {
	*store.MemoryStore
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (s *stallingStore) GetPipeline(ctx context.Context, id string) (*models.Pipeline, error) {
	stall := false
	s.once.Do(func() { stall = true })
	if stall {
		close(s.reached)
		<-s.release
	}
	return s.MemoryStore.GetPipeline(ctx, id)
}

func TestRunPipelineLoadsCheckpointUnderLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.datasets["in"] = seq(5)
	p := fakePipeline("p1", "in")
	p.Incremental = &models.IncrementalConfig{Field: "seq"}
	h.save(t, p)

	slow := &stallingStore{
		MemoryStore: h.store,
		reached:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	stalled, err := NewEngine(Dependencies{
		Store:    slow,
		Registry: h.registry,
		Locker:   h.locker,
		Notifier: h.notifier,
		Clock:    h.clock,
	}, zap.NewNop())
	require.NoError(t, err)

	type result struct {
		run *models.PipelineRunLog
		err error
	}
	first := make(chan result, 1)
	go func() {
		run, err := stalled.RunPipeline(ctx, "p1", "scheduler")
		first <- result{run, err}
	}()

	select {
	case <-slow.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never loaded the pipeline")
	}

	_, err = h.engine.RunPipeline(ctx, "p1", "alice")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConcurrentRun),
		"the lock is held while the pipeline is being loaded")

	close(slow.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, int64(5), res.run.RowsProcessed)

	run, err := h.engine.RunPipeline(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), run.RowsProcessed)
	assert.Equal(t, []int{5}, h.dest.writes(), "no row is written twice")
}
