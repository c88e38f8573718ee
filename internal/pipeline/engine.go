// Package pipeline executes pipelines: it reads from the source connector,
// maps and transforms records, and writes them to the destination in paced
// batches while recording a run log.
//
// Engine is the entry point used by the scheduler and the CLI:
//
//	engine, err := pipeline.NewEngine(pipeline.Dependencies{
//	    Store:    st,
//	    Registry: registry.GetRegistry(),
//	    Locker:   runlock.NewMemoryLocker(),
//	    Notifier: notify.NewGatedDispatcher(notify.NewLogDispatcher(log), st, log),
//	}, log)
//	run, err := engine.RunPipeline(ctx, "orders-sync", "alice")
//
// A run moves from Running to exactly one of Success or Failed. Failed runs
// carry a snapshot of the configuration they ran with; RetryRun reuses it
// until it expires.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/automap"
	"github.com/ajitpratap0/nebulaflow/internal/notify"
	"github.com/ajitpratap0/nebulaflow/internal/runlock"
	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// Dependencies are the collaborators of an Engine. Store, Registry and Locker
// are required.
type Dependencies struct {
	Store    store.Store
	Registry *registry.Registry
	Locker   runlock.Locker
	Notifier notify.Dispatcher
	Clock    clockwork.Clock
	// SampleSize is used by DryRun when the caller passes zero.
	SampleSize int
	// NewID generates run ids; defaults to random UUIDs.
	NewID func() string
}

// Engine runs, retries and previews pipelines.
type Engine struct {
	pipelines store.PipelineStore
	runs      store.RunLogStore
	settings  store.SettingsStore

	registry   *registry.Registry
	locker     runlock.Locker
	notifier   notify.Dispatcher
	batches    *BatchWriter
	clock      clockwork.Clock
	sampleSize int
	newID      func() string

	logger *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(deps Dependencies, logger *zap.Logger) (*Engine, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Locker == nil {
		return nil, errors.New("pipeline engine requires a store, a connector registry and a run locker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	logger = logger.With(zap.String("component", "pipeline_engine"))

	return &Engine{
		pipelines:  deps.Store,
		runs:       deps.Store,
		settings:   deps.Store,
		registry:   deps.Registry,
		locker:     deps.Locker,
		notifier:   deps.Notifier,
		batches:    NewBatchWriter(deps.Clock, logger),
		clock:      deps.Clock,
		sampleSize: core.SampleSize(deps.SampleSize),
		newID:      deps.NewID,
		logger:     logger,
	}, nil
}

// TestSourceSchema discovers the field names of a source.
func (e *Engine) TestSourceSchema(ctx context.Context, sourceType, connectionString string) ([]string, error) {
	return e.DiscoverSchema(ctx, models.DataSourceConfig{Type: sourceType, ConnectionString: connectionString})
}

// DiscoverSchema discovers the field names of a fully configured source.
func (e *Engine) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	reader, err := e.registry.ResolveSourceReader(cfg.Type)
	if err != nil {
		return nil, err
	}
	return reader.DiscoverSchema(ctx, cfg)
}

// TestConnection opens and closes a connection. Failures are reported in the
// result.
func (e *Engine) TestConnection(ctx context.Context, provider, connectionString string) core.ConnectionTestResult {
	return e.registry.TestConnection(ctx, provider, connectionString)
}

// Automap proposes mappings for destinationFields from sourceFields.
func (e *Engine) Automap(sourceFields, destinationFields []string, existing []models.FieldMap) []models.FieldMap {
	return automap.Automap(sourceFields, destinationFields, existing, automap.Options{})
}

// AutomapPipeline discovers the source schema of a stored pipeline, maps it
// onto the destination schema text and saves the merged mappings. Existing
// mappings are kept.
func (e *Engine) AutomapPipeline(ctx context.Context, pipelineID string) ([]models.FieldMap, error) {
	p, err := e.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	sourceFields, err := e.DiscoverSchema(ctx, p.Source)
	if err != nil {
		return nil, fmt.Errorf("discover source schema: %w", err)
	}
	destFields := p.Destination.SchemaFields()
	if len(destFields) == 0 {
		destFields = DestinationFields(p.FieldMappings)
	}

	maps := e.Automap(sourceFields, destFields, p.FieldMappings)
	p.FieldMappings = maps
	p.UpdatedAt = e.clock.Now()
	if err := e.pipelines.SavePipeline(ctx, p); err != nil {
		return nil, err
	}
	e.logger.Info("pipeline automapped",
		zap.String("pipeline_id", p.ID),
		zap.Int("mappings", len(maps)))
	return maps, nil
}
