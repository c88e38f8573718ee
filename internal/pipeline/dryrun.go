package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// DryRun previews a stored pipeline. It never writes to the destination.
func (e *Engine) DryRun(ctx context.Context, pipelineID string, sampleSize int) (*models.DryRunResult, error) {
	p, err := e.pipelines.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	return e.DryRunPipeline(ctx, p, sampleSize)
}

// DryRunPipeline previews p, which need not be stored. Each preview holds at
// most sampleSize records; zero uses the engine default.
func (e *Engine) DryRunPipeline(ctx context.Context, p *models.Pipeline, sampleSize int) (*models.DryRunResult, error) {
	n := sampleSize
	if n <= 0 {
		n = e.sampleSize
	}
	result := &models.DryRunResult{}

	err := e.previewStage(ctx, nebulaerrors.StageSourceRead, func(ctx context.Context) error {
		reader, err := e.registry.ResolveSourceReader(p.Source.Type)
		if err != nil {
			return err
		}
		preview, err := reader.DryRunPreview(ctx, p.Source, n)
		if err != nil {
			return err
		}
		result.SourcePreview = base.Take(preview, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.previewStage(ctx, nebulaerrors.StageMapping, func(context.Context) error {
		var err error
		result.MappedPreview, err = MapRecords(result.SourcePreview, p.FieldMappings)
		return err
	})
	if err != nil {
		return nil, err
	}

	var transformed []*models.Record
	err = e.previewStage(ctx, nebulaerrors.StageTransform, func(context.Context) error {
		t, err := NewTransformer(p.Transformations, e.clock.Now)
		if err != nil {
			return err
		}
		res := t.Apply(result.MappedPreview)
		transformed = res.Records
		result.Skipped = res.Skipped
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.previewStage(ctx, nebulaerrors.StageDestinationWrite, func(ctx context.Context) error {
		writer, err := e.registry.ResolveDestinationWriter(p.Destination.Type)
		if err != nil {
			return err
		}
		preview, err := writer.DryRunPreview(ctx, p.Destination, transformed, n)
		if err != nil {
			return err
		}
		result.TransformedPreview = base.Take(preview, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("dry run complete",
		zap.String("pipeline_id", p.ID),
		zap.Int("source", len(result.SourcePreview)),
		zap.Int("transformed", len(result.TransformedPreview)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}
