package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/metrics"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

func TestDryRunNeverWrites(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(30)
	p := fakePipeline("p1", "in")
	p.FieldMappings = []models.FieldMap{{SourceField: "seq", DestinationField: "id"}, {SourceField: "name", DestinationField: "label"}}
	p.Transformations = []string{"uppercase"}
	h.save(t, p)

	res, err := h.engine.DryRun(context.Background(), "p1", 5)
	require.NoError(t, err)

	assert.Len(t, res.SourcePreview, 5)
	assert.Len(t, res.MappedPreview, 5)
	assert.Len(t, res.TransformedPreview, 5)
	assert.Equal(t, []string{"seq", "name"}, res.SourcePreview[0].Fields())
	assert.Equal(t, []string{"id", "label"}, res.MappedPreview[0].Fields())
	v, _ := res.TransformedPreview[0].GetData("label")
	assert.Equal(t, "ROW", v)
	m, _ := res.MappedPreview[0].GetData("label")
	assert.Equal(t, "row", m, "the mapped preview is not changed by transformations")

	assert.Empty(t, h.dest.writes())
	runs, err := h.store.ListRuns(context.Background(), "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDryRunDefaultsAndSkips(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = append([]*models.Record{rec("seq", "bad")}, seq(20)...)
	p := fakePipeline("p1", "in")
	p.Transformations = []string{"cast:seq:int"}

	res, err := h.engine.DryRunPipeline(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Len(t, res.SourcePreview, 10)
	assert.Len(t, res.TransformedPreview, 9)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 0, res.Skipped[0].Index)
}

func stageSamples(t *testing.T, stage nebulaerrors.Stage) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.StageDuration.WithLabelValues(string(stage), "success").(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func skippedTotal(t *testing.T, transformation string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.RecordsSkipped.WithLabelValues(transformation).Write(&m))
	return m.GetCounter().GetValue()
}

func TestDryRunStaysOutOfRunMetrics(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = append([]*models.Record{rec("seq", "bad")}, seq(4)...)
	p := fakePipeline("p1", "in")
	p.Transformations = []string{"cast:seq:int"}
	h.save(t, p)

	reads := stageSamples(t, nebulaerrors.StageSourceRead)
	skipped := skippedTotal(t, "cast")

	res, err := h.engine.DryRun(context.Background(), "p1", 5)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "cast", res.Skipped[0].Transformation)
	assert.Equal(t, reads, stageSamples(t, nebulaerrors.StageSourceRead))
	assert.Equal(t, skipped, skippedTotal(t, "cast"))

	_, err = h.engine.RunPipeline(context.Background(), "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, reads+1, stageSamples(t, nebulaerrors.StageSourceRead))
	assert.Equal(t, skipped+1, skippedTotal(t, "cast"))
}

func TestDryRunUnknownTransformation(t *testing.T) {
	h := newHarness(t)
	h.source.datasets["in"] = seq(3)
	p := fakePipeline("p1", "in")
	p.Transformations = []string{"explode"}

	_, err := h.engine.DryRunPipeline(context.Background(), p, 3)
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeValidation))
	stage, _ := nebulaerrors.StageOf(err)
	assert.Equal(t, nebulaerrors.StageTransform, stage)
}

func TestSchemaConnectionAndAutomap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.datasets["crm"] = []*models.Record{rec("FirstName", "Ada", "last_name", "Lovelace", "EmailAddress", "ada@x.io")}

	fields, err := h.engine.TestSourceSchema(ctx, "fake", "crm")
	require.NoError(t, err)
	assert.Equal(t, []string{"FirstName", "last_name", "EmailAddress"}, fields)

	_, err = h.engine.TestSourceSchema(ctx, "ftp", "x")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeUnknownConnector))

	res := h.engine.TestConnection(ctx, "ftp", "x")
	assert.False(t, res.Success)

	maps := h.engine.Automap(fields, []string{"first_name", "lastname", "email_address"}, nil)
	require.Len(t, maps, 3)

	schema := "first_name, lastname"
	p := fakePipeline("p1", "crm")
	p.Destination.Schema = &schema
	h.save(t, p)

	saved, err := h.engine.AutomapPipeline(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	stored, err := h.store.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, saved, stored.FieldMappings)
	for _, m := range stored.FieldMappings {
		assert.True(t, m.IsAutomapped)
	}
}
