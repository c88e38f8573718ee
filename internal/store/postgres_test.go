package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebulaflow/pkg/testutil"
)

func TestPipelineModelRoundTrip(t *testing.T) {
	next := t0.Add(time.Hour)
	p := scheduled(testPipeline("p1"), next)
	p.Incremental = &models.IncrementalConfig{Field: "id", LastValue: "42"}
	p.FieldMappings = []models.FieldMap{{SourceField: "a", DestinationField: "b"}}

	row, err := toPipelineModel(p)
	require.NoError(t, err)
	assert.True(t, row.ScheduleEnabled)
	assert.Equal(t, &next, row.NextRunAt)

	later := next.Add(time.Hour)
	row.NextRunAt = &later
	got, err := fromPipelineModel(row)
	require.NoError(t, err)
	assert.Equal(t, later, *got.NextRunAt, "mirrored columns win over the document")
	assert.Equal(t, "42", got.Incremental.LastValue)
	assert.Equal(t, "b", got.FieldMappings[0].DestinationField)
}

func TestRunModelSnapshot(t *testing.T) {
	run := &models.PipelineRunLog{ID: "r1", PipelineID: "p1", StartedAt: t0, Status: models.RunStatusRunning}
	row, err := toRunModel(run)
	require.NoError(t, err)
	assert.Nil(t, row.Snapshot)

	run.MarkFailed(t0.Add(time.Second), "Transform", "bad cast", 3, 1, models.CaptureSnapshot(testPipeline("p1"), t0), 24*time.Hour)
	row, err = toRunModel(run)
	require.NoError(t, err)
	assert.NotEmpty(t, row.Snapshot)

	got, err := fromRunModel(row)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, "memory", got.Snapshot.Source.Type)
	assert.True(t, got.SnapshotUsable(t0.Add(time.Hour)))
}

func TestSettingsModel(t *testing.T) {
	s := Settings{FailedRunRetentionDays: 3, Notifications: NotificationSettings{Enabled: true, OnSuccess: true}}
	row := toSettingsModel(s)
	assert.Equal(t, 1, row.ID)
	assert.Equal(t, s, fromSettingsModel(row))
}

// postgresSuite runs against a live database when
// NEBULAFLOW_TEST_POSTGRES_DSN is set.
type postgresSuite struct {
	testutil.IntegrationTestSuite
	store *PostgresStore
}

func (s *postgresSuite) SetupSuite() {
	dsn := testutil.RequireEnv(s.T(), testutil.PostgresDSNEnv)
	s.IntegrationTestSuite.SetupSuite()

	pg, err := OpenPostgres(s.Context(), dsn, PostgresOptions{MaxConns: 4, AutoMigrate: true, Defaults: DefaultSettings()}, testutil.TestLogger(s.T()))
	s.Require().NoError(err)
	s.store = pg
}

func (s *postgresSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
	s.IntegrationTestSuite.TearDownSuite()
}

func (s *postgresSuite) newPipeline() *models.Pipeline {
	id := "it-" + uuid.NewString()
	p := scheduled(testPipeline(id), time.Now().Add(-time.Minute).UTC())
	p.Incremental = &models.IncrementalConfig{Field: "id"}
	s.Require().NoError(s.store.SavePipeline(s.Context(), p))
	s.T().Cleanup(func() { _ = s.store.DeletePipeline(context.Background(), id) })
	return p
}

func (s *postgresSuite) TestDueAndWatermark() {
	ctx := s.Context()
	p := s.newPipeline()

	due, err := s.store.ListDuePipelines(ctx, time.Now())
	s.Require().NoError(err)
	found := false
	for _, d := range due {
		found = found || d.ID == p.ID
	}
	s.True(found)

	s.Require().NoError(s.store.UpdateWatermark(ctx, p.ID, "99"))
	got, err := s.store.GetPipeline(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("99", got.Incremental.LastValue)

	s.Require().NoError(s.store.UpdateNextRun(ctx, p.ID, nil))
	got, err = s.store.GetPipeline(ctx, p.ID)
	s.Require().NoError(err)
	s.Nil(got.NextRunAt)
}

func (s *postgresSuite) TestRunLifecycle() {
	ctx := s.Context()
	p := s.newPipeline()

	run := &models.PipelineRunLog{ID: uuid.NewString(), PipelineID: p.ID, StartedAt: time.Now().UTC(), Status: models.RunStatusRunning}
	s.Require().NoError(s.store.CreateRun(ctx, run))
	run.MarkSuccess(time.Now().UTC(), 10, 0)
	s.Require().NoError(s.store.FinalizeRun(ctx, run))
	s.Error(s.store.FinalizeRun(ctx, run))

	runs, err := s.store.ListRuns(ctx, p.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(models.RunStatusSuccess, runs[0].Status)

	_, err = s.store.GetRun(ctx, "missing-"+p.ID)
	s.True(nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound))
}

func TestPostgresStore(t *testing.T) {
	suite.Run(t, new(postgresSuite))
}
