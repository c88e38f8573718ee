package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

func TestWriteValidatesTarget(t *testing.T) {
	r := models.NewRecord(1)
	r.SetData("a", 1)
	err := NewMongoDBDestination().Write(context.Background(), models.DataSourceConfig{ConnectionString: "mongodb://localhost"}, []*models.Record{r})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database and collection")

	assert.NoError(t, NewMongoDBDestination().Write(context.Background(), models.DataSourceConfig{}, nil))
}

func TestPreviewEchoes(t *testing.T) {
	records := []*models.Record{models.NewRecord(0), models.NewRecord(0), models.NewRecord(0)}
	out, err := NewMongoDBDestination().DryRunPreview(context.Background(), models.DataSourceConfig{}, records, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
