package json

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/testutil"
)

var rec = testutil.Record

func TestWriteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	cfg := models.DataSourceConfig{ConnectionString: path}
	dst := NewJSONDestination()

	require.NoError(t, dst.Write(context.Background(), cfg, []*models.Record{rec("b", 1, "a", "x")}))
	require.NoError(t, dst.Write(context.Background(), cfg, []*models.Record{rec("b", 2, "a", "y")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"b\":1,\"a\":\"x\"}\n{\"b\":2,\"a\":\"y\"}\n", string(data))
}

func TestWriteArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cfg := models.DataSourceConfig{ConnectionString: path, Parameters: map[string]string{"format": "array"}}
	dst := NewJSONDestination()

	require.NoError(t, dst.Write(context.Background(), cfg, []*models.Record{rec("id", 1)}))
	require.NoError(t, dst.Write(context.Background(), cfg, []*models.Record{rec("id", 2), rec("id", 3)}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := models.DecodeRecords(f, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	last, _ := records[2].GetData("id")
	assert.Equal(t, int64(3), last)
}

func TestWriteUnknownFormat(t *testing.T) {
	cfg := models.DataSourceConfig{
		ConnectionString: filepath.Join(t.TempDir(), "out.json"),
		Parameters:       map[string]string{"format": "xml"},
	}
	err := NewJSONDestination().Write(context.Background(), cfg, []*models.Record{rec("a", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}
