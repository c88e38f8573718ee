package influxutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		wm    *core.Watermark
		limit int
		want  string
	}{
		{"full", nil, 0, `SELECT * FROM "cpu" ORDER BY "time"`},
		{"preview", nil, 10, `SELECT * FROM "cpu" ORDER BY "time" LIMIT 10`},
		{"numeric", core.NewWatermark("seq", "42"), 0, `SELECT * FROM "cpu" WHERE "seq" > 42 ORDER BY "seq"`},
		{"time", core.NewWatermark("time", "2024-01-02"), 0, `SELECT * FROM "cpu" WHERE "time" > '2024-01-02T00:00:00Z' ORDER BY "time"`},
		{"text", core.NewWatermark("host", "o'neil"), 0, `SELECT * FROM "cpu" WHERE "host" > 'o''neil' ORDER BY "host"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery("cpu", tt.wm, tt.limit))
		})
	}
}

func TestToRecordOrdersTimeFirst(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := ToRecord(map[string]interface{}{"usage": 0.5, "host": "a", "time": ts})
	assert.Equal(t, []string{"time", "host", "usage"}, r.Fields())
	v, _ := r.GetData("time")
	assert.Equal(t, ts, v)
}

func TestSplitRecord(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := models.NewRecord(4)
	r.SetData("host", "web-1")
	r.SetData("usage", 3)
	r.SetData("at", "2024-01-01T10:00:00Z")
	r.SetData("note", nil)

	spec, err := SplitRecord(r, []string{"host"}, "at", now)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"host": "web-1"}, spec.Tags)
	assert.Equal(t, map[string]interface{}{"usage": int64(3)}, spec.Fields)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), spec.Timestamp)

	spec, err = SplitRecord(r, nil, "", now)
	require.NoError(t, err)
	assert.Equal(t, now, spec.Timestamp)
	assert.Len(t, spec.Fields, 3)

	onlyTag := models.NewRecord(1)
	onlyTag.SetData("host", "x")
	_, err = SplitRecord(onlyTag, []string{"host"}, "", now)
	assert.Error(t, err)

	badTime := models.NewRecord(2)
	badTime.SetData("at", "yesterday")
	badTime.SetData("v", 1)
	_, err = SplitRecord(badTime, nil, "at", now)
	assert.Error(t, err)
}

func TestMeasurementRequired(t *testing.T) {
	_, err := Measurement(models.DataSourceConfig{})
	assert.Error(t, err)

	m, err := Measurement(models.DataSourceConfig{Parameters: map[string]string{"measurement": "cpu"}})
	require.NoError(t, err)
	assert.Equal(t, "cpu", m)
}
