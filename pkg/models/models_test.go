package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

func TestRecordPreservesOrder(t *testing.T) {
	r := NewRecord(3)
	r.SetData("zeta", 1)
	r.SetData("alpha", "a")
	r.SetData("mid", nil)
	r.SetData("zeta", 2)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Fields())
	v, ok := r.GetData("zeta")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	r.Delete("alpha")
	assert.Equal(t, []string{"zeta", "mid"}, r.Fields())
	assert.Equal(t, 2, r.Len())
}

func TestRecordJSONRoundTripKeepsOrder(t *testing.T) {
	input := `{"b":1,"a":"x","c":{"n":2.5},"d":[1,"two",null],"e":true,"f":null}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(input), &r))
	assert.Equal(t, []string{"b", "a", "c", "d", "e", "f"}, r.Fields())

	b, _ := r.GetData("b")
	assert.Equal(t, int64(1), b)
	c, _ := r.GetData("c")
	assert.Equal(t, map[string]interface{}{"n": 2.5}, c)
	d, _ := r.GetData("d")
	assert.Equal(t, []interface{}{int64(1), "two", nil}, d)

	out, err := json.Marshal(&r)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := NewRecord(1)
	r.SetData("nested", map[string]interface{}{"k": "v"})

	c := r.Clone()
	nested, _ := c.GetData("nested")
	nested.(map[string]interface{})["k"] = "changed"

	orig, _ := r.GetData("nested")
	assert.Equal(t, "v", orig.(map[string]interface{})["k"])
}

func TestValueString(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{true, "true"},
		{ts, "2024-01-02T03:04:05Z"},
		{[]interface{}{int64(1)}, "[1]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValueString(tt.in))
	}
}

func TestValidateFieldMappings(t *testing.T) {
	err := ValidateFieldMappings([]FieldMap{
		{SourceField: "a", DestinationField: "x"},
		{SourceField: "b", DestinationField: "x"},
	})
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeValidation))

	assert.Error(t, ValidateFieldMappings([]FieldMap{{SourceField: "a"}}))
	assert.NoError(t, ValidateFieldMappings([]FieldMap{
		{SourceField: "a", DestinationField: "x"},
		{SourceField: "a", DestinationField: "y"},
	}))
}

func TestPipelineValidate(t *testing.T) {
	valid := func() *Pipeline {
		return &Pipeline{
			ID:          "p-1",
			Source:      DataSourceConfig{Type: "csv"},
			Destination: DataSourceConfig{Type: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *Pipeline)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *Pipeline) {}},
		{name: "missing id", mutate: func(p *Pipeline) { p.ID = "" }, wantErr: true},
		{name: "missing source type", mutate: func(p *Pipeline) { p.Source.Type = "" }, wantErr: true},
		{name: "schedule without cron", mutate: func(p *Pipeline) { p.ScheduleEnabled = true }, wantErr: true},
		{name: "negative batch", mutate: func(p *Pipeline) { n := -1; p.BatchSize = &n }, wantErr: true},
		{name: "incremental without field", mutate: func(p *Pipeline) { p.Incremental = &IncrementalConfig{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSnapshotIsIsolatedFromLivePipeline(t *testing.T) {
	size := 10
	p := &Pipeline{
		ID:              "p-1",
		Source:          DataSourceConfig{Type: "csv", ConnectionString: "in.csv", Parameters: map[string]string{"delimiter": ","}},
		Destination:     DataSourceConfig{Type: "json", ConnectionString: "out.json"},
		FieldMappings:   []FieldMap{{SourceField: "a", DestinationField: "b"}},
		Transformations: []string{"trim_strings"},
		BatchSize:       &size,
	}

	snap := CaptureSnapshot(p, time.Now())

	p.Source.ConnectionString = "edited.csv"
	p.Source.Parameters["delimiter"] = ";"
	p.FieldMappings[0].DestinationField = "changed"
	p.Transformations[0] = "uppercase"
	*p.BatchSize = 99

	assert.Equal(t, "in.csv", snap.Source.ConnectionString)
	assert.Equal(t, ",", snap.Source.Parameters["delimiter"])
	assert.Equal(t, "b", snap.FieldMappings[0].DestinationField)
	assert.Equal(t, []string{"trim_strings"}, snap.Transformations)
	assert.Equal(t, 10, *snap.BatchSize)

	replay := p.WithSnapshot(snap)
	assert.Equal(t, "in.csv", replay.Source.ConnectionString)
	assert.Equal(t, "p-1", replay.ID)
}

func TestRunLogLifecycle(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	log := &PipelineRunLog{ID: "r-1", PipelineID: "p-1", StartedAt: start, Status: RunStatusRunning}
	assert.False(t, log.IsTerminal())

	end := start.Add(1500 * time.Millisecond)
	log.MarkFailed(end, "SourceRead", "boom", 0, 0, &ConfigSnapshot{}, 7*24*time.Hour)

	require.True(t, log.IsTerminal())
	assert.Equal(t, int64(1500), *log.DurationMs)
	assert.Equal(t, end.Add(7*24*time.Hour), *log.SnapshotExpiresAt)
	assert.True(t, log.SnapshotUsable(end.Add(24*time.Hour)))
	assert.False(t, log.SnapshotUsable(end.Add(8*24*time.Hour)))

	clone := log.Clone()
	*clone.ErrorMessage = "other"
	assert.Equal(t, "boom", *log.ErrorMessage)
}

func TestParseFieldList(t *testing.T) {
	assert.Equal(t, []string{"id", "name", "email"}, ParseFieldList("id:int, name ,\nemail:text,,"))
	assert.Empty(t, ParseFieldList(""))
}
