package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

type fakeReader struct{ testErr error }

func (f *fakeReader) Read(context.Context, models.DataSourceConfig, *core.Watermark) ([]*models.Record, error) {
	return nil, nil
}

func (f *fakeReader) DiscoverSchema(context.Context, models.DataSourceConfig) ([]string, error) {
	return []string{"id"}, nil
}

func (f *fakeReader) DryRunPreview(context.Context, models.DataSourceConfig, int) ([]*models.Record, error) {
	return nil, nil
}

func (f *fakeReader) TestConnection(context.Context, string) error { return f.testErr }

type fakeWriter struct{}

func (fakeWriter) Write(context.Context, models.DataSourceConfig, []*models.Record) error { return nil }

func (fakeWriter) ValidateSchema(context.Context, models.DataSourceConfig, []string) (bool, error) {
	return true, nil
}

func (fakeWriter) DryRunPreview(_ context.Context, _ models.DataSourceConfig, r []*models.Record, _ int) ([]*models.Record, error) {
	return r, nil
}

type panickingTester struct{ fakeWriter }

func (panickingTester) TestConnection(context.Context, string) error { panic("driver exploded") }

func TestResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource("CSV", func() core.SourceReader { return &fakeReader{} }))
	require.NoError(t, r.RegisterDestination("json", func() core.DestinationWriter { return fakeWriter{} }))

	reader, err := r.ResolveSourceReader("csv")
	require.NoError(t, err)
	assert.NotNil(t, reader)

	_, err = r.ResolveDestinationWriter(" JSON ")
	require.NoError(t, err)

	_, err = r.ResolveSourceReader("ftp")
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeUnknownConnector))

	_, err = r.ResolveDestinationWriter("csv")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeUnknownConnector))
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource("csv", func() core.SourceReader { return &fakeReader{} }))
	assert.Error(t, r.RegisterSource("CSV", func() core.SourceReader { return &fakeReader{} }))
}

func TestTestConnection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource("ok", func() core.SourceReader { return &fakeReader{} }))
	require.NoError(t, r.RegisterSource("down", func() core.SourceReader {
		return &fakeReader{testErr: errors.New("connection refused")}
	}))
	require.NoError(t, r.RegisterDestination("notester", func() core.DestinationWriter { return fakeWriter{} }))
	require.NoError(t, r.RegisterDestination("panics", func() core.DestinationWriter { return panickingTester{} }))

	tests := []struct {
		name        string
		provider    string
		wantSuccess bool
		wantMessage string
	}{
		{name: "success", provider: "ok", wantSuccess: true},
		{name: "io failure", provider: "down", wantMessage: "connection refused"},
		{name: "unknown provider", provider: "ftp", wantMessage: "ftp"},
		{name: "no tester", provider: "notester", wantMessage: "does not support"},
		{name: "panic", provider: "panics", wantMessage: "driver exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.TestConnection(context.Background(), tt.provider, "dsn")
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.GreaterOrEqual(t, res.ElapsedMs, int64(0))
			if tt.wantMessage != "" {
				assert.Contains(t, res.ErrorMessage, tt.wantMessage)
			} else {
				assert.Empty(t, res.ErrorMessage)
			}
		})
	}
}

func TestListSorted(t *testing.T) {
	r := NewRegistry()
	for _, token := range []string{"postgresql", "csv", "json"} {
		tok := token
		require.NoError(t, r.RegisterSource(tok, func() core.SourceReader { return &fakeReader{} }))
	}
	assert.Equal(t, []string{"csv", "json", "postgresql"}, r.ListSources())
	assert.True(t, r.HasSource("JSON"))
	assert.False(t, r.HasDestination("json"))

	r.Clear()
	assert.Empty(t, r.ListSources())
}

func TestCatalog(t *testing.T) {
	c := NewConnectorCatalog()
	require.NoError(t, c.Register(&ConnectorInfo{Name: "csv", Type: "source"}))
	require.NoError(t, c.Register(&ConnectorInfo{Name: "csv", Type: "destination"}))
	assert.Error(t, c.Register(&ConnectorInfo{Name: "csv", Type: "source"}))

	info, err := c.Get("destination", "csv")
	require.NoError(t, err)
	assert.Equal(t, "destination", info.Type)

	_, err = c.Get("source", "kafka")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound))

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "source", list[0].Type)
}
