// Package json provides a JSON file source connector. The file may hold a
// JSON array of objects, JSON lines, or an object whose records sit under
// the records_path parameter.
package json

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "json"

// schemaSample bounds how many records DiscoverSchema inspects.
const schemaSample = 100

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewJSONSource() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "JSON array or JSON lines file source",
		Version:      "2.0.0",
		Capabilities: []string{"batch", "incremental", "schema_discovery"},
		Parameters:   []string{"records_path"},
	})
}

// JSONSource reads JSON files with field order preserved.
type JSONSource struct{}

// NewJSONSource creates a JSON source.
func NewJSONSource() *JSONSource {
	return &JSONSource{}
}

// Read implements core.SourceReader.
func (s *JSONSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		records, err := decodeFile(ctx, cfg, 0)
		if err != nil {
			return nil, err
		}
		return base.FilterByWatermark(records, wm), nil
	})
}

// DiscoverSchema returns the union of fields over the first records.
func (s *JSONSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	records, err := base.ObserveRead(ctx, provider, "discover_schema", func(ctx context.Context) ([]*models.Record, error) {
		return decodeFile(ctx, cfg, schemaSample)
	})
	if err != nil {
		return nil, err
	}
	return base.FieldsOf(records), nil
}

// DryRunPreview decodes at most sampleSize records.
func (s *JSONSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "preview", func(ctx context.Context) ([]*models.Record, error) {
		return decodeFile(ctx, cfg, core.SampleSize(sampleSize))
	})
}

// TestConnection checks that the file exists and is readable.
func (s *JSONSource) TestConnection(_ context.Context, connectionString string) error {
	f, err := os.Open(connectionString)
	if err != nil {
		return err
	}
	return f.Close()
}

func decodeFile(ctx context.Context, cfg models.DataSourceConfig, limit int) ([]*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.ConnectionString)
	if path == "" {
		return nil, errors.New("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return models.DecodeRecords(bufio.NewReaderSize(f, 64*1024), cfg.Param("records_path", ""), limit)
}
