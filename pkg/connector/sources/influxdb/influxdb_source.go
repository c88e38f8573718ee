// Package influxdb provides an InfluxDB 3 measurement source.
package influxdb

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/influxutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "influxdb"

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewInfluxDBSource() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "InfluxDB 3 measurement source queried over SQL",
		Version:      "1.0.0",
		Capabilities: []string{"batch", "incremental", "watermark_pushdown"},
		Parameters:   []string{"database", "token", "measurement"},
	})
}

// InfluxDBSource reads all rows of a measurement, ordered by time or by the
// watermark field.
type InfluxDBSource struct{}

// NewInfluxDBSource creates an InfluxDB source.
func NewInfluxDBSource() *InfluxDBSource {
	return &InfluxDBSource{}
}

// Read implements core.SourceReader.
func (s *InfluxDBSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		return query(ctx, cfg, wm, 0)
	})
}

// DiscoverSchema returns the columns seen in the first rows.
func (s *InfluxDBSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	records, err := base.ObserveRead(ctx, provider, "discover_schema", func(ctx context.Context) ([]*models.Record, error) {
		return query(ctx, cfg, nil, 100)
	})
	if err != nil {
		return nil, err
	}
	return base.FieldsOf(records), nil
}

// DryRunPreview implements core.SourceReader.
func (s *InfluxDBSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "preview", func(ctx context.Context) ([]*models.Record, error) {
		return query(ctx, cfg, nil, core.SampleSize(sampleSize))
	})
}

// TestConnection lists the tables of the default database.
func (s *InfluxDBSource) TestConnection(ctx context.Context, connectionString string) error {
	client, err := influxutil.NewClient(connectionString, models.DataSourceConfig{})
	if err != nil {
		return err
	}
	defer client.Close()

	it, err := client.Query(ctx, "SHOW TABLES")
	if err != nil {
		return err
	}
	for it.Next() {
	}
	return nil
}

func query(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark, limit int) ([]*models.Record, error) {
	measurement, err := influxutil.Measurement(cfg)
	if err != nil {
		return nil, err
	}
	client, err := influxutil.NewClient(cfg.ConnectionString, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	sql := influxutil.BuildQuery(measurement, wm, limit)
	it, err := client.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", measurement, err)
	}

	var records []*models.Record
	for it.Next() {
		records = append(records, influxutil.ToRecord(it.Value()))
		if len(records)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}
