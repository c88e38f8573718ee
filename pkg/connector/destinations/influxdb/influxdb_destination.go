// Package influxdb provides an InfluxDB 3 destination that writes records as
// line protocol points.
package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/influxutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "influxdb"

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewInfluxDBDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "InfluxDB 3 destination writing one point per record",
		Version:      "1.0.0",
		Capabilities: []string{"batch"},
		Parameters:   []string{"database", "token", "measurement", "tags", "time_field"},
	})
}

// InfluxDBDestination writes records as points.
type InfluxDBDestination struct {
	now func() time.Time
}

// NewInfluxDBDestination creates an InfluxDB destination.
func NewInfluxDBDestination() *InfluxDBDestination {
	return &InfluxDBDestination{now: time.Now}
}

// Points converts records into points for the configured measurement.
func (d *InfluxDBDestination) Points(cfg models.DataSourceConfig, records []*models.Record) ([]*influxdb3.Point, error) {
	measurement, err := influxutil.Measurement(cfg)
	if err != nil {
		return nil, err
	}
	tags := models.ParseFieldList(cfg.Param("tags", ""))
	timeField := cfg.Param("time_field", "")
	now := d.now()

	points := make([]*influxdb3.Point, 0, len(records))
	for i, r := range records {
		spec, err := influxutil.SplitRecord(r, tags, timeField, now)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		points = append(points, spec.Point(measurement))
	}
	return points, nil
}

// Write implements core.DestinationWriter.
func (d *InfluxDBDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		points, err := d.Points(cfg, records)
		if err != nil {
			return err
		}

		client, err := influxutil.NewClient(cfg.ConnectionString, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		return client.WritePoints(ctx, points, influxdb3.WithDatabase(cfg.Param("database", "")))
	})
}

// ValidateSchema implements core.DestinationWriter. Measurements accept new
// fields on write.
func (d *InfluxDBDestination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	return base.ValidateAgainstSchema(cfg, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *InfluxDBDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection creates a client and issues a trivial query.
func (d *InfluxDBDestination) TestConnection(ctx context.Context, connectionString string) error {
	client, err := influxutil.NewClient(connectionString, models.DataSourceConfig{})
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.Query(ctx, "SELECT 1")
	return err
}
