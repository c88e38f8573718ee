// Package core defines the contracts every connector variant implements.
//
// Connectors are stateless: each call receives the DataSourceConfig it acts on
// and opens whatever connection it needs for the duration of the call. Callers
// may call any method again after a failure.
package core

import (
	"context"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// ConnectorType represents the role of a connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// DefaultSampleSize is the preview size used when a caller passes zero.
const DefaultSampleSize = 10

// Watermark restricts a read to records whose Field value is strictly greater
// than Value.
type Watermark struct {
	Field string
	Value string
}

// NewWatermark returns nil unless both field and value are set, so a missing
// checkpoint always means a full read.
func NewWatermark(field, value string) *Watermark {
	if field == "" || value == "" {
		return nil
	}
	return &Watermark{Field: field, Value: value}
}

// SourceReader reads records from a source.
type SourceReader interface {
	// Read returns every record, or only those newer than wm when wm is not
	// nil. Variants that cannot filter ignore wm and return a full read.
	Read(ctx context.Context, cfg models.DataSourceConfig, wm *Watermark) ([]*models.Record, error)

	// DiscoverSchema returns the source field names.
	DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error)

	// DryRunPreview returns at most sampleSize raw records.
	DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error)
}

// DestinationWriter writes records to a destination.
type DestinationWriter interface {
	// Write persists records. No partial-write recovery is attempted.
	Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error

	// ValidateSchema reports whether the destination accepts fields.
	ValidateSchema(ctx context.Context, cfg models.DataSourceConfig, fields []string) (bool, error)

	// DryRunPreview echoes at most sampleSize of the records that would be
	// written. It performs no I/O.
	DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error)
}

// ConnectionTester opens and immediately closes a connection.
type ConnectionTester interface {
	TestConnection(ctx context.Context, connectionString string) error
}

// ConnectionTestResult is the outcome of a connection test. Failures are
// reported here, never as errors.
type ConnectionTestResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

// SampleSize normalizes a caller supplied preview size.
func SampleSize(n int) int {
	if n <= 0 {
		return DefaultSampleSize
	}
	return n
}
