// Package csv provides a CSV file source connector.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "csv"

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewCSVSource() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "CSV file source; the connection string is the file path",
		Version:      "2.0.0",
		Capabilities: []string{"batch", "incremental", "schema_discovery"},
		Parameters:   []string{"delimiter", "has_header"},
	})
}

// CSVSource reads a CSV file. Every value is read as a string.
type CSVSource struct{}

// NewCSVSource creates a CSV source.
func NewCSVSource() *CSVSource {
	return &CSVSource{}
}

type options struct {
	path      string
	delimiter rune
	hasHeader bool
}

func parseOptions(cfg models.DataSourceConfig) (options, error) {
	opts := options{
		path:      strings.TrimSpace(cfg.ConnectionString),
		delimiter: ',',
		hasHeader: !strings.EqualFold(cfg.Param("has_header", "true"), "false"),
	}
	if opts.path == "" {
		opts.path = cfg.Param("path", "")
	}
	if opts.path == "" {
		return opts, errors.New("file path is required")
	}
	if d := cfg.Param("delimiter", ""); d != "" {
		if d == `\t` {
			d = "\t"
		}
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return opts, fmt.Errorf("delimiter must be a single character, got %q", d)
		}
		opts.delimiter = r
	}
	return opts, nil
}

// Read implements core.SourceReader.
func (s *CSVSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		records, err := s.readFile(ctx, cfg, 0)
		if err != nil {
			return nil, err
		}
		return base.FilterByWatermark(records, wm), nil
	})
}

// DiscoverSchema returns the header row, or generated column names for
// files without one.
func (s *CSVSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	var fields []string
	err := base.Observe(ctx, provider, "discover_schema", func(ctx context.Context) error {
		opts, err := parseOptions(cfg)
		if err != nil {
			return err
		}
		f, err := os.Open(opts.path)
		if err != nil {
			return err
		}
		defer f.Close()

		reader := newReader(f, opts)
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields = header(row, opts.hasHeader)
		return nil
	})
	return fields, err
}

// DryRunPreview reads at most sampleSize rows.
func (s *CSVSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "preview", func(ctx context.Context) ([]*models.Record, error) {
		return s.readFile(ctx, cfg, core.SampleSize(sampleSize))
	})
}

// TestConnection checks that the file exists and is readable.
func (s *CSVSource) TestConnection(_ context.Context, connectionString string) error {
	f, err := os.Open(connectionString)
	if err != nil {
		return err
	}
	return f.Close()
}

func (s *CSVSource) readFile(ctx context.Context, cfg models.DataSourceConfig, limit int) ([]*models.Record, error) {
	opts, err := parseOptions(cfg)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(opts.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := newReader(f, opts)
	var headers []string
	var records []*models.Record

	for line := 1; limit <= 0 || len(records) < limit; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if headers == nil {
			headers = header(row, opts.hasHeader)
			if opts.hasHeader {
				continue
			}
		}

		record := models.NewRecord(len(headers))
		for i, h := range headers {
			if i < len(row) {
				record.SetData(h, row[i])
			} else {
				record.SetData(h, nil)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func newReader(r io.Reader, opts options) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = opts.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

func header(row []string, hasHeader bool) []string {
	out := make([]string, len(row))
	for i, col := range row {
		if hasHeader {
			out[i] = strings.TrimPrefix(strings.TrimSpace(col), "\ufeff")
		} else {
			out[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	return out
}
