// Package csv provides a CSV file destination connector.
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "csv"

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewCSVDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "CSV file destination; appends to the file named by the connection string",
		Version:      "2.0.0",
		Capabilities: []string{"batch", "append"},
		Parameters:   []string{"delimiter"},
	})
}

// CSVDestination appends records to a CSV file. The first write to an empty
// file emits the header; later writes reuse the existing header's column
// order and ignore fields outside it.
type CSVDestination struct{}

// NewCSVDestination creates a CSV destination.
func NewCSVDestination() *CSVDestination {
	return &CSVDestination{}
}

// Write implements core.DestinationWriter.
func (d *CSVDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		path := strings.TrimSpace(cfg.ConnectionString)
		if path == "" {
			return errors.New("file path is required")
		}
		delimiter := ','
		if v := cfg.Param("delimiter", ""); v != "" {
			delimiter = []rune(v)[0]
		}

		headers, err := existingHeader(path, delimiter)
		if err != nil {
			return err
		}

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}

		buf := bufio.NewWriterSize(f, 64*1024)
		w := csv.NewWriter(buf)
		w.Comma = delimiter

		if headers == nil {
			headers = base.FieldsOf(records)
			if err := w.Write(headers); err != nil {
				f.Close()
				return err
			}
		}

		row := make([]string, len(headers))
		for i, r := range records {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					f.Close()
					return err
				}
			}
			for j, h := range headers {
				v, _ := r.GetData(h)
				row[j] = models.ValueString(v)
			}
			if err := w.Write(row); err != nil {
				f.Close()
				return fmt.Errorf("record %d: %w", i, err)
			}
		}

		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return err
		}
		if err := buf.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// existingHeader returns the header row of a non-empty file, or nil when the
// file is missing or empty.
func existingHeader(path string, delimiter rune) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	row, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	return row, err
}

// ValidateSchema checks fields against the schema text, or against the
// existing file header when there is no schema text.
func (d *CSVDestination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	if len(cfg.SchemaFields()) > 0 {
		return base.ValidateAgainstSchema(cfg, fields), nil
	}
	headers, err := existingHeader(cfg.ConnectionString, ',')
	if err != nil {
		return false, err
	}
	if headers == nil {
		return true, nil
	}
	return base.ContainsAll(headers, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *CSVDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection checks that the file's directory is writable.
func (d *CSVDestination) TestConnection(_ context.Context, connectionString string) error {
	f, err := os.CreateTemp(filepath.Dir(connectionString), ".nebulaflow-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
