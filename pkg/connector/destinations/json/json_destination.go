// Package json provides a JSON file destination connector.
package json

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	jsonpool "github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "json"

// Output formats.
const (
	FormatLines = "lines"
	FormatArray = "array"
)

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewJSONDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "JSON lines or JSON array file destination",
		Version:      "2.0.0",
		Capabilities: []string{"batch", "append"},
		Parameters:   []string{"format"},
	})
}

// JSONDestination writes records to a file. In lines format each write
// appends; in array format the file is rewritten with the existing records
// followed by the new ones.
type JSONDestination struct{}

// NewJSONDestination creates a JSON destination.
func NewJSONDestination() *JSONDestination {
	return &JSONDestination{}
}

// Write implements core.DestinationWriter.
func (d *JSONDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		path := strings.TrimSpace(cfg.ConnectionString)
		if path == "" {
			return errors.New("file path is required")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}

		switch format := cfg.Param("format", FormatLines); format {
		case FormatLines:
			return appendLines(path, records)
		case FormatArray:
			return rewriteArray(path, records)
		default:
			return fmt.Errorf("unsupported format %q", format)
		}
	})
}

func appendLines(path string, records []*models.Record) error {
	data, err := jsonpool.MarshalLines(records)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func rewriteArray(path string, records []*models.Record) error {
	var existing []*models.Record
	if f, err := os.Open(path); err == nil {
		existing, err = models.DecodeRecords(bufio.NewReader(f), "", 0)
		f.Close()
		if err != nil {
			return fmt.Errorf("read existing file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := encodeArray(w, append(existing, records...)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encodeArray(w io.Writer, records []*models.Record) error {
	enc, err := jsonpool.NewStreamingEncoder(w, true)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return enc.Close()
}

// ValidateSchema implements core.DestinationWriter.
func (d *JSONDestination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	return base.ValidateAgainstSchema(cfg, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *JSONDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection checks that the file's directory is writable.
func (d *JSONDestination) TestConnection(_ context.Context, connectionString string) error {
	f, err := os.CreateTemp(filepath.Dir(connectionString), ".nebulaflow-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
