package base

import (
	"context"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// Take returns at most n records from the front of records.
func Take(records []*models.Record, n int) []*models.Record {
	n = core.SampleSize(n)
	if len(records) <= n {
		return records
	}
	return records[:n]
}

// EchoPreview is the writer-side preview: deep copies of at most sampleSize
// records, with no I/O.
func EchoPreview(records []*models.Record, sampleSize int) []*models.Record {
	head := Take(records, sampleSize)
	out := make([]*models.Record, len(head))
	for i, r := range head {
		out[i] = r.Clone()
	}
	return out
}

// ReadPreview implements a reader preview on top of a full read for variants
// without a native limit.
func ReadPreview(ctx context.Context, reader core.SourceReader, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	records, err := reader.Read(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return Take(records, sampleSize), nil
}

// FieldsOf returns the union of field names across records in first-seen order.
func FieldsOf(records []*models.Record) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, r := range records {
		for _, f := range r.Fields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}

// ValidateAgainstSchema checks fields against the schema text of cfg. A
// destination without schema text accepts any field set.
func ValidateAgainstSchema(cfg models.DataSourceConfig, fields []string) bool {
	known := cfg.SchemaFields()
	if len(known) == 0 {
		return true
	}
	return ContainsAll(known, fields)
}

// ContainsAll reports whether every field is in known.
func ContainsAll(known, fields []string) bool {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	for _, f := range fields {
		if !set[f] {
			return false
		}
	}
	return true
}
