package objectstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/nebulaflow/pkg/compression"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// Format is the object body layout.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat normalizes a format name. The empty string means JSONL.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "", "json", "lines":
		return FormatJSONL, nil
	case FormatJSONL, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported object format %q", name)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/x-ndjson"
}

// Encode renders records in format and compresses the result.
func Encode(records []*models.Record, format Format, columns []string, alg compression.Algorithm, level compression.Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, alg, level)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		if len(columns) == 0 {
			columns = base.FieldsOf(records)
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(columns); err != nil {
			return nil, err
		}
		row := make([]string, len(columns))
		for _, r := range records {
			for i, c := range columns {
				v, _ := r.GetData(c)
				row[i] = models.ValueString(v)
			}
			if err := cw.Write(row); err != nil {
				return nil, err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return nil, err
		}
	default:
		data, err := json.MarshalLines(records)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ObjectKey returns prefix/yyyy/mm/dd/<unix-nanos>-<uuid>.<format><ext>.
func ObjectKey(prefix string, now time.Time, format Format, alg compression.Algorithm) string {
	now = now.UTC()
	name := fmt.Sprintf("%d-%s.%s%s", now.UnixNano(), uuid.NewString(), format, alg.Extension())
	return path.Join(strings.Trim(prefix, "/"), now.Format("2006/01/02"), name)
}
