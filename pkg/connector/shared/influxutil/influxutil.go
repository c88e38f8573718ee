// Package influxutil holds the client, query and point helpers shared by the
// InfluxDB connectors.
package influxutil

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// TimeColumn is the InfluxDB timestamp column.
const TimeColumn = "time"

// NewClient builds a client for the host in connectionString. The token
// parameter is optional for servers running without auth.
func NewClient(connectionString string, cfg models.DataSourceConfig) (*influxdb3.Client, error) {
	host := strings.TrimSpace(connectionString)
	if host == "" {
		return nil, errors.New("influxdb host is required")
	}
	clientConfig := influxdb3.ClientConfig{
		Host:     host,
		Database: cfg.Param("database", ""),
	}
	if token := cfg.Param("token", ""); token != "" {
		clientConfig.Token = token
	}
	return influxdb3.New(clientConfig)
}

// Measurement returns the measurement parameter.
func Measurement(cfg models.DataSourceConfig) (string, error) {
	m := strings.TrimSpace(cfg.Param("measurement", ""))
	if m == "" {
		return "", errors.New("measurement parameter is required")
	}
	return m, nil
}

// QuoteIdent double-quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Literal renders a watermark value as an SQL literal. Numbers stay bare,
// timestamps and text are single-quoted.
func Literal(value string) string {
	switch v := base.TypedWatermark(value).(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return "'" + v.UTC().Format(time.RFC3339Nano) + "'"
	default:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	}
}

// BuildQuery renders the SQL for a read of measurement.
func BuildQuery(measurement string, wm *core.Watermark, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(QuoteIdent(measurement))
	if wm != nil {
		col := QuoteIdent(wm.Field)
		fmt.Fprintf(&b, " WHERE %s > %s ORDER BY %s", col, Literal(wm.Value), col)
	} else {
		fmt.Fprintf(&b, " ORDER BY %s", QuoteIdent(TimeColumn))
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

// ToRecord converts a query row. The time column comes first and the other
// columns follow in name order.
func ToRecord(row map[string]interface{}) *models.Record {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k != TimeColumn {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	r := models.NewRecord(len(row))
	if ts, ok := row[TimeColumn]; ok {
		r.SetData(TimeColumn, value(ts))
	}
	for _, k := range keys {
		r.SetData(k, value(row[k]))
	}
	return r
}

func value(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// PointSpec is the measurement, tags, fields and timestamp derived from one
// record.
type PointSpec struct {
	Tags      map[string]string
	Fields    map[string]interface{}
	Timestamp time.Time
}

// SplitRecord separates a record into tags, fields and a timestamp. Fields
// named in tags become tags, the time field becomes the timestamp (now when
// absent) and nil values are dropped.
func SplitRecord(r *models.Record, tags []string, timeField string, now time.Time) (PointSpec, error) {
	isTag := make(map[string]bool, len(tags))
	for _, t := range tags {
		isTag[t] = true
	}

	spec := PointSpec{
		Tags:      make(map[string]string),
		Fields:    make(map[string]interface{}),
		Timestamp: now,
	}
	var err error
	r.Range(func(k string, v interface{}) bool {
		if v == nil {
			return true
		}
		switch {
		case k == timeField:
			ts, ok := timestamp(v)
			if !ok {
				err = fmt.Errorf("field %s: %v is not a timestamp", k, v)
				return false
			}
			spec.Timestamp = ts
		case isTag[k]:
			spec.Tags[k] = models.ValueString(v)
		default:
			var fv interface{}
			fv, err = fieldValue(v)
			if err != nil {
				err = fmt.Errorf("field %s: %w", k, err)
				return false
			}
			spec.Fields[k] = fv
		}
		return true
	})
	if err != nil {
		return spec, err
	}
	if len(spec.Fields) == 0 {
		return spec, errors.New("record has no field values")
	}
	return spec, nil
}

// Point builds a line protocol point from spec.
func (s PointSpec) Point(measurement string) *influxdb3.Point {
	return influxdb3.NewPoint(measurement, s.Tags, s.Fields, s.Timestamp)
}

func timestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case int64:
		return time.Unix(0, t), true
	case string:
		return base.ParseTime(t)
	}
	return time.Time{}, false
}

func fieldValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case int64, float64, string, bool, uint64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return models.ValueString(v), nil
	}
}
