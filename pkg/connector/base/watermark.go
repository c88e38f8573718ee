package base

import (
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// timeLayouts are tried in order when comparing watermark values as times.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses s with the watermark time layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// WatermarkString renders a record value for watermark comparison.
func WatermarkString(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return models.ValueString(v)
}

// CompareWatermark compares two watermark values. Both are compared as numbers
// when both parse as numbers, as times when both parse as times, and
// lexically otherwise.
func CompareWatermark(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)

	af, aErr := strconv.ParseFloat(a, 64)
	bf, bErr := strconv.ParseFloat(b, 64)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	at, aOK := ParseTime(a)
	bt, bOK := ParseTime(b)
	if aOK && bOK {
		return at.Compare(bt)
	}

	return strings.Compare(a, b)
}

// AfterWatermark reports whether the record's watermark field is strictly
// greater than wm. Records without the field, or with a null value, are not.
func AfterWatermark(r *models.Record, wm *core.Watermark) bool {
	v, ok := r.GetData(wm.Field)
	if !ok || v == nil {
		return false
	}
	return CompareWatermark(WatermarkString(v), wm.Value) > 0
}

// FilterByWatermark keeps the records strictly newer than wm, in order. A nil
// watermark returns records unchanged.
func FilterByWatermark(records []*models.Record, wm *core.Watermark) []*models.Record {
	if wm == nil {
		return records
	}
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if AfterWatermark(r, wm) {
			out = append(out, r)
		}
	}
	return out
}

// MaxWatermark returns the greatest value of field among records.
func MaxWatermark(records []*models.Record, field string) (string, bool) {
	var best string
	found := false
	for _, r := range records {
		v, ok := r.GetData(field)
		if !ok || v == nil {
			continue
		}
		s := WatermarkString(v)
		if !found || CompareWatermark(s, best) > 0 {
			best = s
			found = true
		}
	}
	return best, found
}

// TypedWatermark converts a watermark value into the most specific Go value it
// parses as (int64, float64, time.Time or string), for stores whose comparison
// operators are type sensitive.
func TypedWatermark(s string) interface{} {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if t, ok := ParseTime(s); ok {
		return t
	}
	return s
}
