package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// Transformation identifiers. Arguments follow the name after a colon, for
// example "cast:amount:float" or "rename:fname=first_name".
const (
	TransformTrim         = "trim"
	TransformLowercase    = "lowercase"
	TransformUppercase    = "uppercase"
	TransformRemoveNulls  = "remove_nulls"
	TransformAddTimestamp = "add_timestamp"
	TransformCast         = "cast"
	TransformRequire      = "require"
	TransformDrop         = "drop"
	TransformRename       = "rename"
	TransformDefault      = "default"
)

// defaultTimestampField is set by add_timestamp when no field is named.
const defaultTimestampField = "processed_at"

// step mutates one record in place.
type step struct {
	name  string
	apply func(r *models.Record) error
}

// Transformer applies an ordered list of transformation identifiers.
type Transformer struct {
	steps []step
}

// TransformResult holds the records that survived and those that were skipped.
type TransformResult struct {
	Records []*models.Record
	Skipped []models.SkippedRecord
}

// NewTransformer parses identifiers. An unknown identifier or malformed
// argument is a ValidationError.
func NewTransformer(identifiers []string, now func() time.Time) (*Transformer, error) {
	if now == nil {
		now = time.Now
	}
	t := &Transformer{steps: make([]step, 0, len(identifiers))}
	for _, id := range identifiers {
		s, err := parseStep(strings.TrimSpace(id), now)
		if err != nil {
			return nil, err
		}
		t.steps = append(t.steps, s)
	}
	return t, nil
}

// Apply transforms copies of records in order. A record whose transformation
// fails is skipped and reported; it never aborts the batch.
func (t *Transformer) Apply(records []*models.Record) TransformResult {
	if len(t.steps) == 0 {
		return TransformResult{Records: records}
	}
	res := TransformResult{Records: make([]*models.Record, 0, len(records))}
	for i, r := range records {
		out, name, err := t.applyOne(r.Clone())
		if err != nil {
			res.Skipped = append(res.Skipped, models.SkippedRecord{
				Index:          i,
				Transformation: name,
				Error:          fmt.Sprintf("%s: %s", name, nebulaerrors.Flatten(err)),
			})
			continue
		}
		res.Records = append(res.Records, out)
	}
	return res
}

func (t *Transformer) applyOne(r *models.Record) (*models.Record, string, error) {
	for _, s := range t.steps {
		if err := s.apply(r); err != nil {
			return nil, s.name, err
		}
	}
	return r, "", nil
}

func parseStep(id string, now func() time.Time) (step, error) {
	name, arg, _ := strings.Cut(id, ":")
	name = strings.ToLower(strings.TrimSpace(name))
	arg = strings.TrimSpace(arg)
	s := step{name: name}

	needArg := func() error {
		if arg == "" {
			return nebulaerrors.ValidationError("transformation %q requires an argument", id)
		}
		return nil
	}

	switch name {
	case TransformTrim:
		s.apply = mapStrings(strings.TrimSpace)
	case TransformLowercase:
		s.apply = mapStrings(strings.ToLower)
	case TransformUppercase:
		s.apply = mapStrings(strings.ToUpper)
	case TransformRemoveNulls:
		s.apply = removeNulls
	case TransformAddTimestamp:
		field := arg
		if field == "" {
			field = defaultTimestampField
		}
		s.apply = func(r *models.Record) error {
			r.SetData(field, now().UTC().Format(time.RFC3339))
			return nil
		}
	case TransformCast:
		field, kind, ok := strings.Cut(arg, ":")
		if !ok || field == "" {
			return s, nebulaerrors.ValidationError("transformation %q must be cast:<field>:<type>", id)
		}
		conv, err := caster(kind)
		if err != nil {
			return s, nebulaerrors.ValidationError("transformation %q: %v", id, err)
		}
		s.apply = func(r *models.Record) error {
			v, ok := r.GetData(field)
			if !ok || v == nil {
				return nil
			}
			cast, err := conv(v)
			if err != nil {
				return fmt.Errorf("field %s: %w", field, err)
			}
			r.SetData(field, cast)
			return nil
		}
	case TransformRequire:
		if err := needArg(); err != nil {
			return s, err
		}
		fields := models.ParseFieldList(arg)
		s.apply = func(r *models.Record) error {
			for _, f := range fields {
				v, ok := r.GetData(f)
				if !ok || v == nil || models.ValueString(v) == "" {
					return fmt.Errorf("required field %s is missing", f)
				}
			}
			return nil
		}
	case TransformDrop:
		if err := needArg(); err != nil {
			return s, err
		}
		fields := models.ParseFieldList(arg)
		s.apply = func(r *models.Record) error {
			for _, f := range fields {
				r.Delete(f)
			}
			return nil
		}
	case TransformRename:
		from, to, ok := strings.Cut(arg, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return s, nebulaerrors.ValidationError("transformation %q must be rename:<from>=<to>", id)
		}
		s.apply = func(r *models.Record) error {
			renameField(r, from, to)
			return nil
		}
	case TransformDefault:
		field, value, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return s, nebulaerrors.ValidationError("transformation %q must be default:<field>=<value>", id)
		}
		s.apply = func(r *models.Record) error {
			if v, ok := r.GetData(field); !ok || v == nil {
				r.SetData(field, value)
			}
			return nil
		}
	default:
		return s, nebulaerrors.ValidationError("unknown transformation %q", id).
			WithDetail("transformation", id)
	}
	return s, nil
}

func mapStrings(fn func(string) string) func(*models.Record) error {
	return func(r *models.Record) error {
		for _, k := range r.Fields() {
			if v, ok := r.GetData(k); ok {
				if s, ok := v.(string); ok {
					r.SetData(k, fn(s))
				}
			}
		}
		return nil
	}
}

func removeNulls(r *models.Record) error {
	for _, k := range r.Fields() {
		if v, _ := r.GetData(k); v == nil {
			r.Delete(k)
		}
	}
	return nil
}

// renameField moves from to to, keeping its position. An existing field named
// to is replaced.
func renameField(r *models.Record, from, to string) {
	if _, ok := r.GetData(from); !ok || from == to {
		return
	}
	fields := r.Fields()
	values := r.ToMap()
	for _, k := range fields {
		r.Delete(k)
	}
	for _, k := range fields {
		switch k {
		case to:
			continue
		case from:
			r.SetData(to, values[from])
		default:
			r.SetData(k, values[k])
		}
	}
}

func caster(kind string) (func(interface{}) (interface{}, error), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer":
		return func(v interface{}) (interface{}, error) {
			s := strings.TrimSpace(models.ValueString(v))
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f != float64(int64(f)) {
				return nil, fmt.Errorf("cannot cast %q to int", s)
			}
			return int64(f), nil
		}, nil
	case "float", "number", "double":
		return func(v interface{}) (interface{}, error) {
			s := strings.TrimSpace(models.ValueString(v))
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot cast %q to float", s)
			}
			return f, nil
		}, nil
	case "bool", "boolean":
		return func(v interface{}) (interface{}, error) {
			s := strings.TrimSpace(models.ValueString(v))
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("cannot cast %q to bool", s)
			}
			return b, nil
		}, nil
	case "string", "text":
		return func(v interface{}) (interface{}, error) {
			return models.ValueString(v), nil
		}, nil
	case "time", "timestamp":
		return func(v interface{}) (interface{}, error) {
			if t, ok := v.(time.Time); ok {
				return t.UTC(), nil
			}
			s := strings.TrimSpace(models.ValueString(v))
			t, ok := base.ParseTime(s)
			if !ok {
				return nil, fmt.Errorf("cannot cast %q to time", s)
			}
			return t.UTC(), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported cast type %q", kind)
	}
}
