package models

import (
	"strings"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

// DataSourceConfig describes one side of a pipeline. The same structure serves
// the source and destination roles.
type DataSourceConfig struct {
	// Type is the connector type token (e.g. "csv", "postgresql", "s3")
	Type string `json:"type" yaml:"type"`
	// ConnectionString is the already-decrypted connection string or path
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
	// Parameters holds connector specific options such as table or topic
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// Schema is an optional comma or newline separated field list
	Schema *string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Param returns the named parameter or def when it is unset or blank.
func (c DataSourceConfig) Param(key, def string) string {
	if v, ok := c.Parameters[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// SchemaFields parses Schema into field names, dropping blanks and any
// ":type" suffix.
func (c DataSourceConfig) SchemaFields() []string {
	if c.Schema == nil {
		return nil
	}
	return ParseFieldList(*c.Schema)
}

// ParseFieldList splits a comma or newline separated list of field names.
func ParseFieldList(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		name, _, _ := strings.Cut(p, ":")
		name = strings.TrimSpace(name)
		if name != "" {
			fields = append(fields, name)
		}
	}
	return fields
}

// Clone returns a deep copy.
func (c DataSourceConfig) Clone() DataSourceConfig {
	out := c
	if c.Parameters != nil {
		out.Parameters = make(map[string]string, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	if c.Schema != nil {
		s := *c.Schema
		out.Schema = &s
	}
	return out
}

// FieldMap maps one source field to one destination field.
type FieldMap struct {
	SourceField      string                 `json:"source_field" yaml:"source_field"`
	DestinationField string                 `json:"destination_field" yaml:"destination_field"`
	Confidence       *float64               `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	IsAutomapped     bool                   `json:"is_automapped" yaml:"is_automapped"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// MarkManual flags the mapping as operator-authored. Manual mappings never
// carry a score.
func (m *FieldMap) MarkManual() {
	m.IsAutomapped = false
	m.Confidence = nil
}

// Clone returns a deep copy.
func (m FieldMap) Clone() FieldMap {
	out := m
	if m.Confidence != nil {
		c := *m.Confidence
		out.Confidence = &c
	}
	out.Metadata = cloneMeta(m.Metadata)
	return out
}

// ValidateFieldMappings checks that every mapping names both fields and that no
// destination field appears twice.
func ValidateFieldMappings(maps []FieldMap) error {
	seen := make(map[string]int, len(maps))
	for i, m := range maps {
		if strings.TrimSpace(m.SourceField) == "" || strings.TrimSpace(m.DestinationField) == "" {
			return nebulaerrors.ValidationError("field mapping %d must name both a source and a destination field", i)
		}
		if prev, ok := seen[m.DestinationField]; ok {
			return nebulaerrors.ValidationError("destination field %q is mapped by both %q and %q",
				m.DestinationField, maps[prev].SourceField, m.SourceField).
				WithDetail("destination_field", m.DestinationField)
		}
		seen[m.DestinationField] = i
	}
	return nil
}

// IncrementalConfig enables watermark loads. LastValue is the checkpoint
// reached by the last successful run; empty means the next run is a full read.
type IncrementalConfig struct {
	Field     string `json:"field" yaml:"field"`
	LastValue string `json:"last_value,omitempty" yaml:"last_value,omitempty"`
}

// Pipeline is a configured source to destination data-movement job.
type Pipeline struct {
	ID              string                 `json:"id" yaml:"id"`
	Name            string                 `json:"name" yaml:"name"`
	CreatedAt       time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" yaml:"updated_at"`
	Source          DataSourceConfig       `json:"source" yaml:"source"`
	Destination     DataSourceConfig       `json:"destination" yaml:"destination"`
	FieldMappings   []FieldMap             `json:"field_mappings,omitempty" yaml:"field_mappings,omitempty"`
	Transformations []string               `json:"transformations,omitempty" yaml:"transformations,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	ScheduleEnabled bool       `json:"schedule_enabled" yaml:"schedule_enabled"`
	CronExpression  *string    `json:"cron_expression,omitempty" yaml:"cron_expression,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty" yaml:"next_run_at,omitempty"`

	BatchSize         *int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	BatchDelaySeconds *int `json:"batch_delay_seconds,omitempty" yaml:"batch_delay_seconds,omitempty"`

	Incremental *IncrementalConfig `json:"incremental,omitempty" yaml:"incremental,omitempty"`
}

// Validate checks the structural invariants of a pipeline. Cron syntax is
// checked by the scheduler, which owns cron evaluation.
func (p *Pipeline) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return nebulaerrors.ValidationError("pipeline id is required")
	}
	if strings.TrimSpace(p.Source.Type) == "" {
		return nebulaerrors.ValidationError("pipeline %s: source type is required", p.ID)
	}
	if strings.TrimSpace(p.Destination.Type) == "" {
		return nebulaerrors.ValidationError("pipeline %s: destination type is required", p.ID)
	}
	if p.ScheduleEnabled && (p.CronExpression == nil || strings.TrimSpace(*p.CronExpression) == "") {
		return nebulaerrors.ValidationError("pipeline %s: schedule enabled without a cron expression", p.ID)
	}
	if p.BatchSize != nil && *p.BatchSize < 0 {
		return nebulaerrors.ValidationError("pipeline %s: batch size cannot be negative", p.ID)
	}
	if p.BatchDelaySeconds != nil && *p.BatchDelaySeconds < 0 {
		return nebulaerrors.ValidationError("pipeline %s: batch delay cannot be negative", p.ID)
	}
	if p.Incremental != nil && strings.TrimSpace(p.Incremental.Field) == "" {
		return nebulaerrors.ValidationError("pipeline %s: incremental load requires a field", p.ID)
	}
	return ValidateFieldMappings(p.FieldMappings)
}

// Clone returns a deep copy. Mutating the copy never affects p.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	out := *p
	out.Source = p.Source.Clone()
	out.Destination = p.Destination.Clone()
	out.FieldMappings = cloneFieldMaps(p.FieldMappings)
	out.Transformations = cloneStrings(p.Transformations)
	out.Metadata = cloneMeta(p.Metadata)
	out.CronExpression = cloneStringPtr(p.CronExpression)
	if p.NextRunAt != nil {
		t := *p.NextRunAt
		out.NextRunAt = &t
	}
	out.BatchSize = cloneIntPtr(p.BatchSize)
	out.BatchDelaySeconds = cloneIntPtr(p.BatchDelaySeconds)
	if p.Incremental != nil {
		inc := *p.Incremental
		out.Incremental = &inc
	}
	return &out
}

// WithSnapshot returns a copy of p whose execution settings come from s.
// Identity, schedule and incremental settings stay those of p.
func (p *Pipeline) WithSnapshot(s *ConfigSnapshot) *Pipeline {
	out := p.Clone()
	if s == nil {
		return out
	}
	out.Source = s.Source.Clone()
	out.Destination = s.Destination.Clone()
	out.FieldMappings = cloneFieldMaps(s.FieldMappings)
	out.Transformations = cloneStrings(s.Transformations)
	out.BatchSize = cloneIntPtr(s.BatchSize)
	out.BatchDelaySeconds = cloneIntPtr(s.BatchDelaySeconds)
	return out
}

func cloneFieldMaps(in []FieldMap) []FieldMap {
	if in == nil {
		return nil
	}
	out := make([]FieldMap, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneStringPtr(in *string) *string {
	if in == nil {
		return nil
	}
	s := *in
	return &s
}

func cloneIntPtr(in *int) *int {
	if in == nil {
		return nil
	}
	i := *in
	return &i
}

func cloneMeta(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}
