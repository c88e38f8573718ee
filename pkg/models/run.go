package models

import (
	"time"
)

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "Running"
	RunStatusSuccess RunStatus = "Success"
	RunStatusFailed  RunStatus = "Failed"
)

// TriggeredByScheduler is the actor recorded for scheduled runs.
const TriggeredByScheduler = "Scheduler"

// ConfigSnapshot is a frozen copy of a pipeline's execution settings captured
// when a run fails. It never aliases the live pipeline.
type ConfigSnapshot struct {
	Source            DataSourceConfig `json:"source"`
	Destination       DataSourceConfig `json:"destination"`
	FieldMappings     []FieldMap       `json:"field_mappings,omitempty"`
	Transformations   []string         `json:"transformations,omitempty"`
	BatchSize         *int             `json:"batch_size,omitempty"`
	BatchDelaySeconds *int             `json:"batch_delay_seconds,omitempty"`
	CapturedAt        time.Time        `json:"captured_at"`
}

// CaptureSnapshot deep-copies the execution settings of p.
func CaptureSnapshot(p *Pipeline, at time.Time) *ConfigSnapshot {
	return &ConfigSnapshot{
		Source:            p.Source.Clone(),
		Destination:       p.Destination.Clone(),
		FieldMappings:     cloneFieldMaps(p.FieldMappings),
		Transformations:   cloneStrings(p.Transformations),
		BatchSize:         cloneIntPtr(p.BatchSize),
		BatchDelaySeconds: cloneIntPtr(p.BatchDelaySeconds),
		CapturedAt:        at,
	}
}

// Clone returns a deep copy.
func (s *ConfigSnapshot) Clone() *ConfigSnapshot {
	if s == nil {
		return nil
	}
	return &ConfigSnapshot{
		Source:            s.Source.Clone(),
		Destination:       s.Destination.Clone(),
		FieldMappings:     cloneFieldMaps(s.FieldMappings),
		Transformations:   cloneStrings(s.Transformations),
		BatchSize:         cloneIntPtr(s.BatchSize),
		BatchDelaySeconds: cloneIntPtr(s.BatchDelaySeconds),
		CapturedAt:        s.CapturedAt,
	}
}

// PipelineRunLog records one execution of a pipeline. It is created Running and
// mutated exactly once to a terminal status. Afterwards only snapshot expiry
// clearing may touch it.
type PipelineRunLog struct {
	ID                string          `json:"id"`
	PipelineID        string          `json:"pipeline_id"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
	DurationMs        *int64          `json:"duration_ms,omitempty"`
	Status            RunStatus       `json:"status"`
	RowsProcessed     int64           `json:"rows_processed"`
	RowsSkipped       int64           `json:"rows_skipped"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	Stage             string          `json:"stage,omitempty"`
	TriggeredBy       string          `json:"triggered_by"`
	RetryOf           *string         `json:"retry_of,omitempty"`
	UsedSnapshot      bool            `json:"used_snapshot"`
	Snapshot          *ConfigSnapshot `json:"snapshot,omitempty"`
	SnapshotExpiresAt *time.Time      `json:"snapshot_expires_at,omitempty"`
}

// IsTerminal reports whether the run has finished.
func (l *PipelineRunLog) IsTerminal() bool {
	return l.Status == RunStatusSuccess || l.Status == RunStatusFailed
}

// MarkSuccess finalizes the run as successful.
func (l *PipelineRunLog) MarkSuccess(at time.Time, rows, skipped int64) {
	l.finish(at, RunStatusSuccess)
	l.RowsProcessed = rows
	l.RowsSkipped = skipped
}

// MarkFailed finalizes the run as failed and attaches the snapshot, which
// expires retention after the finish time.
func (l *PipelineRunLog) MarkFailed(at time.Time, stage, message string, rows, skipped int64, snapshot *ConfigSnapshot, retention time.Duration) {
	l.finish(at, RunStatusFailed)
	l.RowsProcessed = rows
	l.RowsSkipped = skipped
	l.Stage = stage
	msg := message
	l.ErrorMessage = &msg
	if snapshot != nil {
		l.Snapshot = snapshot
		expires := at.Add(retention)
		l.SnapshotExpiresAt = &expires
	}
}

func (l *PipelineRunLog) finish(at time.Time, status RunStatus) {
	finished := at
	l.FinishedAt = &finished
	d := at.Sub(l.StartedAt).Milliseconds()
	if d < 0 {
		d = 0
	}
	l.DurationMs = &d
	l.Status = status
}

// SnapshotUsable reports whether the snapshot exists and has not expired at now.
func (l *PipelineRunLog) SnapshotUsable(now time.Time) bool {
	return l.Snapshot != nil && l.SnapshotExpiresAt != nil && now.Before(*l.SnapshotExpiresAt)
}

// Clone returns a deep copy.
func (l *PipelineRunLog) Clone() *PipelineRunLog {
	if l == nil {
		return nil
	}
	out := *l
	if l.FinishedAt != nil {
		t := *l.FinishedAt
		out.FinishedAt = &t
	}
	if l.DurationMs != nil {
		d := *l.DurationMs
		out.DurationMs = &d
	}
	out.ErrorMessage = cloneStringPtr(l.ErrorMessage)
	out.RetryOf = cloneStringPtr(l.RetryOf)
	out.Snapshot = l.Snapshot.Clone()
	if l.SnapshotExpiresAt != nil {
		t := *l.SnapshotExpiresAt
		out.SnapshotExpiresAt = &t
	}
	return &out
}

// SkippedRecord describes a sample dropped by the transform step.
type SkippedRecord struct {
	Index          int    `json:"index"`
	Transformation string `json:"transformation,omitempty"`
	Error          string `json:"error"`
}

// DryRunResult holds the three preview stages. It is never persisted.
type DryRunResult struct {
	SourcePreview      []*Record       `json:"source_preview"`
	MappedPreview      []*Record       `json:"mapped_preview"`
	TransformedPreview []*Record       `json:"transformed_preview"`
	Skipped            []SkippedRecord `json:"skipped,omitempty"`
}
