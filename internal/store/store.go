// Package store defines the persistence ports the engine consumes and their
// memory and Postgres adapters.
package store

import (
	"context"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// PipelineStore persists pipeline definitions.
type PipelineStore interface {
	GetPipeline(ctx context.Context, id string) (*models.Pipeline, error)
	SavePipeline(ctx context.Context, p *models.Pipeline) error
	DeletePipeline(ctx context.Context, id string) error
	ListPipelines(ctx context.Context) ([]*models.Pipeline, error)
	// ListDuePipelines returns pipelines with an enabled schedule whose
	// NextRunAt is at or before now.
	ListDuePipelines(ctx context.Context, now time.Time) ([]*models.Pipeline, error)
	UpdateNextRun(ctx context.Context, id string, next *time.Time) error
	// UpdateWatermark stores the incremental checkpoint reached by a run.
	UpdateWatermark(ctx context.Context, id, value string) error
}

// RunLogStore persists run logs.
type RunLogStore interface {
	CreateRun(ctx context.Context, run *models.PipelineRunLog) error
	// FinalizeRun writes the terminal state of a Running log. Finalizing a
	// log that is already terminal fails.
	FinalizeRun(ctx context.Context, run *models.PipelineRunLog) error
	GetRun(ctx context.Context, id string) (*models.PipelineRunLog, error)
	// ListRuns returns the newest runs of a pipeline first. limit <= 0
	// returns all of them.
	ListRuns(ctx context.Context, pipelineID string, limit int) ([]*models.PipelineRunLog, error)
	// ClearExpiredSnapshots drops snapshots whose expiry is at or before now
	// and returns how many were cleared.
	ClearExpiredSnapshots(ctx context.Context, now time.Time) (int, error)
}

// NotificationSettings gates notification dispatch.
type NotificationSettings struct {
	Enabled   bool `json:"enabled"`
	OnFailure bool `json:"on_failure"`
	OnSuccess bool `json:"on_success"`
}

// Settings are the system-wide engine settings.
type Settings struct {
	FailedRunRetentionDays int                  `json:"failed_run_retention_days"`
	Notifications          NotificationSettings `json:"notifications"`
}

// Retention returns the snapshot retention as a duration.
func (s Settings) Retention() time.Duration {
	return time.Duration(s.FailedRunRetentionDays) * 24 * time.Hour
}

// DefaultSettings returns a seven day retention with failure notifications.
func DefaultSettings() Settings {
	return Settings{
		FailedRunRetentionDays: 7,
		Notifications:          NotificationSettings{Enabled: true, OnFailure: true},
	}
}

// SettingsStore exposes the system-wide settings.
type SettingsStore interface {
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Store bundles every port.
type Store interface {
	PipelineStore
	RunLogStore
	SettingsStore
	Close() error
}
