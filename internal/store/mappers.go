package store

import (
	"fmt"

	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

func toPipelineModel(p *models.Pipeline) (pipelineModel, error) {
	def, err := json.Marshal(p)
	if err != nil {
		return pipelineModel{}, fmt.Errorf("encode pipeline %s: %w", p.ID, err)
	}
	return pipelineModel{
		ID:              p.ID,
		Name:            p.Name,
		ScheduleEnabled: p.ScheduleEnabled,
		NextRunAt:       p.NextRunAt,
		Definition:      def,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}, nil
}

// fromPipelineModel decodes the definition and overlays the mirrored
// columns, which UpdateNextRun writes without touching the document.
func fromPipelineModel(row pipelineModel) (*models.Pipeline, error) {
	var p models.Pipeline
	if err := json.Unmarshal(row.Definition, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline %s: %w", row.ID, err)
	}
	p.ID = row.ID
	p.ScheduleEnabled = row.ScheduleEnabled
	p.NextRunAt = row.NextRunAt
	return &p, nil
}

func fromPipelineModels(rows []pipelineModel) ([]*models.Pipeline, error) {
	out := make([]*models.Pipeline, 0, len(rows))
	for _, row := range rows {
		p, err := fromPipelineModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toRunModel(run *models.PipelineRunLog) (runModel, error) {
	row := runModel{
		ID:                run.ID,
		PipelineID:        run.PipelineID,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.FinishedAt,
		DurationMs:        run.DurationMs,
		Status:            string(run.Status),
		RowsProcessed:     run.RowsProcessed,
		RowsSkipped:       run.RowsSkipped,
		ErrorMessage:      run.ErrorMessage,
		Stage:             run.Stage,
		TriggeredBy:       run.TriggeredBy,
		RetryOf:           run.RetryOf,
		UsedSnapshot:      run.UsedSnapshot,
		SnapshotExpiresAt: run.SnapshotExpiresAt,
	}
	if run.Snapshot != nil {
		snap, err := json.Marshal(run.Snapshot)
		if err != nil {
			return runModel{}, fmt.Errorf("encode snapshot of run %s: %w", run.ID, err)
		}
		row.Snapshot = snap
	}
	return row, nil
}

func fromRunModel(row runModel) (*models.PipelineRunLog, error) {
	run := &models.PipelineRunLog{
		ID:                row.ID,
		PipelineID:        row.PipelineID,
		StartedAt:         row.StartedAt,
		FinishedAt:        row.FinishedAt,
		DurationMs:        row.DurationMs,
		Status:            models.RunStatus(row.Status),
		RowsProcessed:     row.RowsProcessed,
		RowsSkipped:       row.RowsSkipped,
		ErrorMessage:      row.ErrorMessage,
		Stage:             row.Stage,
		TriggeredBy:       row.TriggeredBy,
		RetryOf:           row.RetryOf,
		UsedSnapshot:      row.UsedSnapshot,
		SnapshotExpiresAt: row.SnapshotExpiresAt,
	}
	if len(row.Snapshot) > 0 {
		var snap models.ConfigSnapshot
		if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot of run %s: %w", row.ID, err)
		}
		run.Snapshot = &snap
	}
	return run, nil
}

func toSettingsModel(s Settings) settingsModel {
	return settingsModel{
		ID:                     1,
		FailedRunRetentionDays: s.FailedRunRetentionDays,
		NotificationsEnabled:   s.Notifications.Enabled,
		NotifyOnFailure:        s.Notifications.OnFailure,
		NotifyOnSuccess:        s.Notifications.OnSuccess,
	}
}

func fromSettingsModel(row settingsModel) Settings {
	return Settings{
		FailedRunRetentionDays: row.FailedRunRetentionDays,
		Notifications: NotificationSettings{
			Enabled:   row.NotificationsEnabled,
			OnFailure: row.NotifyOnFailure,
			OnSuccess: row.NotifyOnSuccess,
		},
	}
}
