package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

type pipelineModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	Name            string     `gorm:"column:name"`
	ScheduleEnabled bool       `gorm:"column:schedule_enabled;index:idx_pipelines_due,priority:1"`
	NextRunAt       *time.Time `gorm:"column:next_run_at;index:idx_pipelines_due,priority:2"`
	Definition      []byte     `gorm:"column:definition;type:jsonb;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (pipelineModel) TableName() string { return "pipelines" }

type runModel struct {
	ID                string     `gorm:"column:id;primaryKey"`
	PipelineID        string     `gorm:"column:pipeline_id;index:idx_runs_pipeline,priority:1"`
	StartedAt         time.Time  `gorm:"column:started_at;index:idx_runs_pipeline,priority:2,sort:desc"`
	FinishedAt        *time.Time `gorm:"column:finished_at"`
	DurationMs        *int64     `gorm:"column:duration_ms"`
	Status            string     `gorm:"column:status"`
	RowsProcessed     int64      `gorm:"column:rows_processed"`
	RowsSkipped       int64      `gorm:"column:rows_skipped"`
	ErrorMessage      *string    `gorm:"column:error_message"`
	Stage             string     `gorm:"column:stage"`
	TriggeredBy       string     `gorm:"column:triggered_by"`
	RetryOf           *string    `gorm:"column:retry_of"`
	UsedSnapshot      bool       `gorm:"column:used_snapshot"`
	Snapshot          []byte     `gorm:"column:snapshot;type:jsonb"`
	SnapshotExpiresAt *time.Time `gorm:"column:snapshot_expires_at;index"`
}

func (runModel) TableName() string { return "pipeline_runs" }

type settingsModel struct {
	ID                     int  `gorm:"column:id;primaryKey"`
	FailedRunRetentionDays int  `gorm:"column:failed_run_retention_days"`
	NotificationsEnabled   bool `gorm:"column:notifications_enabled"`
	NotifyOnFailure        bool `gorm:"column:notify_on_failure"`
	NotifyOnSuccess        bool `gorm:"column:notify_on_success"`
}

func (settingsModel) TableName() string { return "engine_settings" }

// PostgresStore implements Store on gorm. Pipeline definitions and snapshots
// are JSONB documents; the columns the scheduler filters on are mirrored.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// PostgresOptions configures OpenPostgres.
type PostgresOptions struct {
	MaxConns    int
	AutoMigrate bool
	// Defaults seeds the settings row when none exists.
	Defaults Settings
}

// OpenPostgres connects, pings and optionally migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if opts.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxConns)
		sqlDB.SetMaxIdleConns(opts.MaxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, logger: logger.With(zap.String("component", "postgres_store"))}
	if opts.AutoMigrate {
		if err := s.Migrate(ctx, opts.Defaults); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates or updates the tables and seeds the settings row.
func (s *PostgresStore) Migrate(ctx context.Context, defaults Settings) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&pipelineModel{}, &runModel{}, &settingsModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	seed := toSettingsModel(defaults)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	s.logger.Info("schema migrated")
	return nil
}

// GetPipeline implements PipelineStore.
func (s *PostgresStore) GetPipeline(ctx context.Context, id string) (*models.Pipeline, error) {
	var row pipelineModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "pipeline", id)
	}
	return fromPipelineModel(row)
}

// SavePipeline implements PipelineStore.
func (s *PostgresStore) SavePipeline(ctx context.Context, p *models.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	row, err := toPipelineModel(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "schedule_enabled", "next_run_at", "definition", "updated_at"}),
	}).Create(&row).Error
}

// DeletePipeline implements PipelineStore.
func (s *PostgresStore) DeletePipeline(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&pipelineModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nebulaerrors.NotFound("pipeline", id)
	}
	return nil
}

// ListPipelines implements PipelineStore.
func (s *PostgresStore) ListPipelines(ctx context.Context) ([]*models.Pipeline, error) {
	var rows []pipelineModel
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromPipelineModels(rows)
}

// ListDuePipelines implements PipelineStore.
func (s *PostgresStore) ListDuePipelines(ctx context.Context, now time.Time) ([]*models.Pipeline, error) {
	var rows []pipelineModel
	err := s.db.WithContext(ctx).
		Where("schedule_enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromPipelineModels(rows)
}

// UpdateNextRun implements PipelineStore.
func (s *PostgresStore) UpdateNextRun(ctx context.Context, id string, next *time.Time) error {
	res := s.db.WithContext(ctx).Model(&pipelineModel{}).Where("id = ?", id).Update("next_run_at", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nebulaerrors.NotFound("pipeline", id)
	}
	return nil
}

// UpdateWatermark implements PipelineStore. The definition is rewritten under
// a row lock so concurrent saves are not lost.
func (s *PostgresStore) UpdateWatermark(ctx context.Context, id, value string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row pipelineModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&row).Error; err != nil {
			return notFound(err, "pipeline", id)
		}
		p, err := fromPipelineModel(row)
		if err != nil {
			return err
		}
		if p.Incremental == nil {
			return nebulaerrors.ValidationError("pipeline %s has no incremental configuration", id)
		}
		p.Incremental.LastValue = value
		def, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Model(&pipelineModel{}).Where("id = ?", id).Update("definition", def).Error
	})
}

// CreateRun implements RunLogStore.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.PipelineRunLog) error {
	row, err := toRunModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// FinalizeRun implements RunLogStore. The status guard makes the terminal
// transition happen at most once.
func (s *PostgresStore) FinalizeRun(ctx context.Context, run *models.PipelineRunLog) error {
	if !run.IsTerminal() {
		return fmt.Errorf("run %s cannot be finalized as %s", run.ID, run.Status)
	}
	row, err := toRunModel(run)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).
		Where("id = ? AND status = ?", run.ID, string(models.RunStatusRunning)).
		Select("finished_at", "duration_ms", "status", "rows_processed", "rows_skipped",
			"error_message", "stage", "snapshot", "snapshot_expires_at").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s is missing or already finalized", run.ID)
	}
	return nil
}

// GetRun implements RunLogStore.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.PipelineRunLog, error) {
	var row runModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "run", id)
	}
	return fromRunModel(row)
}

// ListRuns implements RunLogStore.
func (s *PostgresStore) ListRuns(ctx context.Context, pipelineID string, limit int) ([]*models.PipelineRunLog, error) {
	q := s.db.WithContext(ctx).Where("pipeline_id = ?", pipelineID).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []runModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.PipelineRunLog, 0, len(rows))
	for _, row := range rows {
		run, err := fromRunModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ClearExpiredSnapshots implements RunLogStore.
func (s *PostgresStore) ClearExpiredSnapshots(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).Model(&runModel{}).
		Where("snapshot_expires_at IS NOT NULL AND snapshot_expires_at <= ?", now).
		Updates(map[string]interface{}{"snapshot": gorm.Expr("NULL"), "snapshot_expires_at": gorm.Expr("NULL")})
	return int(res.RowsAffected), res.Error
}

// Settings implements SettingsStore.
func (s *PostgresStore) Settings(ctx context.Context) (Settings, error) {
	var row settingsModel
	if err := s.db.WithContext(ctx).Where("id = ?", 1).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	return fromSettingsModel(row), nil
}

// SaveSettings implements SettingsStore.
func (s *PostgresStore) SaveSettings(ctx context.Context, settings Settings) error {
	if settings.FailedRunRetentionDays < 0 {
		return nebulaerrors.ValidationError("failed run retention cannot be negative")
	}
	row := toSettingsModel(settings)
	return s.db.WithContext(ctx).Save(&row).Error
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nebulaerrors.NotFound(kind, id)
	}
	return err
}
