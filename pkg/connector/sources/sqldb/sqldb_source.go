// Package sqldb provides database/sql backed sources for MySQL and SQLite.
package sqldb

import (
	"context"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/sqlutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

func init() {
	for _, d := range []sqlutil.Driver{sqlutil.MySQLDriver, sqlutil.SQLiteDriver} {
		driver := d
		_ = registry.RegisterSource(driver.Dialect.Name, func() core.SourceReader { return NewSQLSource(driver) })
		_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
			Name:         driver.Dialect.Name,
			Type:         string(core.ConnectorTypeSource),
			Description:  driver.Dialect.Name + " table or query source",
			Version:      "1.0.0",
			Capabilities: []string{"batch", "incremental", "schema_discovery", "watermark_pushdown"},
			Parameters:   []string{"table", "query"},
		})
	}
}

// SQLSource reads a table or query. The watermark is pushed down into the
// statement.
type SQLSource struct {
	driver sqlutil.Driver
}

// NewSQLSource creates a source for driver.
func NewSQLSource(driver sqlutil.Driver) *SQLSource {
	return &SQLSource{driver: driver}
}

func (s *SQLSource) provider() string {
	return s.driver.Dialect.Name
}

// Read implements core.SourceReader.
func (s *SQLSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, s.provider(), "read", func(ctx context.Context) ([]*models.Record, error) {
		return s.query(ctx, cfg, wm, 0)
	})
}

// DiscoverSchema implements core.SourceReader.
func (s *SQLSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	var cols []string
	err := base.Observe(ctx, s.provider(), "discover_schema", func(ctx context.Context) error {
		opts, err := sqlutil.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		db, err := s.driver.Open(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer db.Close()

		cols, err = sqlutil.DiscoverColumns(ctx, db, s.driver.Dialect, opts)
		return err
	})
	return cols, err
}

// DryRunPreview implements core.SourceReader.
func (s *SQLSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, s.provider(), "preview", func(ctx context.Context) ([]*models.Record, error) {
		return s.query(ctx, cfg, nil, core.SampleSize(sampleSize))
	})
}

// TestConnection opens and pings the database.
func (s *SQLSource) TestConnection(ctx context.Context, connectionString string) error {
	db, err := s.driver.Open(ctx, connectionString)
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *SQLSource) query(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark, limit int) ([]*models.Record, error) {
	opts, err := sqlutil.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Watermark = wm
	opts.Limit = limit

	db, err := s.driver.Open(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return sqlutil.Query(ctx, db, s.driver.Dialect, opts)
}
