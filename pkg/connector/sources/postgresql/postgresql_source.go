// Package postgresql provides a PostgreSQL source connector on pgx.
package postgresql

import (
	"context"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/sqlutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "postgresql"

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewPostgreSQLSource() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "PostgreSQL table or query source",
		Version:      "2.0.0",
		Capabilities: []string{"batch", "incremental", "schema_discovery", "watermark_pushdown"},
		Parameters:   []string{"table", "query"},
	})
}

// PostgreSQLSource reads a table or query, pushing the watermark down as
// WHERE col > $1.
type PostgreSQLSource struct{}

// NewPostgreSQLSource creates a PostgreSQL source.
func NewPostgreSQLSource() *PostgreSQLSource {
	return &PostgreSQLSource{}
}

// Read implements core.SourceReader.
func (s *PostgreSQLSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		return query(ctx, cfg, wm, 0)
	})
}

// DiscoverSchema uses information_schema for tables and the result
// description for queries.
func (s *PostgreSQLSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	var cols []string
	err := base.Observe(ctx, provider, "discover_schema", func(ctx context.Context) error {
		opts, err := sqlutil.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		pool, err := sqlutil.OpenPool(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer pool.Close()

		cols, err = sqlutil.PgxColumns(ctx, pool, opts)
		return err
	})
	return cols, err
}

// DryRunPreview implements core.SourceReader.
func (s *PostgreSQLSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "preview", func(ctx context.Context) ([]*models.Record, error) {
		return query(ctx, cfg, nil, core.SampleSize(sampleSize))
	})
}

// TestConnection opens a pool, pings and closes it.
func (s *PostgreSQLSource) TestConnection(ctx context.Context, connectionString string) error {
	pool, err := sqlutil.OpenPool(ctx, connectionString)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func query(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark, limit int) ([]*models.Record, error) {
	opts, err := sqlutil.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Watermark = wm
	opts.Limit = limit

	stmt, args, err := sqlutil.Postgres.BuildSelect(opts)
	if err != nil {
		return nil, err
	}

	pool, err := sqlutil.OpenPool(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return sqlutil.PgxRecords(rows, limit)
}
