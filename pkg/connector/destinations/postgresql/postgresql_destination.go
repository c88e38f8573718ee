// Package postgresql provides a PostgreSQL destination connector that loads
// records with COPY.
package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/sqlutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "postgresql"

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewPostgreSQLDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "PostgreSQL table destination using COPY",
		Version:      "2.0.0",
		Capabilities: []string{"batch", "bulk_load", "transactional"},
		Parameters:   []string{"table", "columns"},
	})
}

// PostgreSQLDestination copies records into an existing table.
type PostgreSQLDestination struct{}

// NewPostgreSQLDestination creates a PostgreSQL destination.
func NewPostgreSQLDestination() *PostgreSQLDestination {
	return &PostgreSQLDestination{}
}

// Write copies records in one COPY statement.
func (d *PostgreSQLDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		table := cfg.Param("table", "")
		if table == "" {
			return errors.New("table parameter is required")
		}
		schema, name := sqlutil.SplitTable(table)
		ident := pgx.Identifier{name}
		if schema != "" {
			ident = pgx.Identifier{schema, name}
		}
		columns := sqlutil.Columns(cfg, records)

		pool, err := sqlutil.OpenPool(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows := make([][]interface{}, len(records))
		for i, r := range records {
			rows[i] = sqlutil.Row(r, columns)
		}

		n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		if n != int64(len(records)) {
			return fmt.Errorf("copied %d of %d rows", n, len(records))
		}
		return nil
	})
}

// ValidateSchema checks fields against the schema text, or against the
// table's columns when there is none.
func (d *PostgreSQLDestination) ValidateSchema(ctx context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	if len(cfg.SchemaFields()) > 0 {
		return base.ValidateAgainstSchema(cfg, fields), nil
	}
	var cols []string
	err := base.Observe(ctx, provider, "validate_schema", func(ctx context.Context) error {
		table := cfg.Param("table", "")
		if table == "" {
			return errors.New("table parameter is required")
		}
		pool, err := sqlutil.OpenPool(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer pool.Close()

		cols, err = sqlutil.PgxColumns(ctx, pool, sqlutil.SelectOptions{Table: table})
		return err
	})
	if err != nil {
		return false, err
	}
	return base.ContainsAll(cols, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *PostgreSQLDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection opens a pool, pings and closes it.
func (d *PostgreSQLDestination) TestConnection(ctx context.Context, connectionString string) error {
	pool, err := sqlutil.OpenPool(ctx, connectionString)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}
