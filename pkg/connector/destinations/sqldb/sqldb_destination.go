// Package sqldb provides database/sql backed destinations for MySQL and
// SQLite.
package sqldb

import (
	"context"
	"errors"

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
		_ = registry.RegisterDestination(driver.Dialect.Name, func() core.DestinationWriter { return NewSQLDestination(driver) })
		_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
			Name:         driver.Dialect.Name,
			Type:         string(core.ConnectorTypeDestination),
			Description:  driver.Dialect.Name + " table destination using multi-row inserts",
			Version:      "1.0.0",
			Capabilities: []string{"batch", "transactional"},
			Parameters:   []string{"table", "columns"},
		})
	}
}

// SQLDestination inserts records into an existing table.
type SQLDestination struct {
	driver sqlutil.Driver
}

// NewSQLDestination creates a destination for driver.
func NewSQLDestination(driver sqlutil.Driver) *SQLDestination {
	return &SQLDestination{driver: driver}
}

// Write inserts records in a single transaction.
func (d *SQLDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, d.driver.Dialect.Name, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		table := cfg.Param("table", "")
		if table == "" {
			return errors.New("table parameter is required")
		}
		db, err := d.driver.Open(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer db.Close()

		return sqlutil.InsertRecords(ctx, db, d.driver.Dialect, table, sqlutil.Columns(cfg, records), records)
	})
}

// ValidateSchema checks fields against the schema text, or against the
// table's columns when there is none.
func (d *SQLDestination) ValidateSchema(ctx context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	if len(cfg.SchemaFields()) > 0 {
		return base.ValidateAgainstSchema(cfg, fields), nil
	}
	var cols []string
	err := base.Observe(ctx, d.driver.Dialect.Name, "validate_schema", func(ctx context.Context) error {
		table := cfg.Param("table", "")
		if table == "" {
			return errors.New("table parameter is required")
		}
		db, err := d.driver.Open(ctx, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer db.Close()

		cols, err = sqlutil.DiscoverColumns(ctx, db, d.driver.Dialect, sqlutil.SelectOptions{Table: table})
		return err
	})
	if err != nil {
		return false, err
	}
	return base.ContainsAll(cols, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *SQLDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection opens and pings the database.
func (d *SQLDestination) TestConnection(ctx context.Context, connectionString string) error {
	db, err := d.driver.Open(ctx, connectionString)
	if err != nil {
		return err
	}
	return db.Close()
}
