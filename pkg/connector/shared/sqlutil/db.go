package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// maxPlaceholders keeps multi-row inserts under the smallest bind limit of
// the supported drivers.
const maxPlaceholders = 999

// Driver pairs a database/sql driver name with its dialect.
type Driver struct {
	Name    string
	Dialect Dialect
}

var (
	MySQLDriver  = Driver{Name: "mysql", Dialect: MySQL}
	SQLiteDriver = Driver{Name: "sqlite3", Dialect: SQLite}
)

// Open opens and pings a database handle.
func (d Driver) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s connection string is required", d.Dialect.Name)
	}
	db, err := sql.Open(d.Name, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := base.DefaultRetryPolicy().Execute(ctx, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Query runs a select built from opts.
func Query(ctx context.Context, db *sql.DB, d Dialect, opts SelectOptions) ([]*models.Record, error) {
	query, args, err := d.BuildSelect(opts)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows, opts.Limit)
}

// DiscoverColumns lists the columns of the table or query in opts.
func DiscoverColumns(ctx context.Context, db *sql.DB, d Dialect, opts SelectOptions) ([]string, error) {
	if opts.Table != "" && d.SchemaQuery() != "" {
		schema, table := SplitTable(opts.Table)
		rows, err := db.QueryContext(ctx, d.SchemaQuery(), schema, table)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var cols []string
		for rows.Next() {
			var c string
			if err := rows.Scan(&c); err != nil {
				return nil, err
			}
			cols = append(cols, c)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("table %s not found", opts.Table)
		}
		return cols, nil
	}

	opts.Watermark = nil
	opts.Limit = 0
	query, _, err := d.BuildSelect(opts)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

// InsertRecords writes records in one transaction using multi-row inserts.
func InsertRecords(ctx context.Context, db *sql.DB, d Dialect, table string, columns []string, records []*models.Record) error {
	if len(columns) == 0 {
		return fmt.Errorf("no columns to insert")
	}
	perStmt := maxPlaceholders / len(columns)
	if perStmt < 1 {
		return fmt.Errorf("too many columns (%d)", len(columns))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(records); start += perStmt {
		end := start + perStmt
		if end > len(records) {
			end = len(records)
		}
		stmt, err := d.BuildInsert(table, columns, end-start)
		if err != nil {
			return err
		}
		args := make([]interface{}, 0, (end-start)*len(columns))
		for _, r := range records[start:end] {
			args = append(args, Row(r, columns)...)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}
	return tx.Commit()
}
