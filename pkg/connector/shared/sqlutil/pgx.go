package sqlutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// OpenPool parses connStr and opens a small pgx pool sized for one
// connector call, then verifies it with a ping.
func OpenPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(connStr) == "" {
		return nil, fmt.Errorf("postgresql connection string is required")
	}
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := base.DefaultRetryPolicy().Execute(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PgxRecords collects pgx rows into records.
func PgxRecords(rows pgx.Rows, limit int) ([]*models.Record, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var records []*models.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		r := models.NewRecord(len(fields))
		for i, fd := range fields {
			r.SetData(fd.Name, pgValue(values[i]))
		}
		records = append(records, r)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, rows.Err()
}

func pgValue(v interface{}) interface{} {
	switch t := v.(type) {
	case pgtype.Numeric:
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return Value(v)
	}
}

// PgxColumns lists the columns of the table or query in opts.
func PgxColumns(ctx context.Context, pool *pgxpool.Pool, opts SelectOptions) ([]string, error) {
	if opts.Table != "" {
		schema, table := SplitTable(opts.Table)
		if schema == "" {
			schema = "public"
		}
		rows, err := pool.Query(ctx, Postgres.SchemaQuery(), schema, table)
		if err != nil {
			return nil, err
		}
		cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("table %s not found", opts.Table)
		}
		return cols, nil
	}

	opts.Watermark = nil
	opts.Limit = 0
	query, _, err := Postgres.BuildSelect(opts)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, query+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make([]string, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		cols = append(cols, fd.Name)
	}
	return cols, rows.Err()
}
