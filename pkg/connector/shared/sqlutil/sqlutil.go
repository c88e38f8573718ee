// Package sqlutil builds the statements shared by the SQL connectors and
// converts driver values into record values.
package sqlutil

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// Dialect captures identifier quoting and placeholder style.
type Dialect struct {
	Name        string
	quote       string
	numbered    bool
	schemaQuery string
}

var (
	Postgres = Dialect{
		Name:     "postgresql",
		quote:    `"`,
		numbered: true,
		schemaQuery: `SELECT column_name FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`,
	}
	MySQL = Dialect{
		Name:  "mysql",
		quote: "`",
		schemaQuery: `SELECT column_name FROM information_schema.columns
			WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ? ORDER BY ordinal_position`,
	}
	SQLite = Dialect{
		Name:  "sqlite",
		quote: `"`,
	}
)

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteIdent quotes a possibly schema-qualified identifier. Each dot
// separated part must be a plain identifier.
func (d Dialect) QuoteIdent(name string) (string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	for i, p := range parts {
		if !identPart.MatchString(p) {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
		parts[i] = d.quote + p + d.quote
	}
	return strings.Join(parts, "."), nil
}

// Placeholder returns the bind marker for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// SelectOptions describes a read. Exactly one of Table or Query is set.
type SelectOptions struct {
	Table     string
	Query     string
	Watermark *core.Watermark
	Limit     int
}

// OptionsFromConfig reads the table and query parameters.
func OptionsFromConfig(cfg models.DataSourceConfig) (SelectOptions, error) {
	opts := SelectOptions{
		Table: strings.TrimSpace(cfg.Param("table", "")),
		Query: strings.TrimSpace(cfg.Param("query", "")),
	}
	if opts.Table == "" && opts.Query == "" {
		return opts, errors.New("either table or query parameter is required")
	}
	if opts.Table != "" && opts.Query != "" {
		return opts, errors.New("table and query parameters are mutually exclusive")
	}
	opts.Query = strings.TrimRight(opts.Query, "; \n\t")
	return opts, nil
}

// BuildSelect renders the read statement and its arguments. The watermark is
// pushed down as a strictly-greater predicate ordered by the watermark field.
func (d Dialect) BuildSelect(opts SelectOptions) (string, []interface{}, error) {
	var b strings.Builder
	var args []interface{}

	if opts.Query != "" {
		b.WriteString("SELECT * FROM (")
		b.WriteString(opts.Query)
		b.WriteString(") AS q")
	} else {
		table, err := d.QuoteIdent(opts.Table)
		if err != nil {
			return "", nil, err
		}
		b.WriteString("SELECT * FROM ")
		b.WriteString(table)
	}

	if opts.Watermark != nil {
		col, err := d.QuoteIdent(opts.Watermark.Field)
		if err != nil {
			return "", nil, err
		}
		args = append(args, opts.Watermark.Value)
		fmt.Fprintf(&b, " WHERE %s > %s ORDER BY %s", col, d.Placeholder(len(args)), col)
	}

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	return b.String(), args, nil
}

// BuildInsert renders a multi-row INSERT for rows records over columns.
func (d Dialect) BuildInsert(table string, columns []string, rows int) (string, error) {
	quotedTable, err := d.QuoteIdent(table)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if quoted[i], err = d.QuoteIdent(c); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quotedTable, strings.Join(quoted, ", "))
	n := 0
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(d.Placeholder(n))
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}

// SplitTable splits "schema.table" into its parts. The schema is empty when
// the name is unqualified.
func SplitTable(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Columns returns the record fields to write: the "columns" parameter when
// set, otherwise the union of record fields.
func Columns(cfg models.DataSourceConfig, records []*models.Record) []string {
	if cols := models.ParseFieldList(cfg.Param("columns", "")); len(cols) > 0 {
		return cols
	}
	seen := make(map[string]bool)
	var cols []string
	for _, r := range records {
		for _, f := range r.Fields() {
			if !seen[f] {
				seen[f] = true
				cols = append(cols, f)
			}
		}
	}
	return cols
}

// Row extracts the values of columns from r; missing fields become NULL.
// Nested values are written as JSON text.
func Row(r *models.Record, columns []string) []interface{} {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		v, _ := r.GetData(c)
		switch v.(type) {
		case map[string]interface{}, []interface{}, *models.Record:
			row[i] = models.ValueString(v)
		default:
			row[i] = v
		}
	}
	return row
}

// Value normalizes a driver value for a record.
func Value(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC()
	default:
		return t
	}
}

// ScanRows reads every row of rows into records, keeping column order.
func ScanRows(rows *sql.Rows, limit int) ([]*models.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []*models.Record
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := models.NewRecord(len(columns))
		for i, c := range columns {
			r.SetData(c, Value(values[i]))
		}
		records = append(records, r)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, rows.Err()
}

// SchemaQuery returns the information_schema lookup for the dialect, or an
// empty string when the dialect has none.
func (d Dialect) SchemaQuery() string {
	return d.schemaQuery
}
