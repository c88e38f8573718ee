package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		opts     SelectOptions
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "table",
			dialect: Postgres,
			opts:    SelectOptions{Table: "public.users"},
			wantSQL: `SELECT * FROM "public"."users"`,
		},
		{
			name:     "watermark postgres",
			dialect:  Postgres,
			opts:     SelectOptions{Table: "users", Watermark: core.NewWatermark("updated_at", "2024-01-01")},
			wantSQL:  `SELECT * FROM "users" WHERE "updated_at" > $1 ORDER BY "updated_at"`,
			wantArgs: []interface{}{"2024-01-01"},
		},
		{
			name:     "watermark mysql with limit",
			dialect:  MySQL,
			opts:     SelectOptions{Table: "users", Watermark: core.NewWatermark("id", "10"), Limit: 5},
			wantSQL:  "SELECT * FROM `users` WHERE `id` > ? ORDER BY `id` LIMIT 5",
			wantArgs: []interface{}{"10"},
		},
		{
			name:    "query",
			dialect: SQLite,
			opts:    SelectOptions{Query: "SELECT id FROM t", Limit: 3},
			wantSQL: "SELECT * FROM (SELECT id FROM t) AS q LIMIT 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.dialect.BuildSelect(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQuoteIdentRejectsInjection(t *testing.T) {
	_, err := Postgres.QuoteIdent(`users"; DROP TABLE x; --`)
	assert.Error(t, err)
	_, _, err = Postgres.BuildSelect(SelectOptions{Table: "t", Watermark: core.NewWatermark("a b", "1")})
	assert.Error(t, err)
}

func TestBuildInsert(t *testing.T) {
	sql, err := Postgres.BuildInsert("users", []string{"id", "name"}, 2)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("id", "name") VALUES ($1, $2), ($3, $4)`, sql)

	sql, err = MySQL.BuildInsert("users", []string{"id"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `users` (`id`) VALUES (?), (?)", sql)
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := OptionsFromConfig(models.DataSourceConfig{})
	assert.Error(t, err)

	_, err = OptionsFromConfig(models.DataSourceConfig{Parameters: map[string]string{"table": "a", "query": "SELECT 1"}})
	assert.Error(t, err)

	opts, err := OptionsFromConfig(models.DataSourceConfig{Parameters: map[string]string{"query": "SELECT 1;"}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", opts.Query)
}

func TestColumnsAndRow(t *testing.T) {
	a := models.NewRecord(2)
	a.SetData("id", 1)
	a.SetData("tags", []interface{}{"x"})
	b := models.NewRecord(1)
	b.SetData("name", "n")

	cols := Columns(models.DataSourceConfig{}, []*models.Record{a, b})
	assert.Equal(t, []string{"id", "tags", "name"}, cols)
	assert.Equal(t, []interface{}{1, `["x"]`, nil}, Row(a, cols))

	cfg := models.DataSourceConfig{Parameters: map[string]string{"columns": "name"}}
	assert.Equal(t, []string{"name"}, Columns(cfg, nil))

	schema, table := SplitTable("analytics.events")
	assert.Equal(t, "analytics", schema)
	assert.Equal(t, "events", table)
}
