package sqldb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/shared/sqlutil"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

func TestSQLiteDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dst.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE users (id INTEGER, name TEXT)`)
	require.NoError(t, err)

	dst := NewSQLDestination(sqlutil.SQLiteDriver)
	cfg := models.DataSourceConfig{Type: "sqlite", ConnectionString: path, Parameters: map[string]string{"table": "users"}}
	ctx := context.Background()

	records := make([]*models.Record, 0, 600)
	for i := 0; i < 600; i++ {
		r := models.NewRecord(2)
		r.SetData("id", int64(i))
		r.SetData("name", "user")
		records = append(records, r)
	}
	require.NoError(t, dst.Write(ctx, cfg, records))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 600, count)

	ok, err := dst.ValidateSchema(ctx, cfg, []string{"id", "name"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dst.ValidateSchema(ctx, cfg, []string{"id", "email"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFailsOnUnknownColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dst.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE users (id INTEGER)`)
	require.NoError(t, err)

	r := models.NewRecord(1)
	r.SetData("missing", 1)
	cfg := models.DataSourceConfig{ConnectionString: path, Parameters: map[string]string{"table": "users"}}
	assert.Error(t, NewSQLDestination(sqlutil.SQLiteDriver).Write(context.Background(), cfg, []*models.Record{r}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Zero(t, count)
}
