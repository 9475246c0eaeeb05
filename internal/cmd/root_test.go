package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbolytics/activerecord/pkg/sqldb"
)

const itemsDDL = `CREATE TABLE items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    qty INTEGER,
    price REAL,
    created_at DATETIME
)`

const configTemplate = `logger:
  level: info
database:
  driver: sqlite
  dsn: "file:%s"
tables:
  - name: items
    primary_key: id
    fields:
      - name: id
        type: integer
      - name: name
        type: string
      - name: qty
        type: integer
        nullable: true
      - name: price
        type: float
        nullable: true
      - name: created_at
        type: timestamp
        nullable: true
export:
  path: %s
  batch_size: 2
`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "items.db")

	ctx := context.Background()
	db, err := sqldb.Open(ctx, "sqlite", "file:"+dbPath)
	require.NoError(t, err)
	_, err = db.DB.ExecContext(ctx, itemsDDL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := filepath.Join(dir, "activerecord.yml")
	require.NoError(t, os.WriteFile(cfg,
		[]byte(fmt.Sprintf(configTemplate, dbPath, filepath.Join(dir, "exports"))), 0o644))
	return cfg
}

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeRow(t *testing.T, line string) map[string]any {
	t.Helper()
	row := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(line), &row))
	return row
}

func TestRecordsLifecycle(t *testing.T) {
	cfg := setup(t)

	out, err := run(t, cfg, "records", "save", "items", "--data", `{"name":"bolt","qty":10}`)
	require.NoError(t, err)
	row := decodeRow(t, out)
	assert.Equal(t, float64(1), row["id"])
	assert.Equal(t, "bolt", row["name"])

	_, err = run(t, cfg, "records", "save", "items", "--data", `{"id":1,"qty":12}`)
	require.NoError(t, err)

	out, err = run(t, cfg, "records", "find", "items", "1")
	require.NoError(t, err)
	row = decodeRow(t, out)
	assert.Equal(t, float64(12), row["qty"])
	assert.Equal(t, "bolt", row["name"])

	_, err = run(t, cfg, "fixtures", "generate", "--table", "items", "--records", "4")
	require.NoError(t, err)

	out, err = run(t, cfg, "records", "count", "items")
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	out, err = run(t, cfg, "records", "list", "items", "--where", "qty = 12")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "bolt", decodeRow(t, lines[0])["name"])

	out, err = run(t, cfg, "records", "list", "items", "--order", "-id", "--limit", "2")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, float64(5), decodeRow(t, lines[0])["id"])

	_, err = run(t, cfg, "records", "delete", "items", "1")
	require.NoError(t, err)

	out, err = run(t, cfg, "records", "count", "items")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)

	_, err = run(t, cfg, "records", "find", "items", "1")
	assert.Error(t, err)
}

func TestRecordsErrors(t *testing.T) {
	cfg := setup(t)

	_, err := run(t, cfg, "records", "find", "items", "abc")
	assert.Error(t, err)

	_, err = run(t, cfg, "records", "count", "widgets")
	assert.Error(t, err)

	_, err = run(t, cfg, "records", "save", "items", "--data", `{"qty":"many"}`)
	assert.Error(t, err)

	_, err = run(t, cfg, "records", "list", "items", "--where", "qty = 1 or 1 = 1")
	assert.Error(t, err)

	_, err = run(t, cfg, "records", "save", "items", "--data", `{"id":7,"qty":1}`)
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	cfg := setup(t)

	_, err := run(t, cfg, "fixtures", "generate", "--table", "items", "--records", "5")
	require.NoError(t, err)

	out, err := run(t, cfg, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "items\t5 rows\t3 files")

	catalogs, err := filepath.Glob(filepath.Join(filepath.Dir(cfg), "exports", "*", "items", "catalog.json"))
	require.NoError(t, err)
	require.Len(t, catalogs, 1)

	parts, err := filepath.Glob(filepath.Join(filepath.Dir(catalogs[0]), "part-*.parquet"))
	require.NoError(t, err)
	assert.Len(t, parts, 3)
}

func TestSchema(t *testing.T) {
	cfg := setup(t)

	out, err := run(t, cfg, "schema", "validate")
	require.NoError(t, err)
	assert.Equal(t, "items: 5 fields, primary key id\n", out)

	out, err = run(t, cfg, "schema", "generate", "--query",
		"create table users (id bigint not null primary key, email varchar(255) not null, score double)")
	require.NoError(t, err)
	assert.Contains(t, out, "name: users")
	assert.Contains(t, out, "primary_key: id")
	assert.Contains(t, out, "type: float")

	_, err = run(t, cfg, "schema", "generate")
	assert.Error(t, err)
}
