package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	plocal "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/turbolytics/activerecord/internal/catalog"
	"github.com/turbolytics/activerecord/internal/local"
	"github.com/turbolytics/activerecord/pkg/memory"
	"github.com/turbolytics/activerecord/pkg/query"
	"github.com/turbolytics/activerecord/pkg/record"
)

var itemsSchema = record.MustSchema("items", "id",
	record.Field{Name: "id", Type: record.Integer},
	record.Field{Name: "name", Type: record.String},
	record.Field{Name: "qty", Type: record.Integer, Nullable: true},
	record.Field{Name: "price", Type: record.Float, Nullable: true},
	record.Field{Name: "created_at", Type: record.Timestamp, Nullable: true},
	record.Field{Name: "active", Type: record.Bool, Nullable: true},
)

func seededModel(t *testing.T, n int) *record.Model {
	t.Helper()
	m := record.NewModel(itemsSchema, memory.New())
	for i := 0; i < n; i++ {
		r := m.New()
		require.NoError(t, r.ExchangeArray(map[string]any{
			"name":       "item",
			"qty":        i,
			"price":      1.5,
			"created_at": time.Date(2024, 5, 1, 0, 0, i, 0, time.UTC),
		}))
		require.NoError(t, r.Save(context.Background()))
	}
	return m
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor(itemsSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"name=id, type=INT64, repetitiontype=OPTIONAL",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name=qty, type=INT64, repetitiontype=OPTIONAL",
		"name=price, type=DOUBLE, repetitiontype=OPTIONAL",
		"name=created_at, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL",
		"name=active, type=BOOLEAN, repetitiontype=OPTIONAL",
	}, s.Metadata())

	r := record.NewModel(itemsSchema, memory.New()).New()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.ExchangeArray(map[string]any{"id": 1, "name": "bolt", "created_at": ts}))
	row, err := s.Row(r)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "bolt", nil, nil, ts.UnixMilli(), nil}, row)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := local.New(dir, local.WithPrefix("run-1"))
	m := seededModel(t, 5)

	c, err := New(repo, WithBatchSize(2)).Export(ctx, "run-1", m, nil)
	require.NoError(t, err)
	assert.True(t, c.Success)
	assert.Equal(t, int64(5), c.NumSourceRecords)
	assert.Equal(t, int64(5), c.NumRecordsProcessed)
	assert.Equal(t, []string{
		"items/part-00000.parquet",
		"items/part-00001.parquet",
		"items/part-00002.parquet",
	}, c.Files)

	bs, err := os.ReadFile(filepath.Join(dir, "run-1", "items", "catalog.json"))
	require.NoError(t, err)
	var written catalog.Catalog
	require.NoError(t, json.Unmarshal(bs, &written))
	assert.Equal(t, "run-1", written.RunID)
	assert.True(t, written.Success)

	var rows int64
	for _, f := range c.Files {
		fr, err := plocal.NewLocalFileReader(filepath.Join(dir, "run-1", f))
		require.NoError(t, err)
		pr, err := reader.NewParquetReader(fr, nil, 1)
		require.NoError(t, err)
		rows += pr.GetNumRows()
		pr.ReadStop()
		fr.Close()
	}
	assert.Equal(t, int64(5), rows)
}

func TestExportFiltered(t *testing.T) {
	repo := local.New(t.TempDir())
	m := seededModel(t, 5)

	c, err := New(repo).Export(context.Background(), "run-2", m, m.Select().Filter("qty", query.OpGte, 3).Paginate(1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.NumRecordsProcessed)
	assert.Len(t, c.Files, 1)
}

type failingRepository struct{}

func (failingRepository) Write(ctx context.Context, key string, r io.Reader) error {
	return errors.New("disk full")
}

func TestExportFailure(t *testing.T) {
	c, err := New(failingRepository{}).Export(context.Background(), "run-3", seededModel(t, 1), nil)
	assert.Error(t, err)
	assert.False(t, c.Success)
	assert.Equal(t, "disk full", c.Error)
}
