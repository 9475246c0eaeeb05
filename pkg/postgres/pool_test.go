package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turbolytics/activerecord/pkg/query"
	"github.com/turbolytics/activerecord/pkg/record"
)

func TestNormalize(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("2.5"))
	assert.Equal(t, 2.5, normalize(n))
	assert.Nil(t, normalize(pgtype.Numeric{}))
	assert.Equal(t, "bolt", normalize("bolt"))
	assert.Equal(t,
		"00112233-4455-6677-8899-aabbccddeeff",
		normalize([16]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}))
}

func TestIntegrationPostgresPool(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate pgContainer: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Exec(ctx, `CREATE TABLE items (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		qty INTEGER,
		price NUMERIC(10, 2)
	)`))

	schema := record.MustSchema("items", "id",
		record.Field{Name: "id", Type: record.Integer},
		record.Field{Name: "name", Type: record.String},
		record.Field{Name: "qty", Type: record.Integer, Nullable: true},
		record.Field{Name: "price", Type: record.Float, Nullable: true},
	)
	m := record.NewModel(schema, pool)

	item := m.New()
	require.NoError(t, item.ExchangeArray(map[string]any{"name": "bolt", "qty": 10, "price": 1.25}))
	require.NoError(t, item.Save(ctx))
	id := item.ID()
	require.NotZero(t, id)

	found, err := m.Find(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, map[string]any{"id": id, "name": "bolt", "qty": int64(10), "price": 1.25}, found.ToArray())

	require.NoError(t, found.Set("qty", 5))
	require.NoError(t, found.Save(ctx))
	reloaded, err := m.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reloaded.Get("qty"))

	n, err := m.Count(ctx, m.Select().Filter("name", query.OpLike, "b%"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, reloaded.Delete(ctx))
	gone, err := m.Find(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
