// Package postgres is a Delegate on a native pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal/metrics"
	"github.com/turbolytics/activerecord/pkg/query"
)

const backend = "pgxpool"

type Pool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

type Option func(*Pool)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// Connect opens a pool for a postgres:// URI and checks it with a ping.
func Connect(ctx context.Context, uri string, opts ...Option) (*Pool, error) {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(pool, opts...), nil
}

func New(pool *pgxpool.Pool, opts ...Option) *Pool {
	p := &Pool{
		pool:   pool,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Name() string {
	return "postgresql"
}

func (p *Pool) Close() {
	p.pool.Close()
}

// Exec runs a statement that is not a record operation, such as DDL.
func (p *Pool) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := p.pool.Exec(ctx, stmt, args...)
	return err
}

func (p *Pool) Insert(ctx context.Context, table string, values map[string]any, primaryKey string) (id int64, err error) {
	defer metrics.Observe(backend, "insert", time.Now(), &err)

	stmt, args := query.Postgres.InsertSQL(table, values, primaryKey)
	p.logger.Debug("exec", zap.String("stmt", stmt))
	err = p.pool.QueryRow(ctx, stmt, args...).Scan(&id)
	return id, err
}

func (p *Pool) Update(ctx context.Context, table string, values map[string]any, where []query.Filter) (n int64, err error) {
	defer metrics.Observe(backend, "update", time.Now(), &err)

	stmt, args, err := query.Postgres.UpdateSQL(table, values, where)
	if err != nil {
		return 0, err
	}
	return p.exec(ctx, "update", stmt, args)
}

func (p *Pool) Delete(ctx context.Context, table string, where []query.Filter) (n int64, err error) {
	defer metrics.Observe(backend, "delete", time.Now(), &err)

	stmt, args, err := query.Postgres.DeleteSQL(table, where)
	if err != nil {
		return 0, err
	}
	return p.exec(ctx, "delete", stmt, args)
}

func (p *Pool) exec(ctx context.Context, op, stmt string, args []any) (int64, error) {
	p.logger.Debug("exec", zap.String("stmt", stmt))
	tag, err := p.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	metrics.Rows(backend, op, tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func (p *Pool) Query(ctx context.Context, sel *query.Select) (out []map[string]any, err error) {
	defer metrics.Observe(backend, "select", time.Now(), &err)

	stmt, args, err := query.Postgres.SelectSQL(sel, []string{"*"})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("query", zap.String("stmt", stmt))
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	out, err = pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	for _, row := range out {
		for k, v := range row {
			row[k] = normalize(v)
		}
	}
	metrics.Rows(backend, "select", int64(len(out)))
	return out, nil
}

func (p *Pool) Count(ctx context.Context, sel *query.Select) (n int64, err error) {
	defer metrics.Observe(backend, "count", time.Now(), &err)

	stmt, args, err := query.Postgres.CountSQL(sel, []string{"*"})
	if err != nil {
		return 0, err
	}
	p.logger.Debug("query", zap.String("stmt", stmt))
	err = p.pool.QueryRow(ctx, stmt, args...).Scan(&n)
	return n, err
}

// normalize turns pgx values without a plain Go equivalent into one.
func normalize(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	}
	return v
}
