// Package sqldb is a Delegate over database/sql. Statements come from
// query.Dialect, so every value is a bound parameter.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/turbolytics/activerecord/internal/metrics"
	"github.com/turbolytics/activerecord/pkg/query"
)

type DB struct {
	DB      *sql.DB
	dialect query.Dialect
	driver  string
	logger  *zap.Logger
}

type Option func(*DB)

func WithLogger(l *zap.Logger) Option {
	return func(d *DB) {
		d.logger = l
	}
}

// Open connects with one of the registered drivers: sqlite, mysql,
// postgres (lib/pq) or pgx.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	dialect, err := query.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single connection keeps :memory: databases shared and
		// serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: ping %s: %w", driver, err)
	}
	return New(db, driver, dialect, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, driver string, dialect query.Dialect, opts ...Option) *DB {
	d := &DB{
		DB:      db,
		dialect: dialect,
		driver:  driver,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DB) Name() string {
	return d.driver
}

func (d *DB) Close() error {
	return d.DB.Close()
}

func (d *DB) Insert(ctx context.Context, table string, values map[string]any, primaryKey string) (id int64, err error) {
	defer metrics.Observe(d.driver, "insert", time.Now(), &err)

	stmt, args := d.dialect.InsertSQL(table, values, primaryKey)
	d.logger.Debug("exec", zap.String("stmt", stmt))
	if d.dialect.Returning {
		if err := d.DB.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := d.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) Update(ctx context.Context, table string, values map[string]any, where []query.Filter) (n int64, err error) {
	defer metrics.Observe(d.driver, "update", time.Now(), &err)

	stmt, args, err := d.dialect.UpdateSQL(table, values, where)
	if err != nil {
		return 0, err
	}
	return d.exec(ctx, "update", stmt, args)
}

func (d *DB) Delete(ctx context.Context, table string, where []query.Filter) (n int64, err error) {
	defer metrics.Observe(d.driver, "delete", time.Now(), &err)

	stmt, args, err := d.dialect.DeleteSQL(table, where)
	if err != nil {
		return 0, err
	}
	return d.exec(ctx, "delete", stmt, args)
}

func (d *DB) exec(ctx context.Context, op, stmt string, args []any) (int64, error) {
	d.logger.Debug("exec", zap.String("stmt", stmt))
	res, err := d.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	metrics.Rows(d.driver, op, n)
	return n, nil
}

func (d *DB) Query(ctx context.Context, sel *query.Select) (rows []map[string]any, err error) {
	defer metrics.Observe(d.driver, "select", time.Now(), &err)

	stmt, args, err := d.dialect.SelectSQL(sel, []string{"*"})
	if err != nil {
		return nil, err
	}
	d.logger.Debug("query", zap.String("stmt", stmt))
	res, err := d.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	rows, err = scanRows(res)
	if err != nil {
		return nil, err
	}
	metrics.Rows(d.driver, "select", int64(len(rows)))
	return rows, nil
}

func (d *DB) Count(ctx context.Context, sel *query.Select) (n int64, err error) {
	defer metrics.Observe(d.driver, "count", time.Now(), &err)

	stmt, args, err := d.dialect.CountSQL(sel, []string{"*"})
	if err != nil {
		return 0, err
	}
	d.logger.Debug("query", zap.String("stmt", stmt))
	err = d.DB.QueryRowContext(ctx, stmt, args...).Scan(&n)
	return n, err
}

// scanRows reads every row into a column keyed map.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				// drivers may reuse the buffer on the next Scan
				values[i] = string(b)
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
