package record

import (
	"context"

	"github.com/turbolytics/activerecord/pkg/query"
)

// Delegate executes record operations against a store. Filters are
// structured; implementations bind every value as a parameter.
// Implementations must be safe for concurrent use.
type Delegate interface {
	// Insert stores values and returns the generated primary key.
	Insert(ctx context.Context, table string, values map[string]any, primaryKey string) (int64, error)
	Update(ctx context.Context, table string, values map[string]any, where []query.Filter) (int64, error)
	Delete(ctx context.Context, table string, where []query.Filter) (int64, error)
	// Query returns one map per row, keyed by column name.
	Query(ctx context.Context, sel *query.Select) ([]map[string]any, error)
	Count(ctx context.Context, sel *query.Select) (int64, error)
}

// Namer is implemented by delegates that identify their backend in change
// events.
type Namer interface {
	Name() string
}

// KeyBinder is implemented by delegates that keep the primary key under a
// storage name of their own. NewModel binds the key of its table before any
// operation runs.
type KeyBinder interface {
	BindPrimaryKey(table, primaryKey string)
}
