package record

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/changes"
	"github.com/turbolytics/activerecord/pkg/query"
)

// Model binds a schema to a delegate. It is the entry point for creating
// records and running queries, and is safe for concurrent use.
type Model struct {
	schema    *Schema
	delegate  Delegate
	logger    *zap.Logger
	publisher changes.Publisher
}

type Option func(*Model)

func WithLogger(l *zap.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// WithPublisher emits a change event after every successful write.
func WithPublisher(p changes.Publisher) Option {
	return func(m *Model) {
		m.publisher = p
	}
}

func NewModel(schema *Schema, delegate Delegate, opts ...Option) *Model {
	m := &Model{
		schema:    schema,
		delegate:  delegate,
		logger:    zap.NewNop(),
		publisher: changes.NopPublisher{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if kb, ok := delegate.(KeyBinder); ok {
		kb.BindPrimaryKey(schema.table, schema.primaryKey)
	}
	return m
}

func (m *Model) Schema() *Schema {
	return m.schema
}

// New returns an empty, transient record.
func (m *Model) New() *Record {
	values := make(map[string]any, len(m.schema.fields))
	for _, f := range m.schema.fields {
		values[f.Name] = nil
	}
	return &Record{Model: m, values: values}
}

// Select returns an empty descriptor scoped to the model's table.
func (m *Model) Select() *query.Select {
	return query.New(m.schema.table)
}

// FetchAll runs sel and maps every row onto a fresh record. A nil sel
// selects all rows. No match is an empty slice.
func (m *Model) FetchAll(ctx context.Context, sel *query.Select) ([]*Record, error) {
	q, err := m.prepare(sel)
	if err != nil {
		return nil, err
	}
	rows, err := m.delegate.Query(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "select", Table: m.schema.table, Err: err}
	}
	records, err := m.Mapper().MapRows(rows)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("fetched",
		zap.String("table", m.schema.table),
		zap.Int("rows", len(records)),
	)
	return records, nil
}

// FetchRow returns the first record matched by sel, or nil when there is
// none.
func (m *Model) FetchRow(ctx context.Context, sel *query.Select) (*Record, error) {
	records, err := m.FetchAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Find loads the record with primary key id. A missing row is nil, nil.
func (m *Model) Find(ctx context.Context, id int64) (*Record, error) {
	sel := m.Select().WhereEq(m.schema.primaryKey, id)
	r, err := m.FetchRow(ctx, sel)
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			perr.ID = id
		}
		return nil, err
	}
	return r, nil
}

// Count returns how many rows sel would fetch. sel is not modified.
func (m *Model) Count(ctx context.Context, sel *query.Select) (int64, error) {
	q, err := m.prepare(sel)
	if err != nil {
		return 0, err
	}
	n, err := m.delegate.Count(ctx, q)
	if err != nil {
		return 0, &PersistenceError{Op: "count", Table: m.schema.table, Err: err}
	}
	return n, nil
}

// prepare copies sel, scopes it to the table and checks every field it
// names against the schema.
func (m *Model) prepare(sel *query.Select) (*query.Select, error) {
	var q *query.Select
	if sel == nil {
		q = m.Select()
	} else {
		q = sel.Clone()
	}
	if q.Table == "" {
		q.Table = m.schema.table
	}
	if q.Table != m.schema.table {
		return nil, fmt.Errorf("%w: %s is not %s", ErrTableMismatch, q.Table, m.schema.table)
	}
	for _, f := range q.Fields() {
		if !m.schema.Has(f) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, m.schema.table, f)
		}
	}
	if len(q.Columns) == 0 {
		q.Columns = m.schema.FieldNames()
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (m *Model) connector() string {
	if n, ok := m.delegate.(Namer); ok {
		return n.Name()
	}
	return "activerecord"
}

// publish never fails the caller: the write has already happened.
func (m *Model) publish(ctx context.Context, op changes.Operation, id int64, before, after map[string]any) {
	ev := changes.NewEvent(op, m.connector(), m.schema.table, id, before, after)
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("publishing change event failed",
			zap.String("table", m.schema.table),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}
}
