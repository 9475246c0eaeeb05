package record

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/changes"
	"github.com/turbolytics/activerecord/pkg/query"
)

// Record is one row of a table. Its value map always holds exactly the
// schema's fields. A nil or zero primary key marks a transient record.
//
// Record embeds its Model, so query operations such as Find are available on
// an instance.
type Record struct {
	*Model
	values map[string]any
}

// CreateRow returns an empty record of the same type. The new record shares
// nothing with r but the model.
func (r *Record) CreateRow() *Record {
	return r.Model.New()
}

// Reset sets every field to nil.
func (r *Record) Reset() {
	for k := range r.values {
		r.values[k] = nil
	}
}

// ExchangeArray merges input into the record. Unknown keys are ignored and
// fields absent from input keep their value. If any value does not fit its
// field the record is left untouched.
func (r *Record) ExchangeArray(input map[string]any) error {
	staged := make(map[string]any, len(input))
	for _, f := range r.schema.fields {
		v, ok := input[f.Name]
		if !ok {
			continue
		}
		cv, err := r.schema.Coerce(f.Name, v)
		if err != nil {
			return err
		}
		staged[f.Name] = cv
	}
	for k, v := range staged {
		r.values[k] = v
	}
	return nil
}

// ToArray returns a copy of the field values.
func (r *Record) ToArray() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Values returns the field values in schema order.
func (r *Record) Values() []any {
	out := make([]any, len(r.schema.fields))
	for i, f := range r.schema.fields {
		out[i] = r.values[f.Name]
	}
	return out
}

func (r *Record) Get(name string) any {
	return r.values[name]
}

// Set assigns one field, converting value to the field's type.
func (r *Record) Set(name string, value any) error {
	v, err := r.schema.Coerce(name, value)
	if err != nil {
		return err
	}
	r.values[name] = v
	return nil
}

// Stamp sets field to the current time cut to the precision of format.
// String fields receive the formatted text.
func (r *Record) Stamp(field string, format TimeFormat) error {
	f, ok := r.schema.Field(field)
	if !ok {
		return &SchemaError{Table: r.schema.table, Field: field, Reason: "not in schema", Err: ErrUnknownField}
	}
	now := time.Now().UTC().Truncate(format.Precision())
	if f.Type == String {
		return r.Set(field, now.Format(string(format)))
	}
	return r.Set(field, now)
}

// ID returns the primary key, 0 for a transient record.
func (r *Record) ID() int64 {
	id, _ := r.values[r.schema.primaryKey].(int64)
	return id
}

func (r *Record) IsPersisted() bool {
	return r.ID() > 0
}

// Save inserts a transient record and assigns its generated key, or updates
// the row of a persisted one. On failure the record is unchanged.
func (r *Record) Save(ctx context.Context) error {
	table, pk := r.schema.table, r.schema.primaryKey
	if name, missing := r.schema.missingRequired(r.values); missing {
		return &SchemaError{Table: table, Field: name, Reason: "required field is nil"}
	}
	values := make(map[string]any, len(r.values)-1)
	for k, v := range r.values {
		if k != pk {
			values[k] = v
		}
	}

	id := r.ID()
	if id == 0 {
		newID, err := r.delegate.Insert(ctx, table, values, pk)
		if err != nil {
			return &PersistenceError{Op: "insert", Table: table, Err: err}
		}
		if newID <= 0 {
			return &PersistenceError{Op: "insert", Table: table, Err: errors.New("no generated id reported")}
		}
		r.values[pk] = newID
		r.logger.Debug("inserted", zap.String("table", table), zap.Int64("id", newID))
		r.publish(ctx, changes.OpCreate, newID, nil, r.ToArray())
		return nil
	}

	if len(values) == 0 {
		// a schema holding only its key has nothing to write back
		return nil
	}
	n, err := r.delegate.Update(ctx, table, values, []query.Filter{query.Eq(pk, id)})
	if err != nil {
		return &PersistenceError{Op: "update", Table: table, ID: id, Err: err}
	}
	if n == 0 {
		r.logger.Debug("update matched no row", zap.String("table", table), zap.Int64("id", id))
		return nil
	}
	r.publish(ctx, changes.OpUpdate, id, nil, r.ToArray())
	return nil
}

// Delete removes the record's own row. The in-memory values are kept.
func (r *Record) Delete(ctx context.Context) error {
	return r.DeleteByID(ctx, 0)
}

// DeleteByID removes the row with primary key id. A non-positive id falls
// back to the record's own key.
func (r *Record) DeleteByID(ctx context.Context, id int64) error {
	table, pk := r.schema.table, r.schema.primaryKey
	if id <= 0 {
		id = r.ID()
	}
	if id <= 0 {
		return ErrNotPersisted
	}

	n, err := r.delegate.Delete(ctx, table, []query.Filter{query.Eq(pk, id)})
	if err != nil {
		return &PersistenceError{Op: "delete", Table: table, ID: id, Err: err}
	}
	r.logger.Debug("deleted",
		zap.String("table", table),
		zap.Int64("id", id),
		zap.Int64("rows", n),
	)
	if n == 0 {
		return nil
	}
	before := map[string]any{pk: id}
	if id == r.ID() {
		before = r.ToArray()
	}
	r.publish(ctx, changes.OpDelete, id, before, nil)
	return nil
}
