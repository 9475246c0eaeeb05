package record

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPersisted is returned by Delete when neither an id argument nor
	// the record's own primary key is usable.
	ErrNotPersisted = errors.New("record is not persisted")
	// ErrUnknownField reports a field name outside the schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrTableMismatch reports a query descriptor scoped to another table.
	ErrTableMismatch = errors.New("query scoped to another table")
)

// SchemaError reports a malformed schema at registration time, or a value
// that does not fit its field.
type SchemaError struct {
	Table  string
	Field  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := "schema " + e.Table
	if e.Field != "" {
		msg += "." + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failure surfaced by the delegate.
type PersistenceError struct {
	Op    string
	Table string
	// ID is the primary key involved, 0 when unknown.
	ID  int64
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %s id=%d: %v", e.Op, e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
