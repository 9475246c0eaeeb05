package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/turbolytics/activerecord/pkg/query"
)

type FieldType string

const (
	String    FieldType = "string"
	Integer   FieldType = "integer"
	Float     FieldType = "float"
	Timestamp FieldType = "timestamp"
	Bool      FieldType = "bool"
)

// ParseFieldType accepts the names used in configuration files.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text", "varchar":
		return String, nil
	case "integer", "int", "bigint":
		return Integer, nil
	case "float", "double", "real":
		return Float, nil
	case "timestamp", "datetime", "time":
		return Timestamp, nil
	case "bool", "boolean":
		return Bool, nil
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema declares the persisted fields of one record type. It is immutable
// once built and shared by every record of the type.
type Schema struct {
	table      string
	primaryKey string
	fields     []Field
	index      map[string]int
}

// NewSchema validates and builds a schema. The primary key must be one of
// fields and of type Integer.
func NewSchema(table, primaryKey string, fields ...Field) (*Schema, error) {
	if table == "" {
		return nil, &SchemaError{Reason: "empty table name"}
	}
	if len(fields) == 0 {
		return nil, &SchemaError{Table: table, Reason: "no fields"}
	}
	s := &Schema{
		table:      table,
		primaryKey: primaryKey,
		fields:     make([]Field, len(fields)),
		index:      make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			return nil, &SchemaError{Table: table, Field: f.Name, Reason: "duplicate field"}
		}
		if err := query.ValidateIdentifier(table, f.Name); err != nil {
			return nil, &SchemaError{Table: table, Field: f.Name, Reason: "invalid identifier", Err: err}
		}
		switch f.Type {
		case String, Integer, Float, Timestamp, Bool:
		default:
			return nil, &SchemaError{Table: table, Field: f.Name, Reason: fmt.Sprintf("unsupported type %q", f.Type)}
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}

	pk, ok := s.index[primaryKey]
	if !ok {
		return nil, &SchemaError{Table: table, Field: primaryKey, Reason: "primary key is not a field"}
	}
	if s.fields[pk].Type != Integer {
		return nil, &SchemaError{Table: table, Field: primaryKey, Reason: "primary key must be an integer"}
	}
	// an unset key marks a transient record
	s.fields[pk].Nullable = true
	return s, nil
}

// MustSchema is NewSchema that panics on error, for package level declarations.
func MustSchema(table, primaryKey string, fields ...Field) *Schema {
	s, err := NewSchema(table, primaryKey, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Table() string {
	return s.table
}

func (s *Schema) PrimaryKey() string {
	return s.primaryKey
}

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// FieldNames returns the ordered field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Coerce converts v to the canonical Go type of the named field:
// string, int64, float64, time.Time or bool. nil passes through.
func (s *Schema) Coerce(name string, v any) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, &SchemaError{Table: s.table, Field: name, Reason: "not in schema", Err: ErrUnknownField}
	}
	if v == nil {
		return nil, nil
	}
	out, err := coerce(f.Type, v)
	if err != nil {
		return nil, &SchemaError{Table: s.table, Field: name, Reason: fmt.Sprintf("cannot store %T as %s", v, f.Type), Err: err}
	}
	if name == s.primaryKey && out.(int64) < 0 {
		return nil, &SchemaError{Table: s.table, Field: name, Reason: "negative primary key"}
	}
	return out, nil
}

// missingRequired returns the first non-nullable field without a value.
func (s *Schema) missingRequired(values map[string]any) (string, bool) {
	for _, f := range s.fields {
		if f.Nullable || f.Name == s.primaryKey {
			continue
		}
		if values[f.Name] == nil {
			return f.Name, true
		}
	}
	return "", false
}

func coerce(t FieldType, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case time.Time:
			return x.Format(string(StandardTime)), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case Integer:
		return toInt64(v)
	case Float:
		return toFloat64(v)
	case Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return parseTime(x)
		case int64:
			return time.UnixMilli(x).UTC(), nil
		}
	case Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		default:
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return n != 0, nil
		}
	}
	return nil, fmt.Errorf("unsupported value %v", v)
}

func toInt64(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return nil, fmt.Errorf("%T is not an integer", v)
}

func floatToInt64(f float64) (any, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (any, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("%T is not a number", v)
	}
	return float64(n.(int64)), nil
}
