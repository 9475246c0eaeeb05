package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/turbolytics/activerecord/pkg/record"
)

type Field struct {
	Name          string
	Type          string
	ConvertedType string
}

// Schema is the parquet layout of one table. Every column is OPTIONAL so
// null values survive the export.
type Schema []Field

func SchemaFor(s *record.Schema) (Schema, error) {
	fields := s.Fields()
	out := make(Schema, len(fields))
	for i, f := range fields {
		pf := Field{Name: f.Name}
		switch f.Type {
		case record.Integer:
			pf.Type = "INT64"
		case record.Float:
			pf.Type = "DOUBLE"
		case record.String:
			pf.Type = "BYTE_ARRAY"
			pf.ConvertedType = "UTF8"
		case record.Timestamp:
			pf.Type = "INT64"
			pf.ConvertedType = "TIMESTAMP_MILLIS"
		case record.Bool:
			pf.Type = "BOOLEAN"
		default:
			return nil, fmt.Errorf("export: no parquet type for %s.%s (%s)", s.Table(), f.Name, f.Type)
		}
		out[i] = pf
	}
	return out, nil
}

// Metadata renders the schema in the tag format parquet-go expects.
func (s Schema) Metadata() []string {
	md := make([]string, len(s))
	for i, field := range s {
		parts := []string{
			fmt.Sprintf("name=%s", field.Name),
			fmt.Sprintf("type=%s", field.Type),
		}
		if field.ConvertedType != "" {
			parts = append(parts, fmt.Sprintf("convertedtype=%s", field.ConvertedType))
		}
		parts = append(parts, "repetitiontype=OPTIONAL")
		md[i] = strings.Join(parts, ", ")
	}
	return md
}

// Row converts a record's ordered values into parquet values.
func (s Schema) Row(r *record.Record) ([]any, error) {
	values := r.Values()
	if len(s) != len(values) {
		return nil, fmt.Errorf(
			"schema and record fields mismatch: schema has %d fields, record has %d fields",
			len(s),
			len(values),
		)
	}
	row := make([]any, len(s))
	for i, field := range s {
		row[i] = values[i]
		if values[i] == nil {
			continue
		}
		switch field.ConvertedType {
		case "TIMESTAMP_MILLIS":
			t, ok := values[i].(time.Time)
			if !ok {
				return nil, fmt.Errorf("export: %s holds %T, not a time", field.Name, values[i])
			}
			row[i] = t.UnixMilli()
		}
	}
	return row, nil
}
