package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type PlaceholderStyle int

const (
	// Question renders every parameter as ?.
	Question PlaceholderStyle = iota
	// Dollar renders numbered parameters: $1, $2, ...
	Dollar
)

// Dialect renders descriptors into parameterized statements.
// Identifiers are quoted, values are always bound.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
	Quote       byte
	// Returning is set when INSERT ... RETURNING is the way to read the
	// generated key, instead of the driver's last insert id.
	Returning bool
}

var (
	SQLite   = Dialect{Name: "sqlite", Placeholder: Question, Quote: '"'}
	MySQL    = Dialect{Name: "mysql", Placeholder: Question, Quote: '`'}
	Postgres = Dialect{Name: "postgres", Placeholder: Dollar, Quote: '"', Returning: true}
)

// DialectFor maps a driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "postgres", "pgx", "pgxpool":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("query: no dialect for driver %q", driver)
}

// QuoteIdent quotes a table or column name, doubling embedded quote characters.
func (d Dialect) QuoteIdent(name string) string {
	q := string(d.Quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

type args struct {
	d      Dialect
	values []any
}

func (a *args) bind(v any) string {
	a.values = append(a.values, v)
	if a.d.Placeholder == Dollar {
		return "$" + strconv.Itoa(len(a.values))
	}
	return "?"
}

// SelectSQL renders a SELECT for s. columns is the projection used when s
// does not carry its own.
func (d Dialect) SelectSQL(s *Select, columns []string) (string, []any, error) {
	if err := s.Validate(); err != nil {
		return "", nil, err
	}
	cols := s.Columns
	if len(cols) == 0 {
		cols = columns
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("query: no columns to select from %s", s.Table)
	}

	a := &args{d: d}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(d.quoteList(cols))
	b.WriteString(" FROM ")
	b.WriteString(d.QuoteIdent(s.Table))
	b.WriteString(d.where(s.Where, a))
	if len(s.Order) > 0 {
		terms := make([]string, len(s.Order))
		for i, o := range s.Order {
			terms[i] = d.QuoteIdent(o.Field)
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}
	b.WriteString(d.page(s.Limit, s.Offset))
	return b.String(), a.values, nil
}

// CountSQL renders a row count for s. A paginated descriptor is counted
// through a sub-select so the result matches the rows s would return.
func (d Dialect) CountSQL(s *Select, columns []string) (string, []any, error) {
	if err := s.Validate(); err != nil {
		return "", nil, err
	}
	if s.Limit > 0 || s.Offset > 0 {
		inner, vals, err := d.SelectSQL(s, columns)
		if err != nil {
			return "", nil, err
		}
		return "SELECT COUNT(*) FROM (" + inner + ") AS " + d.QuoteIdent("counted"), vals, nil
	}
	a := &args{d: d}
	stmt := "SELECT COUNT(*) FROM " + d.QuoteIdent(s.Table) + d.where(s.Where, a)
	return stmt, a.values, nil
}

// InsertSQL renders an INSERT of values. When the dialect supports it, the
// primary key is read back with RETURNING.
func (d Dialect) InsertSQL(table string, values map[string]any, primaryKey string) (string, []any) {
	cols := sortedKeys(values)
	a := &args{d: d}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdent(table))
	if len(cols) == 0 {
		if d.Name == "mysql" {
			b.WriteString(" () VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	} else {
		phs := make([]string, len(cols))
		for i, c := range cols {
			phs[i] = a.bind(values[c])
		}
		b.WriteString(" (")
		b.WriteString(d.quoteList(cols))
		b.WriteString(") VALUES (")
		b.WriteString(strings.Join(phs, ", "))
		b.WriteString(")")
	}
	if d.Returning && primaryKey != "" {
		b.WriteString(" RETURNING ")
		b.WriteString(d.QuoteIdent(primaryKey))
	}
	return b.String(), a.values
}

// UpdateSQL renders an UPDATE of values restricted by where. An empty where
// is refused: a record update always targets its primary key.
func (d Dialect) UpdateSQL(table string, values map[string]any, where []Filter) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("query: nothing to update in %s", table)
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("query: refusing unfiltered update of %s", table)
	}
	if err := ValidateFilters(where); err != nil {
		return "", nil, err
	}
	cols := sortedKeys(values)
	a := &args{d: d}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = d.QuoteIdent(c) + " = " + a.bind(values[c])
	}
	stmt := "UPDATE " + d.QuoteIdent(table) + " SET " + strings.Join(sets, ", ") + d.where(where, a)
	return stmt, a.values, nil
}

// DeleteSQL renders a DELETE restricted by where. An empty where is refused.
func (d Dialect) DeleteSQL(table string, where []Filter) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, fmt.Errorf("query: refusing unfiltered delete from %s", table)
	}
	if err := ValidateFilters(where); err != nil {
		return "", nil, err
	}
	a := &args{d: d}
	return "DELETE FROM " + d.QuoteIdent(table) + d.where(where, a), a.values, nil
}

func (d Dialect) where(filters []Filter, a *args) string {
	if len(filters) == 0 {
		return ""
	}
	terms := make([]string, len(filters))
	for i, f := range filters {
		col := d.QuoteIdent(f.Field)
		switch f.Op {
		case OpIsNull, OpIsNotNull:
			terms[i] = col + " " + string(f.Op)
		case OpIn:
			vs := f.Value.([]any)
			phs := make([]string, len(vs))
			for j, v := range vs {
				phs[j] = a.bind(v)
			}
			terms[i] = col + " IN (" + strings.Join(phs, ", ") + ")"
		default:
			terms[i] = col + " " + string(f.Op) + " " + a.bind(f.Value)
		}
	}
	return " WHERE " + strings.Join(terms, " AND ")
}

func (d Dialect) page(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		// sqlite and mysql have no OFFSET without LIMIT
		if d.Name == "postgres" {
			return fmt.Sprintf(" OFFSET %d", offset)
		}
		return fmt.Sprintf(" LIMIT %d OFFSET %d", int64(1<<62), offset)
	}
	return ""
}

func (d Dialect) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		if n == "*" {
			quoted[i] = n
			continue
		}
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
