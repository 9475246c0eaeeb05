package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a comparison operator of a structured filter.
type Op string

const (
	OpEq        Op = "="
	OpNotEq     Op = "!="
	OpLt        Op = "<"
	OpLte       Op = "<="
	OpGt        Op = ">"
	OpGte       Op = ">="
	OpLike      Op = "LIKE"
	OpIn        Op = "IN"
	OpIsNull    Op = "IS NULL"
	OpIsNotNull Op = "IS NOT NULL"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNotEq, OpLt, OpLte, OpGt, OpGte, OpLike, OpIn, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// Unary reports whether the operator takes no bound value.
func (o Op) Unary() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// Filter is a single predicate: field, operator and the bound value.
// The value is always passed to the database as a parameter.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func (f Filter) String() string {
	if f.Op.Unary() {
		return fmt.Sprintf("%s %s", f.Field, f.Op)
	}
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

// Eq returns a field = value filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Order is a single ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Select describes a query against one table. The zero Columns value
// selects the full field list of the record type.
//
// Builder methods mutate and return the receiver. Use Clone before changing
// a descriptor owned by someone else.
type Select struct {
	Table   string
	Columns []string
	Where   []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// New returns an empty descriptor scoped to table.
func New(table string) *Select {
	return &Select{Table: table}
}

func (s *Select) Project(columns ...string) *Select {
	s.Columns = append([]string(nil), columns...)
	return s
}

// Filter appends a predicate, AND-ed with the existing ones.
func (s *Select) Filter(field string, op Op, value any) *Select {
	s.Where = append(s.Where, Filter{Field: field, Op: op, Value: value})
	return s
}

func (s *Select) WhereEq(field string, value any) *Select {
	return s.Filter(field, OpEq, value)
}

func (s *Select) OrderBy(field string, desc bool) *Select {
	s.Order = append(s.Order, Order{Field: field, Desc: desc})
	return s
}

func (s *Select) Paginate(limit, offset int) *Select {
	s.Limit = limit
	s.Offset = offset
	return s
}

// Clone returns a deep copy. IN filter value slices are copied too.
func (s *Select) Clone() *Select {
	if s == nil {
		return nil
	}
	c := &Select{
		Table:  s.Table,
		Limit:  s.Limit,
		Offset: s.Offset,
	}
	if s.Columns != nil {
		c.Columns = append([]string(nil), s.Columns...)
	}
	if s.Where != nil {
		c.Where = make([]Filter, len(s.Where))
		for i, f := range s.Where {
			if vs, ok := f.Value.([]any); ok {
				f.Value = append([]any(nil), vs...)
			}
			c.Where[i] = f
		}
	}
	if s.Order != nil {
		c.Order = append([]Order(nil), s.Order...)
	}
	return c
}

// Fields returns every field name the descriptor refers to.
func (s *Select) Fields() []string {
	var fields []string
	fields = append(fields, s.Columns...)
	for _, f := range s.Where {
		fields = append(fields, f.Field)
	}
	for _, o := range s.Order {
		fields = append(fields, o.Field)
	}
	return fields
}

// Validate checks operators and bound values without touching a database.
func (s *Select) Validate() error {
	if s.Table == "" {
		return fmt.Errorf("query: missing table")
	}
	if s.Limit < 0 || s.Offset < 0 {
		return fmt.Errorf("query: negative limit or offset")
	}
	return ValidateFilters(s.Where)
}

// ValidateFilters checks a filter list the same way Validate does.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("query: filter without field")
		}
		if !f.Op.valid() {
			return fmt.Errorf("query: unsupported operator %q", f.Op)
		}
		if f.Op == OpIn {
			vs, ok := f.Value.([]any)
			if !ok {
				return fmt.Errorf("query: IN filter on %s needs a []any value", f.Field)
			}
			if len(vs) == 0 {
				return fmt.Errorf("query: IN filter on %s has no values", f.Field)
			}
		}
		if f.Op == OpLike {
			if _, ok := f.Value.(string); !ok {
				return fmt.Errorf("query: LIKE filter on %s needs a string pattern", f.Field)
			}
		}
	}
	return nil
}

// LikeRegexp translates a LIKE pattern into an anchored regular expression:
// % matches any run of characters and _ a single one.
func LikeRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}
