package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ValidateIdentifier checks that name survives a round trip through the SQL
// parser as a plain column name, and table as a plain table name.
func ValidateIdentifier(table, name string) error {
	if table == "" || name == "" {
		return fmt.Errorf("query: empty identifier")
	}
	if strings.ContainsAny(table+name, "`\x00") {
		return fmt.Errorf("query: identifier %q.%q contains a forbidden character", table, name)
	}

	stmt, err := sqlparser.Parse("SELECT `" + name + "` FROM `" + table + "`")
	if err != nil {
		return fmt.Errorf("query: invalid identifier %q.%q: %w", table, name, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || len(sel.SelectExprs) != 1 || len(sel.From) != 1 || sel.Where != nil {
		return fmt.Errorf("query: invalid identifier %q.%q", table, name)
	}
	expr, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok || !expr.As.IsEmpty() {
		return fmt.Errorf("query: invalid column %q", name)
	}
	col, ok := expr.Expr.(*sqlparser.ColName)
	if !ok || !col.Qualifier.IsEmpty() || col.Name.String() != name {
		return fmt.Errorf("query: invalid column %q", name)
	}
	from, ok := sel.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return fmt.Errorf("query: invalid table %q", table)
	}
	tn, ok := from.Expr.(sqlparser.TableName)
	if !ok || !tn.Qualifier.IsEmpty() || tn.Name.String() != table {
		return fmt.Errorf("query: invalid table %q", table)
	}
	return nil
}

// ParseWhere turns a textual condition such as
//
//	qty >= 5 and name like 'b%'
//
// into structured filters. Only AND-ed comparisons between a bare column and
// a literal are accepted; everything else is an error. The text never reaches
// the database.
func ParseWhere(expr string) ([]Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	stmt, err := sqlparser.Parse("SELECT 1 FROM t WHERE " + expr)
	if err != nil {
		return nil, fmt.Errorf("query: parse %q: %w", expr, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || sel.Where == nil || sel.GroupBy != nil || sel.Having != nil ||
		sel.OrderBy != nil || sel.Limit != nil || sel.Lock != "" {
		return nil, fmt.Errorf("query: %q is not a plain condition", expr)
	}
	var filters []Filter
	if err := collect(sel.Where.Expr, &filters); err != nil {
		return nil, fmt.Errorf("query: %q: %w", expr, err)
	}
	return filters, nil
}

func collect(e sqlparser.Expr, out *[]Filter) error {
	switch n := e.(type) {
	case *sqlparser.AndExpr:
		if err := collect(n.Left, out); err != nil {
			return err
		}
		return collect(n.Right, out)
	case *sqlparser.ParenExpr:
		return collect(n.Expr, out)
	case *sqlparser.IsExpr:
		field, err := column(n.Expr)
		if err != nil {
			return err
		}
		switch n.Operator {
		case sqlparser.IsNullStr:
			*out = append(*out, Filter{Field: field, Op: OpIsNull})
		case sqlparser.IsNotNullStr:
			*out = append(*out, Filter{Field: field, Op: OpIsNotNull})
		default:
			return fmt.Errorf("unsupported %q", n.Operator)
		}
		return nil
	case *sqlparser.ComparisonExpr:
		field, err := column(n.Left)
		if err != nil {
			return err
		}
		if n.Operator == sqlparser.InStr {
			tuple, ok := n.Right.(sqlparser.ValTuple)
			if !ok {
				return fmt.Errorf("IN needs a list of literals")
			}
			vals := make([]any, len(tuple))
			for i, t := range tuple {
				if vals[i], err = literal(t); err != nil {
					return err
				}
			}
			*out = append(*out, Filter{Field: field, Op: OpIn, Value: vals})
			return nil
		}
		op, ok := comparisonOps[n.Operator]
		if !ok {
			return fmt.Errorf("unsupported operator %q", n.Operator)
		}
		v, err := literal(n.Right)
		if err != nil {
			return err
		}
		*out = append(*out, Filter{Field: field, Op: op, Value: v})
		return nil
	}
	return fmt.Errorf("unsupported expression %q", sqlparser.String(e))
}

var comparisonOps = map[string]Op{
	sqlparser.EqualStr:        OpEq,
	sqlparser.NotEqualStr:     OpNotEq,
	sqlparser.LessThanStr:     OpLt,
	sqlparser.LessEqualStr:    OpLte,
	sqlparser.GreaterThanStr:  OpGt,
	sqlparser.GreaterEqualStr: OpGte,
	sqlparser.LikeStr:         OpLike,
}

func column(e sqlparser.Expr) (string, error) {
	col, ok := e.(*sqlparser.ColName)
	if !ok || !col.Qualifier.IsEmpty() {
		return "", fmt.Errorf("left side of %q must be a column", sqlparser.String(e))
	}
	return col.Name.String(), nil
}

func literal(e sqlparser.Expr) (any, error) {
	switch n := e.(type) {
	case *sqlparser.SQLVal:
		switch n.Type {
		case sqlparser.StrVal:
			return string(n.Val), nil
		case sqlparser.IntVal:
			return strconv.ParseInt(string(n.Val), 10, 64)
		case sqlparser.FloatVal:
			return strconv.ParseFloat(string(n.Val), 64)
		}
	case *sqlparser.UnaryExpr:
		if n.Operator == sqlparser.UMinusStr {
			v, err := literal(n.Expr)
			if err != nil {
				return nil, err
			}
			switch x := v.(type) {
			case int64:
				return -x, nil
			case float64:
				return -x, nil
			}
		}
	case sqlparser.BoolVal:
		return bool(n), nil
	}
	return nil, fmt.Errorf("%q is not a literal", sqlparser.String(e))
}
