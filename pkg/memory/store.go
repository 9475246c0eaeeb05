// Package memory is a Delegate that keeps tables in process memory. It
// backs tests and embedded use where no database is available.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/query"
)

type table struct {
	next int64
	rows map[int64]map[string]any
	pk   string
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	logger *zap.Logger
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string]*table),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string {
	return "memory"
}

func (s *Store) Insert(ctx context.Context, tableName string, values map[string]any, primaryKey string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		t = &table{rows: make(map[int64]map[string]any), pk: primaryKey}
		s.tables[tableName] = t
	}
	t.next++
	row := copyRow(values)
	row[primaryKey] = t.next
	t.rows[t.next] = row
	s.logger.Debug("insert", zap.String("table", tableName), zap.Int64("id", t.next))
	return t.next, nil
}

func (s *Store) Update(ctx context.Context, tableName string, values map[string]any, where []query.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("memory: refusing unfiltered update of %s", tableName)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("memory: nothing to update in %s", tableName)
	}
	if err := query.ValidateFilters(where); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, row := range t.rows {
		match, err := matches(row, where)
		if err != nil {
			return 0, err
		}
		if !match {
			continue
		}
		for k, v := range values {
			if k != t.pk {
				row[k] = v
			}
		}
		n++
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, tableName string, where []query.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("memory: refusing unfiltered delete from %s", tableName)
	}
	if err := query.ValidateFilters(where); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	var n int64
	for id, row := range t.rows {
		match, err := matches(row, where)
		if err != nil {
			return 0, err
		}
		if match {
			delete(t.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Query(ctx context.Context, sel *query.Select) ([]map[string]any, error) {
	rows, err := s.selectRows(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		if len(sel.Columns) == 0 {
			out[i] = copyRow(row)
			continue
		}
		projected := make(map[string]any, len(sel.Columns))
		for _, c := range sel.Columns {
			projected[c] = row[c]
		}
		out[i] = projected
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, sel *query.Select) (int64, error) {
	rows, err := s.selectRows(ctx, sel)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// selectRows filters, sorts and pages. Rows are returned by reference, so
// callers copy before releasing them.
func (s *Store) selectRows(ctx context.Context, sel *query.Select) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[sel.Table]
	if !ok {
		return nil, nil
	}
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows []map[string]any
	for _, id := range ids {
		row := t.rows[id]
		match, err := matches(row, sel.Where)
		if err != nil {
			return nil, err
		}
		if match {
			rows = append(rows, copyRow(row))
		}
	}

	if len(sel.Order) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, o := range sel.Order {
				c := compare(rows[i][o.Field], rows[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if sel.Offset > 0 {
		if sel.Offset >= len(rows) {
			return nil, nil
		}
		rows = rows[sel.Offset:]
	}
	if sel.Limit > 0 && sel.Limit < len(rows) {
		rows = rows[:sel.Limit]
	}
	return rows, nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func matches(row map[string]any, where []query.Filter) (bool, error) {
	for _, f := range where {
		v := row[f.Field]
		var ok bool
		switch f.Op {
		case query.OpIsNull:
			ok = v == nil
		case query.OpIsNotNull:
			ok = v != nil
		case query.OpIn:
			for _, candidate := range f.Value.([]any) {
				if v != nil && candidate != nil && compare(v, candidate) == 0 {
					ok = true
					break
				}
			}
		case query.OpLike:
			if v == nil {
				break
			}
			re, err := likePattern(f.Value.(string))
			if err != nil {
				return false, err
			}
			ok = re.MatchString(fmt.Sprint(v))
		default:
			// comparisons with NULL are never true
			if v == nil || f.Value == nil {
				break
			}
			c := compare(v, f.Value)
			switch f.Op {
			case query.OpEq:
				ok = c == 0
			case query.OpNotEq:
				ok = c != 0
			case query.OpLt:
				ok = c < 0
			case query.OpLte:
				ok = c <= 0
			case query.OpGt:
				ok = c > 0
			case query.OpGte:
				ok = c >= 0
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func likePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?is)" + query.LikeRegexp(pattern))
}

// compare orders two values. Numbers compare numerically across Go types,
// nil sorts first, and mismatched kinds fall back to their text form.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
