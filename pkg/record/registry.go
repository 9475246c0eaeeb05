package record

import (
	"sort"
	"sync"
)

// Registry holds schemas by table name.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds s. A second schema for the same table is rejected.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.Table()]; ok {
		return &SchemaError{Table: s.Table(), Reason: "already registered"}
	}
	r.schemas[s.Table()] = s
	return nil
}

func (r *Registry) Lookup(table string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[table]
	return s, ok
}

// Tables returns the registered table names, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
