package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/query"
	"github.com/turbolytics/activerecord/pkg/record"
)

type ctxKey struct{}

type fieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type tableInfo struct {
	Name       string      `json:"name"`
	PrimaryKey string      `json:"primary_key"`
	Fields     []fieldInfo `json:"fields"`
}

func describe(s *record.Schema) tableInfo {
	info := tableInfo{Name: s.Table(), PrimaryKey: s.PrimaryKey()}
	for _, f := range s.Fields() {
		info.Fields = append(info.Fields, fieldInfo{Name: f.Name, Type: string(f.Type), Nullable: f.Nullable})
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var serr *record.SchemaError
	var perr *record.PersistenceError
	switch {
	case errors.As(err, &serr),
		errors.Is(err, record.ErrUnknownField),
		errors.Is(err, record.ErrTableMismatch),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, record.ErrNotPersisted):
		status = http.StatusNotFound
	case errors.As(err, &perr):
		s.logger.Error("persistence failure", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) modelCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.models[chi.URLParam(r, "table")]
		if !ok {
			http.Error(w, "table not found", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, m)))
	})
}

func model(r *http.Request) *record.Model {
	return r.Context().Value(ctxKey{}).(*record.Model)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	tables := make([]tableInfo, 0, len(s.models))
	for _, m := range s.models {
		tables = append(tables, describe(m.Schema()))
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

func (s *Server) describeTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describe(model(r).Schema()))
}

// selectFromRequest reads where, order, limit and offset query parameters.
// order is a comma separated field list; a leading - sorts descending.
func selectFromRequest(m *record.Model, r *http.Request) (*query.Select, error) {
	q := r.URL.Query()
	sel := m.Select()

	filters, err := query.ParseWhere(q.Get("where"))
	if err != nil {
		return nil, errors.Join(errBadRequest, err)
	}
	sel.Where = filters

	if order := q.Get("order"); order != "" {
		for _, term := range strings.Split(order, ",") {
			term = strings.TrimSpace(term)
			sel.OrderBy(strings.TrimPrefix(term, "-"), strings.HasPrefix(term, "-"))
		}
	}
	var limit, offset int
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return nil, errors.Join(errBadRequest, err)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return nil, errors.Join(errBadRequest, err)
		}
	}
	sel.Paginate(limit, offset)
	if err := sel.Validate(); err != nil {
		return nil, errors.Join(errBadRequest, err)
	}
	return sel, nil
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	m := model(r)
	sel, err := selectFromRequest(m, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	records, err := m.FetchAll(r.Context(), sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		rows[i] = rec.ToArray()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"count": len(rows),
	})
}

func (s *Server) countRows(w http.ResponseWriter, r *http.Request) {
	m := model(r)
	sel, err := selectFromRequest(m, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := m.Count(r.Context(), sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func decodeBody(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, errors.Join(errBadRequest, err)
	}
	return body, nil
}

func (s *Server) createRow(w http.ResponseWriter, r *http.Request) {
	m := model(r)
	body, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	delete(body, m.Schema().PrimaryKey())

	rec := m.New()
	if err := rec.ExchangeArray(body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := rec.Save(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec.ToArray())
}

func rowID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Join(errBadRequest, errors.New("id must be a positive integer"))
	}
	return id, nil
}

// findRow writes the response itself when the row cannot be returned.
func (s *Server) findRow(w http.ResponseWriter, r *http.Request) *record.Record {
	id, err := rowID(r)
	if err != nil {
		s.writeError(w, err)
		return nil
	}
	rec, err := model(r).Find(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return nil
	}
	if rec == nil {
		http.Error(w, "row not found", http.StatusNotFound)
		return nil
	}
	return rec
}

func (s *Server) getRow(w http.ResponseWriter, r *http.Request) {
	if rec := s.findRow(w, r); rec != nil {
		writeJSON(w, http.StatusOK, rec.ToArray())
	}
}

func (s *Server) updateRow(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec := s.findRow(w, r)
	if rec == nil {
		return
	}
	delete(body, rec.Schema().PrimaryKey())
	if err := rec.ExchangeArray(body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := rec.Save(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.ToArray())
}

func (s *Server) deleteRow(w http.ResponseWriter, r *http.Request) {
	rec := s.findRow(w, r)
	if rec == nil {
		return
	}
	if err := rec.Delete(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
