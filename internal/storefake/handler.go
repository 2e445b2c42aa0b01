package storefake

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/topleads/internal/rowstore"
)

// Handler serves the store's REST dialect over the in-memory tables, close
// enough for the production client to run against it unmodified.
func (s *Store) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// /v0/{baseID}/{table}
		if len(parts) != 3 || parts[0] != "v0" {
			http.NotFound(w, r)
			return
		}
		table := parts[2]
		s.mu.Lock()
		_, known := s.fields[table]
		s.mu.Unlock()
		if !known {
			writeStoreError(w, http.StatusNotFound, "TABLE_NOT_FOUND", table)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleList(w, r, table)
		case http.MethodPatch:
			s.handlePatch(w, r, table)
		case http.MethodPost:
			s.handleCreate(w, r, table)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

type wireList struct {
	Records []rowstore.Record `json:"records"`
	Offset  string            `json:"offset,omitempty"`
}

func writeStoreError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": typ, "message": msg},
	})
}

func (s *Store) handleList(w http.ResponseWriter, r *http.Request, table string) {
	q := r.URL.Query()
	for _, f := range q["fields[]"] {
		s.mu.Lock()
		ok := s.fields[table][f]
		s.mu.Unlock()
		if !ok {
			writeStoreError(w, http.StatusUnprocessableEntity, "UNKNOWN_FIELD_NAME", f)
			return
		}
	}

	var sortSpecs []rowstore.SortSpec
	if f := q.Get("sort[0][field]"); f != "" {
		sortSpecs = append(sortSpecs, rowstore.SortSpec{Field: f, Direction: q.Get("sort[0][direction]")})
	}

	s.mu.Lock()
	recs := s.selectRecords(table, q.Get("filterByFormula"), sortSpecs)
	s.mu.Unlock()

	pageSize := 100
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil && v > 0 && v <= 100 {
		pageSize = v
	}
	start := 0
	if off := q.Get("offset"); off != "" {
		if v, err := strconv.Atoi(strings.TrimPrefix(off, "off")); err == nil {
			start = v
		}
	}
	end := start + pageSize
	if end > len(recs) {
		end = len(recs)
	}
	page := wireList{Records: []rowstore.Record{}}
	if start < len(recs) {
		for _, rec := range recs[start:end] {
			page.Records = append(page.Records, project(rec, q["fields[]"]))
		}
	}
	if end < len(recs) {
		page.Offset = "off" + strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func (s *Store) handlePatch(w http.ResponseWriter, r *http.Request, table string) {
	var env struct {
		Records []rowstore.RecordUpdate `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeStoreError(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", err.Error())
		return
	}
	if len(env.Records) > 10 {
		writeStoreError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST", "cannot update more than 10 records")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The real store applies a call atomically: reject the whole batch when
	// any id or field in it is bad.
	for _, u := range env.Records {
		for f := range u.Fields {
			if !s.fields[table][f] {
				writeStoreError(w, http.StatusUnprocessableEntity, "UNKNOWN_FIELD_NAME", f)
				return
			}
		}
		if s.find(table, u.ID) == nil {
			writeStoreError(w, http.StatusUnprocessableEntity, "ROW_DOES_NOT_EXIST", u.ID)
			return
		}
	}
	out := wireList{Records: []rowstore.Record{}}
	for _, u := range env.Records {
		rec := s.find(table, u.ID)
		for f, v := range u.Fields {
			if v == "" || v == nil {
				delete(rec.Fields, f)
				continue
			}
			rec.Fields[f] = v
		}
		s.UpdatedRecords++
		out.Records = append(out.Records, *rec)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Store) find(table, id string) *rowstore.Record {
	for _, rec := range s.tables[table] {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (s *Store) handleCreate(w http.ResponseWriter, r *http.Request, table string) {
	var env struct {
		Records []struct {
			Fields map[string]any `json:"fields"`
		} `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeStoreError(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", err.Error())
		return
	}
	out := wireList{Records: []rowstore.Record{}}
	for _, c := range env.Records {
		id := s.Add(table, c.Fields)
		out.Records = append(out.Records, *s.Get(table, id))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
