// Package storefake is an in-memory stand-in for the hosted row store, used
// by tests. It implements rowstore.Gateway directly and also serves the
// store's REST dialect over HTTP so full-stack tests can point a real client
// at it.
package storefake

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/rowstore"
	"github.com/user/topleads/internal/threshold"
)

type Store struct {
	mu     sync.Mutex
	seq    int
	tables map[string][]*rowstore.Record
	fields map[string]map[string]bool

	// UpdatedRecords counts individual record writes that succeeded.
	UpdatedRecords int
	// FailUpdatesAfter, when >= 0, makes every record write past the first N
	// fail with a transport error. Used to exercise partial-lock recovery.
	FailUpdatesAfter int
}

var errInjected = &rowstore.StoreError{Status: 503, Type: "INJECTED", Message: "injected transport failure"}

func New() *Store {
	s := &Store{
		tables:           map[string][]*rowstore.Record{},
		fields:           map[string]map[string]bool{},
		FailUpdatesAfter: -1,
	}
	s.fields[eligibility.TableLeads] = map[string]bool{
		eligibility.FieldAIScore:          true,
		eligibility.FieldScoringStatus:    true,
		eligibility.FieldConnectionStatus: true,
		eligibility.FieldBatchStatus:      true,
		eligibility.FieldDateAdded:        true,
		eligibility.FieldLinkedInURL:      true,
		eligibility.FieldFirstName:        true,
		eligibility.FieldLastName:         true,
		eligibility.FieldEmail:            true,
		eligibility.FieldPhone:            true,
	}
	s.fields[eligibility.TableCredentials] = map[string]bool{
		threshold.FieldThreshold:      true,
		threshold.FieldExportAt:       true,
		threshold.FieldExportAtLegacy: true,
	}
	return s
}

// DropField removes a column, e.g. to simulate a base that only has the
// legacy export-timestamp field.
func (s *Store) DropField(table, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fields[table], field)
}

// Add inserts a record with a generated id and returns it.
func (s *Store) Add(table string, fields map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := "rec" + strconv.Itoa(1000+s.seq)
	cp := map[string]any{}
	for k, v := range fields {
		cp[k] = v
	}
	s.tables[table] = append(s.tables[table], &rowstore.Record{ID: id, Fields: cp})
	return id
}

// Get returns a copy of the record, or nil.
func (s *Store) Get(table, id string) *rowstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.tables[table] {
		if rec.ID == id {
			cp := *rec
			return &cp
		}
	}
	return nil
}

// Field returns one field value of a record as a string.
func (s *Store) Field(table, id, field string) string {
	if rec := s.Get(table, id); rec != nil {
		return rec.Str(field)
	}
	return ""
}

// LockedIDs lists record ids currently flagged into the batch, in store order.
func (s *Store) LockedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, rec := range s.tables[eligibility.TableLeads] {
		if rec.Str(eligibility.FieldBatchStatus) == eligibility.BatchSelected {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

var thresholdClause = regexp.MustCompile(`\{AI Score\}>=([0-9.]+)`)

// matchLocked evaluates the two formulas the engine emits. The fake does not
// parse arbitrary formulas; anything else matches every record.
func (s *Store) selectRecords(table, formula string, sortSpecs []rowstore.SortSpec) []rowstore.Record {
	var out []rowstore.Record
	for _, rec := range s.tables[table] {
		if !s.matches(rec, formula) {
			continue
		}
		out = append(out, *rec)
	}
	if len(sortSpecs) > 0 && sortSpecs[0].Field == eligibility.FieldAIScore {
		desc := sortSpecs[0].Direction == "desc"
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].Num(eligibility.FieldAIScore), out[j].Num(eligibility.FieldAIScore)
			av, bv := -1.0, -1.0
			if a != nil {
				av = *a
			}
			if b != nil {
				bv = *b
			}
			if desc {
				return av > bv
			}
			return av < bv
		})
	}
	return out
}

func (s *Store) matches(rec *rowstore.Record, formula string) bool {
	if formula == "" {
		return true
	}
	if formula == eligibility.LockedFormula() {
		return rec.Str(eligibility.FieldBatchStatus) == eligibility.BatchSelected
	}
	m := thresholdClause.FindStringSubmatch(formula)
	if m == nil {
		return true
	}
	th, _ := strconv.ParseFloat(m[1], 64)
	score := rec.Num(eligibility.FieldAIScore)
	ok := rec.Str(eligibility.FieldScoringStatus) == eligibility.StatusScored &&
		rec.Str(eligibility.FieldConnectionStatus) == eligibility.StatusCandidate &&
		rec.Str(eligibility.FieldDateAdded) == "" &&
		score != nil && *score >= th
	if ok && formula == eligibility.Formula(th) {
		ok = rec.Str(eligibility.FieldBatchStatus) != eligibility.BatchSelected
	}
	return ok
}

func project(rec rowstore.Record, fields []string) rowstore.Record {
	if len(fields) == 0 {
		return rec
	}
	out := rowstore.Record{ID: rec.ID, Fields: map[string]any{}}
	for _, f := range fields {
		if v, ok := rec.Fields[f]; ok {
			out.Fields[f] = v
		}
	}
	return out
}

// --- rowstore.Gateway ---

func (s *Store) SelectFirst(ctx context.Context, table string, opts rowstore.SelectOptions) (*rowstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.selectRecords(table, opts.FilterByFormula, opts.Sort)
	if len(recs) == 0 {
		return nil, nil
	}
	rec := project(recs[0], opts.Fields)
	return &rec, nil
}

func (s *Store) SelectAllPaged(ctx context.Context, table string, opts rowstore.SelectOptions, visit rowstore.VisitFunc) error {
	s.mu.Lock()
	recs := s.selectRecords(table, opts.FilterByFormula, opts.Sort)
	s.mu.Unlock()
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		cont, err := visit(project(rec, opts.Fields))
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, updates []rowstore.RecordUpdate) (rowstore.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res rowstore.UpdateResult
	for _, u := range updates {
		if s.FailUpdatesAfter >= 0 && s.UpdatedRecords >= s.FailUpdatesAfter {
			return res, errInjected
		}
		if !s.applyLocked(table, u) {
			res.Failed = append(res.Failed, u.ID)
			continue
		}
		res.Updated = append(res.Updated, u.ID)
		s.UpdatedRecords++
	}
	return res, nil
}

func (s *Store) applyLocked(table string, u rowstore.RecordUpdate) bool {
	for f := range u.Fields {
		if !s.fields[table][f] {
			return false
		}
	}
	for _, rec := range s.tables[table] {
		if rec.ID == u.ID {
			for f, v := range u.Fields {
				if v == "" || v == nil {
					delete(rec.Fields, f)
					continue
				}
				rec.Fields[f] = v
			}
			return true
		}
	}
	return false
}

func (s *Store) CreateRecord(ctx context.Context, table string, fields map[string]any) (*rowstore.Record, error) {
	id := s.Add(table, fields)
	return s.Get(table, id), nil
}

func (s *Store) ExistsField(ctx context.Context, table, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fields[table]; !ok {
		return false, nil
	}
	return s.fields[table][field], nil
}
