package rowstore

import "context"

// Record is one row as returned by the store.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

// Str returns the named field as a string, or "" when absent or not a string.
func (r Record) Str(field string) string {
	if v, ok := r.Fields[field].(string); ok {
		return v
	}
	return ""
}

// Num returns the named field as a number, or nil when absent or non-numeric.
// The store decodes every numeric column as float64.
func (r Record) Num(field string) *float64 {
	if v, ok := r.Fields[field].(float64); ok {
		return &v
	}
	return nil
}

// RecordUpdate addresses one row for a field write.
type RecordUpdate struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type SortSpec struct {
	Field     string
	Direction string // "asc" or "desc"
}

// SelectOptions narrows a read. PageSize above the store page limit (100) is
// clamped; zero means the full page.
type SelectOptions struct {
	FilterByFormula string
	Fields          []string
	PageSize        int
	Sort            []SortSpec
}

// UpdateResult reports which record identifiers were written and which the
// store rejected.
type UpdateResult struct {
	Updated []string
	Failed  []string
}

// VisitFunc receives one record per call; returning false stops the paging
// loop without error.
type VisitFunc func(Record) (bool, error)

// Gateway is the typed surface every component reads and writes through. Base
// is the production implementation; tests substitute fakes.
type Gateway interface {
	SelectFirst(ctx context.Context, table string, opts SelectOptions) (*Record, error)
	SelectAllPaged(ctx context.Context, table string, opts SelectOptions, visit VisitFunc) error
	Update(ctx context.Context, table string, updates []RecordUpdate) (UpdateResult, error)
	CreateRecord(ctx context.Context, table string, fields map[string]any) (*Record, error)
	ExistsField(ctx context.Context, table, field string) (bool, error)
}
