// Package threshold owns the Credentials singleton: the score threshold and
// the export timestamp live on the first (and only) row of that table.
package threshold

import (
	"context"
	"math"
	"time"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/rowstore"
)

const (
	FieldThreshold = "AI Score Threshold Input"

	// Two generations of the export-timestamp column exist in the wild. Reads
	// accept either; writes try the current name first and fall back.
	FieldExportAt       = "Last LH Leads Export"
	FieldExportAtLegacy = "Top Leads Last Export At"

	MinValue = 0
	MaxValue = 1000
)

type Store struct {
	g rowstore.Gateway
}

func New(g rowstore.Gateway) Store { return Store{g: g} }

// Value is the stored threshold. Value is nil when the singleton exists but
// the field is unset.
type Value struct {
	Value    *float64
	RecordID string
}

// Clamp forces v into the accepted threshold range. Out-of-range writes are
// clamped silently, not rejected.
func Clamp(v float64) float64 {
	if v < MinValue {
		return MinValue
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}

func (s Store) singleton(ctx context.Context, fields ...string) (*rowstore.Record, error) {
	return s.g.SelectFirst(ctx, eligibility.TableCredentials, rowstore.SelectOptions{Fields: fields})
}

// Get reads the threshold from the Credentials singleton. A missing singleton
// or unset field yields a nil Value, not an error.
func (s Store) Get(ctx context.Context) (Value, error) {
	rec, err := s.singleton(ctx, FieldThreshold)
	if err != nil {
		return Value{}, err
	}
	if rec == nil {
		return Value{}, nil
	}
	return Value{Value: rec.Num(FieldThreshold), RecordID: rec.ID}, nil
}

// Put clamps v to [0,1000] and writes it in place. The singleton is never
// created here; a missing row is a deployment fault.
func (s Store) Put(ctx context.Context, v float64) (Value, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}, apperr.BadValuef("threshold must be a finite number")
	}
	v = Clamp(v)

	rec, err := s.singleton(ctx)
	if err != nil {
		return Value{}, err
	}
	if rec == nil {
		return Value{}, apperr.New(apperr.CodeNoSingleton, "Credentials table has no row")
	}

	res, err := s.g.Update(ctx, eligibility.TableCredentials, []rowstore.RecordUpdate{
		{ID: rec.ID, Fields: map[string]any{FieldThreshold: v}},
	})
	if err != nil {
		return Value{}, err
	}
	if len(res.Failed) > 0 {
		return Value{}, apperr.Newf(apperr.CodeStoreFatal, "threshold write rejected for record %s", rec.ID)
	}
	return Value{Value: &v, RecordID: rec.ID}, nil
}

// ExportMark reports where the export timestamp landed.
type ExportMark struct {
	At       time.Time
	RecordID string
	Field    string
}

// LastExport reads the export timestamp, trying the current field name before
// the legacy one. Nil when neither is set.
func (s Store) LastExport(ctx context.Context) (*time.Time, error) {
	rec, err := s.singleton(ctx, FieldExportAt, FieldExportAtLegacy)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	for _, field := range []string{FieldExportAt, FieldExportAtLegacy} {
		if raw := rec.Str(field); raw != "" {
			if at, err := parseStoreTime(raw); err == nil {
				return &at, nil
			}
		}
	}
	return nil, nil
}

// MarkExported stamps the export time on the singleton. The current field
// name is attempted first; when the store rejects it (column absent on older
// bases) the legacy name is written instead. The field that accepted the
// write is reported for observability.
func (s Store) MarkExported(ctx context.Context, at time.Time) (ExportMark, error) {
	rec, err := s.singleton(ctx)
	if err != nil {
		return ExportMark{}, err
	}
	if rec == nil {
		return ExportMark{}, apperr.New(apperr.CodeNoSingleton, "Credentials table has no row")
	}

	stamp := at.UTC().Format(time.RFC3339)
	for _, field := range []string{FieldExportAt, FieldExportAtLegacy} {
		res, err := s.g.Update(ctx, eligibility.TableCredentials, []rowstore.RecordUpdate{
			{ID: rec.ID, Fields: map[string]any{field: stamp}},
		})
		if err != nil {
			return ExportMark{}, err
		}
		if len(res.Failed) == 0 {
			return ExportMark{At: at.UTC(), RecordID: rec.ID, Field: field}, nil
		}
	}
	return ExportMark{}, apperr.Newf(apperr.CodeStoreFatal,
		"neither %q nor %q accepted the export timestamp", FieldExportAt, FieldExportAtLegacy)
}

func parseStoreTime(raw string) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at, nil
	}
	return time.Parse("2006-01-02", raw)
}
