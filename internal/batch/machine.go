// Package batch implements the locked-batch lifecycle over the Leads table:
// preview and count of eligible leads, lock (replace or append), current-batch
// reads, finalize, and reset. The store is the source of truth; the machine
// keeps no authoritative state in memory and recovers from the store after a
// restart.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/rowstore"
	"github.com/user/topleads/internal/threshold"
)

const (
	// MaxPageSize bounds one preview/current page and one explicit id list.
	MaxPageSize = 200

	ModeAll      = "all"
	ModeExplicit = "explicit"
)

// Tenant addresses one tenant's base for a single operation.
type Tenant struct {
	ID    string
	Store rowstore.Gateway
}

// Machine runs the batch lifecycle. Mutating operations on the same tenant
// serialize on a per-tenant mutex; reads never take it.
type Machine struct {
	selectAllCap int
	log          *slog.Logger
	locks        lockTable
}

func NewMachine(selectAllCap int, log *slog.Logger) *Machine {
	if selectAllCap < 1 {
		selectAllCap = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{selectAllCap: selectAllCap, log: log}
}

// SelectAllCap is the per-call ceiling on locked-batch size.
func (m *Machine) SelectAllCap() int { return m.selectAllCap }

// Item is the lead projection every read endpoint returns.
type Item struct {
	ID               string   `json:"id"`
	Score            *float64 `json:"score"`
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName"`
	LinkedInURL      string   `json:"linkedinUrl"`
	ScoringStatus    string   `json:"scoringStatus"`
	ConnectionStatus string   `json:"connectionStatus"`
	BatchStatus      string   `json:"batchStatus,omitempty"`
	DateAddedToLH    string   `json:"dateAddedToLH,omitempty"`
}

func itemFrom(rec rowstore.Record) Item {
	return Item{
		ID:               rec.ID,
		Score:            rec.Num(eligibility.FieldAIScore),
		FirstName:        rec.Str(eligibility.FieldFirstName),
		LastName:         rec.Str(eligibility.FieldLastName),
		LinkedInURL:      rec.Str(eligibility.FieldLinkedInURL),
		ScoringStatus:    rec.Str(eligibility.FieldScoringStatus),
		ConnectionStatus: rec.Str(eligibility.FieldConnectionStatus),
		BatchStatus:      rec.Str(eligibility.FieldBatchStatus),
		DateAddedToLH:    rec.Str(eligibility.FieldDateAdded),
	}
}

var leadFields = []string{
	eligibility.FieldAIScore,
	eligibility.FieldFirstName,
	eligibility.FieldLastName,
	eligibility.FieldLinkedInURL,
	eligibility.FieldScoringStatus,
	eligibility.FieldConnectionStatus,
	eligibility.FieldBatchStatus,
	eligibility.FieldDateAdded,
}

// resolveThreshold applies the override > stored > 0 chain.
func (m *Machine) resolveThreshold(ctx context.Context, t Tenant, override *float64) (float64, error) {
	if override != nil {
		return *override, nil
	}
	v, err := threshold.New(t.Store).Get(ctx)
	if err != nil {
		return 0, err
	}
	if v.Value == nil {
		return 0, nil
	}
	return *v.Value, nil
}

// collectFiltered pages through the leads matching formula in score order,
// keeping at most max items. hasMore reports whether the set went past max.
// Ordering is score descending with record-id ascending tie-break, applied
// after collection since the store cannot sort on record identifiers.
func (m *Machine) collectFiltered(ctx context.Context, t Tenant, formula string, max int, fields []string) ([]Item, bool, error) {
	items := make([]Item, 0, min(max+1, 512))
	err := t.Store.SelectAllPaged(ctx, eligibility.TableLeads, rowstore.SelectOptions{
		FilterByFormula: formula,
		Fields:          fields,
		Sort:            eligibility.Sort(),
	}, func(rec rowstore.Record) (bool, error) {
		items = append(items, itemFrom(rec))
		return len(items) <= max, nil
	})
	if err != nil {
		return nil, false, err
	}
	sortItems(items)
	if len(items) > max {
		return items[:max], true, nil
	}
	return items, false, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Score, items[j].Score
		av, bv := -1.0, -1.0
		if a != nil {
			av = *a
		}
		if b != nil {
			bv = *b
		}
		if av != bv {
			return av > bv
		}
		return items[i].ID < items[j].ID
	})
}

type PreviewRequest struct {
	Page              int
	PageSize          int
	ThresholdOverride *float64
}

type PreviewResult struct {
	Items            []Item  `json:"items"`
	Page             int     `json:"page"`
	PageSize         int     `json:"pageSize"`
	HasMore          bool    `json:"hasMore"`
	AppliedThreshold float64 `json:"appliedThreshold"`
}

// PreviewEligible reads one page of the eligible set. Read-only and
// idempotent; does not take the tenant lock.
func (m *Machine) PreviewEligible(ctx context.Context, t Tenant, req PreviewRequest) (PreviewResult, error) {
	if req.Page < 1 {
		return PreviewResult{}, apperr.BadValuef("page must be >= 1, got %d", req.Page)
	}
	if req.PageSize < 1 || req.PageSize > MaxPageSize {
		return PreviewResult{}, apperr.BadValuef("pageSize must be 1..%d, got %d", MaxPageSize, req.PageSize)
	}
	th, err := m.resolveThreshold(ctx, t, req.ThresholdOverride)
	if err != nil {
		return PreviewResult{}, err
	}

	window := req.Page * req.PageSize
	items, hasMore, err := m.collectFiltered(ctx, t, eligibility.Formula(th), window, leadFields)
	if err != nil {
		return PreviewResult{}, err
	}
	start := (req.Page - 1) * req.PageSize
	if start > len(items) {
		start = len(items)
	}
	return PreviewResult{
		Items:            items[start:],
		Page:             req.Page,
		PageSize:         req.PageSize,
		HasMore:          hasMore,
		AppliedThreshold: th,
	}, nil
}

// EligibleAll returns the whole eligible set up to the select-all cap, in
// order. Serves the legacy bare-array contract.
func (m *Machine) EligibleAll(ctx context.Context, t Tenant, override *float64) ([]Item, error) {
	th, err := m.resolveThreshold(ctx, t, override)
	if err != nil {
		return nil, err
	}
	items, _, err := m.collectFiltered(ctx, t, eligibility.Formula(th), m.selectAllCap, leadFields)
	if err != nil {
		return nil, err
	}
	return items, nil
}

type CountResult struct {
	Total            int     `json:"total"`
	Cap              int     `json:"limit"`
	AppliedThreshold float64 `json:"appliedThreshold"`
}

// CountEligible counts eligible leads up to softCap, projecting only the
// score field. Total equal to the cap means "at least this many".
func (m *Machine) CountEligible(ctx context.Context, t Tenant, override *float64, softCap int) (CountResult, error) {
	if softCap <= 0 {
		softCap = m.selectAllCap
	}
	th, err := m.resolveThreshold(ctx, t, override)
	if err != nil {
		return CountResult{}, err
	}
	total := 0
	err = t.Store.SelectAllPaged(ctx, eligibility.TableLeads, rowstore.SelectOptions{
		FilterByFormula: eligibility.Formula(th),
		Fields:          []string{eligibility.FieldAIScore},
	}, func(rowstore.Record) (bool, error) {
		total++
		return total < softCap, nil
	})
	if err != nil {
		return CountResult{}, err
	}
	return CountResult{Total: total, Cap: softCap, AppliedThreshold: th}, nil
}

// LockRequest parameterizes LockBatch and DryRunSelect. A non-empty RecordIDs
// switches to explicit mode; otherwise all-mode selects the top of the
// eligible set.
type LockRequest struct {
	PageSize          int // all-mode cap; 0 means the select-all cap
	AppendExplicit    bool
	ReplaceExplicit   bool
	RecordIDs         []string
	ThresholdOverride *float64
}

func (req LockRequest) validate() error {
	if req.AppendExplicit && req.ReplaceExplicit {
		return apperr.BadValuef("append and replace are mutually exclusive")
	}
	if req.PageSize < 0 {
		return apperr.BadValuef("pageSize must be >= 1, got %d", req.PageSize)
	}
	if len(req.RecordIDs) > MaxPageSize {
		return apperr.BadValuef("recordIds is limited to %d entries, got %d", MaxPageSize, len(req.RecordIDs))
	}
	return nil
}

// planCap is the effective all-mode lock cap: min(pageSize, select-all cap).
func (m *Machine) planCap(pageSize int) int {
	if pageSize < 1 || pageSize > m.selectAllCap {
		return m.selectAllCap
	}
	return pageSize
}

type DryRunResult struct {
	Mode      string `json:"mode"`
	Append    bool   `json:"append"`
	WillClear int    `json:"willClear"`
	WillSet   int    `json:"willSet"`
	HasMore   bool   `json:"hasMore"`
}

// DryRunSelect computes what LockBatch would do with the same parameters,
// without writing. It does not take the tenant lock, so a concurrent mutation
// may make the answer stale; callers tolerate that.
func (m *Machine) DryRunSelect(ctx context.Context, t Tenant, req LockRequest) (DryRunResult, error) {
	if err := req.validate(); err != nil {
		return DryRunResult{}, err
	}
	if len(req.RecordIDs) > 0 {
		locked, err := m.lockedIDs(ctx, t)
		if err != nil {
			return DryRunResult{}, err
		}
		return DryRunResult{Mode: ModeExplicit, WillClear: len(locked), WillSet: len(req.RecordIDs)}, nil
	}

	th, err := m.resolveThreshold(ctx, t, req.ThresholdOverride)
	if err != nil {
		return DryRunResult{}, err
	}
	// A replace clears before selecting, so its prediction must count
	// currently-locked rows as selectable again.
	formula := eligibility.FormulaIncludingLocked(th)
	if req.AppendExplicit {
		formula = eligibility.Formula(th)
	}
	ids, hasMore, err := m.eligibleIDs(ctx, t, formula, m.planCap(req.PageSize))
	if err != nil {
		return DryRunResult{}, err
	}
	res := DryRunResult{Mode: ModeAll, Append: req.AppendExplicit, WillSet: len(ids), HasMore: hasMore}
	if !res.Append {
		locked, err := m.lockedIDs(ctx, t)
		if err != nil {
			return DryRunResult{}, err
		}
		res.WillClear = len(locked)
	}
	return res, nil
}

type LockResult struct {
	Mode    string `json:"mode"`
	Append  bool   `json:"append"`
	Cleared int    `json:"cleared"`
	Set     int    `json:"set"`
	HasMore bool   `json:"hasMore"`
}

// LockBatch reserves leads into the named batch. All-mode picks the top of
// the eligible set, capped; default is replace unless append was explicitly
// requested. Explicit mode always replaces. Holds the tenant lock across the
// clear and set phases.
func (m *Machine) LockBatch(ctx context.Context, t Tenant, req LockRequest) (LockResult, error) {
	if err := req.validate(); err != nil {
		return LockResult{}, err
	}
	unlock := m.locks.acquire(t.ID)
	defer unlock()

	log := m.log.With("op", "lock_batch", "op_id", shortID(), "tenant", t.ID)

	if len(req.RecordIDs) > 0 {
		return m.lockExplicit(ctx, t, req.RecordIDs, log)
	}

	th, err := m.resolveThreshold(ctx, t, req.ThresholdOverride)
	if err != nil {
		return LockResult{}, err
	}

	res := LockResult{Mode: ModeAll, Append: req.AppendExplicit}
	log.Info("locking batch", "mode", res.Mode, "append", res.Append, "threshold", th)

	// Replace clears first so the freed rows re-enter the selection below;
	// that is what makes replace locks idempotent under stable data.
	if !res.Append {
		cleared, err := m.clearLocked(ctx, t)
		res.Cleared = cleared
		if err != nil {
			return res, err
		}
	}
	ids, hasMore, err := m.eligibleIDs(ctx, t, eligibility.Formula(th), m.planCap(req.PageSize))
	if err != nil {
		return res, err
	}
	res.HasMore = hasMore
	set, err := m.setLocked(ctx, t, ids)
	res.Set = set
	if err != nil {
		return res, err
	}
	log.Info("batch locked", "cleared", res.Cleared, "set", res.Set, "has_more", res.HasMore)
	lockedRecordsTotal.Add(float64(res.Set))
	return res, nil
}

func (m *Machine) lockExplicit(ctx context.Context, t Tenant, ids []string, log *slog.Logger) (LockResult, error) {
	res := LockResult{Mode: ModeExplicit}
	log.Info("locking batch", "mode", res.Mode, "candidates", len(ids))

	cleared, err := m.clearLocked(ctx, t)
	res.Cleared = cleared
	if err != nil {
		return res, err
	}
	set, err := m.setLocked(ctx, t, ids)
	res.Set = set
	if err != nil {
		return res, err
	}
	log.Info("batch locked", "cleared", res.Cleared, "set", res.Set)
	lockedRecordsTotal.Add(float64(res.Set))
	return res, nil
}

// eligibleIDs returns the ordered identifiers of the leads matching formula,
// capped.
func (m *Machine) eligibleIDs(ctx context.Context, t Tenant, formula string, limit int) ([]string, bool, error) {
	items, hasMore, err := m.collectFiltered(ctx, t, formula, limit, []string{eligibility.FieldAIScore})
	if err != nil {
		return nil, false, err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids, hasMore, nil
}

// lockedIDs pages through all currently-locked records. The clear side of a
// replace is never capped.
func (m *Machine) lockedIDs(ctx context.Context, t Tenant) ([]string, error) {
	var ids []string
	err := t.Store.SelectAllPaged(ctx, eligibility.TableLeads, rowstore.SelectOptions{
		FilterByFormula: eligibility.LockedFormula(),
		Fields:          []string{eligibility.FieldBatchStatus},
	}, func(rec rowstore.Record) (bool, error) {
		ids = append(ids, rec.ID)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Machine) clearLocked(ctx context.Context, t Tenant) (int, error) {
	ids, err := m.lockedIDs(ctx, t)
	if err != nil {
		return 0, err
	}
	return m.writeStatus(ctx, t, ids, map[string]any{eligibility.FieldBatchStatus: ""}, "clear")
}

func (m *Machine) setLocked(ctx context.Context, t Tenant, ids []string) (int, error) {
	return m.writeStatus(ctx, t, ids, map[string]any{eligibility.FieldBatchStatus: eligibility.BatchSelected}, "set")
}

// writeStatus applies the same field write to every id through the gateway's
// chunked update. A transport failure mid-phase becomes PartialLock; records
// the store rejected individually become PartialUpdate. Both leave the batch
// consistent and are safe to retry with a replace lock or a reset.
func (m *Machine) writeStatus(ctx context.Context, t Tenant, ids []string, fields map[string]any, phase string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := make([]rowstore.RecordUpdate, len(ids))
	for i, id := range ids {
		updates[i] = rowstore.RecordUpdate{ID: id, Fields: fields}
	}
	res, err := t.Store.Update(ctx, eligibility.TableLeads, updates)
	if err != nil {
		return len(res.Updated), apperr.Partial(apperr.CodePartialLock,
			"batch "+phase+" phase stopped early", res.Updated, res.Failed, err)
	}
	if len(res.Failed) > 0 {
		return len(res.Updated), apperr.Partial(apperr.CodePartialUpdate,
			"store rejected some records during batch "+phase, res.Updated, res.Failed, nil)
	}
	return len(res.Updated), nil
}

type CurrentRequest struct {
	All      bool
	PageSize int
}

type CurrentResult struct {
	Items []Item `json:"items"`
	Count int    `json:"count"`
}

// CurrentBatch reads the locked batch. With All set and no explicit size the
// limit expands to the select-all cap; otherwise a single page of at most 200.
func (m *Machine) CurrentBatch(ctx context.Context, t Tenant, req CurrentRequest) (CurrentResult, error) {
	if req.PageSize < 0 || (!req.All && req.PageSize > MaxPageSize) {
		return CurrentResult{}, apperr.BadValuef("pageSize must be 1..%d, got %d", MaxPageSize, req.PageSize)
	}
	limit := req.PageSize
	if limit == 0 {
		if req.All {
			limit = m.selectAllCap
		} else {
			limit = MaxPageSize
		}
	}
	if limit > m.selectAllCap {
		limit = m.selectAllCap
	}

	items := []Item{}
	err := t.Store.SelectAllPaged(ctx, eligibility.TableLeads, rowstore.SelectOptions{
		FilterByFormula: eligibility.LockedFormula(),
		Fields:          leadFields,
		Sort:            eligibility.Sort(),
	}, func(rec rowstore.Record) (bool, error) {
		items = append(items, itemFrom(rec))
		return len(items) < limit, nil
	})
	if err != nil {
		return CurrentResult{}, err
	}
	sortItems(items)
	return CurrentResult{Items: items, Count: len(items)}, nil
}

type FinalizeResult struct {
	Updated int `json:"updated"`
}

// FinalizeBatch commits the locked batch: stamps the campaign date and clears
// the batch flag, making every finalized lead permanently ineligible.
// Finalizing an empty batch is a no-op.
func (m *Machine) FinalizeBatch(ctx context.Context, t Tenant, explicitIDs []string) (FinalizeResult, error) {
	if len(explicitIDs) > MaxPageSize {
		return FinalizeResult{}, apperr.BadValuef("recordIds is limited to %d entries, got %d", MaxPageSize, len(explicitIDs))
	}
	unlock := m.locks.acquire(t.ID)
	defer unlock()

	log := m.log.With("op", "finalize_batch", "op_id", shortID(), "tenant", t.ID)

	ids := explicitIDs
	if len(ids) == 0 {
		var err error
		ids, err = m.lockedIDs(ctx, t)
		if err != nil {
			return FinalizeResult{}, err
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	updated, err := m.writeStatus(ctx, t, ids, map[string]any{
		eligibility.FieldDateAdded:   now,
		eligibility.FieldBatchStatus: "",
	}, "finalize")
	if err != nil {
		return FinalizeResult{Updated: updated}, err
	}
	log.Info("batch finalized", "updated", updated)
	finalizedRecordsTotal.Add(float64(updated))
	return FinalizeResult{Updated: updated}, nil
}

type ResetResult struct {
	Cleared int `json:"cleared"`
}

// ResetBatch abandons the locked batch: clears the batch flag on every locked
// record and nothing else, returning those leads to eligibility.
func (m *Machine) ResetBatch(ctx context.Context, t Tenant) (ResetResult, error) {
	unlock := m.locks.acquire(t.ID)
	defer unlock()

	log := m.log.With("op", "reset_batch", "op_id", shortID(), "tenant", t.ID)

	cleared, err := m.clearLocked(ctx, t)
	if err != nil {
		return ResetResult{Cleared: cleared}, err
	}
	log.Info("batch reset", "cleared", cleared)
	resetRecordsTotal.Add(float64(cleared))
	return ResetResult{Cleared: cleared}, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
