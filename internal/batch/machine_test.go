package batch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/batch"
	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/storefake"
	"github.com/user/topleads/internal/threshold"
)

// seed builds the canonical fixture: four leads scoring 95/80/60/40, the last
// already campaigned, with a stored threshold of 70.
func seed(t *testing.T) (*storefake.Store, batch.Tenant, []string) {
	t.Helper()
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{threshold.FieldThreshold: 70.0})

	mk := func(first string, score float64, dateAdded string) string {
		fields := map[string]any{
			eligibility.FieldScoringStatus:    eligibility.StatusScored,
			eligibility.FieldConnectionStatus: eligibility.StatusCandidate,
			eligibility.FieldAIScore:          score,
			eligibility.FieldFirstName:        first,
			eligibility.FieldLastName:         "Lead",
			eligibility.FieldLinkedInURL:      "https://linkedin.com/in/" + first,
		}
		if dateAdded != "" {
			fields[eligibility.FieldDateAdded] = dateAdded
		}
		return fake.Add(eligibility.TableLeads, fields)
	}
	ids := []string{
		mk("Alice", 95, ""),
		mk("Bruno", 80, ""),
		mk("Carol", 60, ""),
		mk("Drew", 40, "2026-01-15"),
	}
	return fake, batch.Tenant{ID: "acme", Store: fake}, ids
}

func machine() *batch.Machine { return batch.NewMachine(5000, nil) }

func itemIDs(items []batch.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPreviewOrdersByScore(t *testing.T) {
	_, tn, ids := seed(t)
	res, err := machine().PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1]}, itemIDs(res.Items))
	assert.False(t, res.HasMore)
	assert.Equal(t, 70.0, res.AppliedThreshold)
	assert.Equal(t, "Alice", res.Items[0].FirstName)
}

func TestPreviewWindowAndHasMore(t *testing.T) {
	_, tn, ids := seed(t)
	m := machine()

	res, err := m.PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, itemIDs(res.Items))
	assert.True(t, res.HasMore)

	res, err = m.PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, itemIDs(res.Items))
	assert.False(t, res.HasMore)
}

func TestPreviewValidation(t *testing.T) {
	_, tn, _ := seed(t)
	m := machine()
	for _, req := range []batch.PreviewRequest{
		{Page: 0, PageSize: 10},
		{Page: 1, PageSize: 0},
		{Page: 1, PageSize: 201},
	} {
		_, err := m.PreviewEligible(context.Background(), tn, req)
		assert.Equal(t, apperr.CodeBadValue, apperr.CodeOf(err), "%+v", req)
	}
}

func TestPreviewThresholdOverride(t *testing.T) {
	_, tn, _ := seed(t)
	th := 50.0
	res, err := machine().PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 10, ThresholdOverride: &th})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, 50.0, res.AppliedThreshold)
}

func TestPreviewDefaultsThresholdToZero(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableLeads, map[string]any{
		eligibility.FieldScoringStatus:    eligibility.StatusScored,
		eligibility.FieldConnectionStatus: eligibility.StatusCandidate,
		eligibility.FieldAIScore:          5.0,
	})
	tn := batch.Tenant{ID: "acme", Store: fake}

	res, err := machine().PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.AppliedThreshold)
	assert.Len(t, res.Items, 1)
}

func TestCountEligible(t *testing.T) {
	_, tn, _ := seed(t)
	m := machine()

	res, err := m.CountEligible(context.Background(), tn, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 5000, res.Cap)

	res, err = m.CountEligible(context.Background(), tn, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total, "count stops at the soft cap")
	assert.Equal(t, 1, res.Cap)
}

func TestLockDefaultReplace(t *testing.T) {
	fake, tn, ids := seed(t)
	m := machine()

	res, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, batch.ModeAll, res.Mode)
	assert.False(t, res.Append)
	assert.Equal(t, 0, res.Cleared)
	assert.Equal(t, 1, res.Set)
	assert.True(t, res.HasMore)
	assert.Equal(t, []string{ids[0]}, fake.LockedIDs())

	cur, err := m.CurrentBatch(context.Background(), tn, batch.CurrentRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, itemIDs(cur.Items))
	assert.Equal(t, 1, cur.Count)
}

func TestLockReplaceGrowsAndShrinks(t *testing.T) {
	fake, tn, ids := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)

	res, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cleared, "previous batch member cleared")
	assert.Equal(t, 2, res.Set, "freed lead re-enters the selection")
	assert.False(t, res.HasMore)
	assert.ElementsMatch(t, []string{ids[0], ids[1]}, fake.LockedIDs())
}

func TestLockReplaceIdempotent(t *testing.T) {
	fake, tn, _ := seed(t)
	m := machine()

	first, err := m.LockBatch(context.Background(), tn, batch.LockRequest{})
	require.NoError(t, err)
	locked := fake.LockedIDs()

	second, err := m.LockBatch(context.Background(), tn, batch.LockRequest{})
	require.NoError(t, err)
	assert.Equal(t, first.Set, second.Set)
	assert.Equal(t, first.Set, second.Cleared, "second replace clears what the first set")
	assert.Equal(t, locked, fake.LockedIDs())
}

func TestLockAppendKeepsOld(t *testing.T) {
	fake, tn, ids := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)

	res, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1, AppendExplicit: true})
	require.NoError(t, err)
	assert.True(t, res.Append)
	assert.Equal(t, 0, res.Cleared)
	assert.Equal(t, 1, res.Set)
	assert.ElementsMatch(t, []string{ids[0], ids[1]}, fake.LockedIDs())
}

func TestLockAppendReplaceConflict(t *testing.T) {
	_, tn, _ := seed(t)
	_, err := machine().LockBatch(context.Background(), tn, batch.LockRequest{AppendExplicit: true, ReplaceExplicit: true})
	assert.Equal(t, apperr.CodeBadValue, apperr.CodeOf(err))
}

func TestLockExplicitReplaces(t *testing.T) {
	fake, tn, ids := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)

	res, err := m.LockBatch(context.Background(), tn, batch.LockRequest{RecordIDs: []string{ids[2]}})
	require.NoError(t, err)
	assert.Equal(t, batch.ModeExplicit, res.Mode)
	assert.Equal(t, 1, res.Cleared)
	assert.Equal(t, 1, res.Set)
	assert.Equal(t, []string{ids[2]}, fake.LockedIDs())
}

func TestLockExplicitUnknownID(t *testing.T) {
	fake, tn, ids := seed(t)
	_, err := machine().LockBatch(context.Background(), tn, batch.LockRequest{RecordIDs: []string{ids[0], "recGHOST"}})
	require.Error(t, err)
	e := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.CodePartialUpdate, e.Code)
	assert.Equal(t, []string{ids[0]}, e.Succeeded)
	assert.Equal(t, []string{"recGHOST"}, e.Failed)
	assert.Equal(t, []string{ids[0]}, fake.LockedIDs())
}

func TestLockPartialOnTransportFailure(t *testing.T) {
	fake, tn, _ := seed(t)
	fake.FailUpdatesAfter = 1
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePartialLock, apperr.CodeOf(err))

	// Recovery path: a reset clears whatever landed.
	fake.FailUpdatesAfter = -1
	res, err := m.ResetBatch(context.Background(), tn)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cleared)
	assert.Empty(t, fake.LockedIDs())
}

func TestLockCapObedience(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{threshold.FieldThreshold: 0.0})
	for i := 0; i < 12; i++ {
		fake.Add(eligibility.TableLeads, map[string]any{
			eligibility.FieldScoringStatus:    eligibility.StatusScored,
			eligibility.FieldConnectionStatus: eligibility.StatusCandidate,
			eligibility.FieldAIScore:          float64(i),
		})
	}
	tn := batch.Tenant{ID: "acme", Store: fake}
	m := batch.NewMachine(5, nil)

	res, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Set, "pageSize above the cap clamps to it")
	assert.True(t, res.HasMore)
	assert.Len(t, fake.LockedIDs(), 5)
}

func TestDryRunPredictsReplace(t *testing.T) {
	fake, tn, _ := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)
	before := fake.UpdatedRecords

	dry, err := m.DryRunSelect(context.Background(), tn, batch.LockRequest{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, dry.WillClear)
	assert.Equal(t, 2, dry.WillSet, "locked lead counts as selectable again under replace")
	assert.False(t, dry.Append)
	assert.Equal(t, before, fake.UpdatedRecords, "dry run must not write")
}

func TestDryRunPredictsAppend(t *testing.T) {
	_, tn, _ := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)

	dry, err := m.DryRunSelect(context.Background(), tn, batch.LockRequest{PageSize: 10, AppendExplicit: true})
	require.NoError(t, err)
	assert.True(t, dry.Append)
	assert.Equal(t, 0, dry.WillClear)
	assert.Equal(t, 1, dry.WillSet, "only the still-eligible lead is appended")
}

func TestFinalizePermanentlyExcludes(t *testing.T) {
	fake, tn, ids := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{})
	require.NoError(t, err)

	fin, err := m.FinalizeBatch(context.Background(), tn, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fin.Updated)
	assert.Empty(t, fake.LockedIDs())

	for _, id := range []string{ids[0], ids[1]} {
		assert.NotEmpty(t, fake.Field(eligibility.TableLeads, id, eligibility.FieldDateAdded))
		assert.Empty(t, fake.Field(eligibility.TableLeads, id, eligibility.FieldBatchStatus))
	}

	res, err := m.PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestFinalizeEmptyBatch(t *testing.T) {
	_, tn, _ := seed(t)
	fin, err := machine().FinalizeBatch(context.Background(), tn, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, fin.Updated)
}

func TestResetRestoresEligibility(t *testing.T) {
	fake, tn, ids := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{})
	require.NoError(t, err)

	res, err := m.ResetBatch(context.Background(), tn)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cleared)
	assert.Empty(t, fake.LockedIDs())

	// Reset symmetry: the fields this engine writes are back to pre-lock.
	for _, id := range []string{ids[0], ids[1]} {
		assert.Empty(t, fake.Field(eligibility.TableLeads, id, eligibility.FieldBatchStatus))
		assert.Empty(t, fake.Field(eligibility.TableLeads, id, eligibility.FieldDateAdded), "reset never stamps the campaign date")
	}

	prev, err := m.PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1]}, itemIDs(prev.Items))
}

func TestLockExcludesLockedFromPreview(t *testing.T) {
	_, tn, ids := seed(t)
	m := machine()

	_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 1})
	require.NoError(t, err)

	res, err := m.PreviewEligible(context.Background(), tn, batch.PreviewRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	for _, it := range res.Items {
		assert.NotEqual(t, ids[0], it.ID, "locked lead must not be eligible")
	}
}

func TestCurrentBatchAutoExpand(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{threshold.FieldThreshold: 0.0})
	for i := 0; i < 250; i++ {
		fake.Add(eligibility.TableLeads, map[string]any{
			eligibility.FieldAIScore:     float64(i),
			eligibility.FieldBatchStatus: eligibility.BatchSelected,
		})
	}
	tn := batch.Tenant{ID: "acme", Store: fake}
	m := machine()

	cur, err := m.CurrentBatch(context.Background(), tn, batch.CurrentRequest{})
	require.NoError(t, err)
	assert.Equal(t, 200, cur.Count, "first page only without all")

	cur, err = m.CurrentBatch(context.Background(), tn, batch.CurrentRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, 250, cur.Count, "all expands to the select-all cap")
}

func TestConcurrentReplaceSerializes(t *testing.T) {
	fake, tn, _ := seed(t)
	m := machine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.LockBatch(context.Background(), tn, batch.LockRequest{PageSize: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, fake.LockedIDs(), 2, "final state reflects exactly one operation's set")
}
