package threshold_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/storefake"
	"github.com/user/topleads/internal/threshold"
)

func TestGetUnsetSingleton(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{})

	v, err := threshold.New(fake).Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v.Value)
	assert.NotEmpty(t, v.RecordID)
}

func TestGetMissingSingleton(t *testing.T) {
	fake := storefake.New()
	v, err := threshold.New(fake).Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v.Value)
	assert.Empty(t, v.RecordID)
}

func TestPutRoundTrip(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{})
	s := threshold.New(fake)

	put, err := s.Put(context.Background(), 72.5)
	require.NoError(t, err)
	require.NotNil(t, put.Value)
	assert.Equal(t, 72.5, *put.Value)

	got, err := s.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, 72.5, *got.Value)
	assert.Equal(t, put.RecordID, got.RecordID)
}

func TestPutClamps(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{})
	s := threshold.New(fake)

	for in, want := range map[float64]float64{1500: 1000, -3: 0, 500: 500} {
		v, err := s.Put(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, want, *v.Value, "Put(%v)", in)
	}
}

func TestPutRejectsNonFinite(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{})
	s := threshold.New(fake)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := s.Put(context.Background(), v)
		assert.Equal(t, apperr.CodeBadValue, apperr.CodeOf(err))
	}
}

func TestPutMissingSingleton(t *testing.T) {
	fake := storefake.New()
	_, err := threshold.New(fake).Put(context.Background(), 50)
	assert.Equal(t, apperr.CodeNoSingleton, apperr.CodeOf(err))
}

func TestMarkExportedPrefersCurrentField(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{})
	s := threshold.New(fake)

	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	mark, err := s.MarkExported(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, threshold.FieldExportAt, mark.Field)

	got, err := s.LastExport(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
}

func TestMarkExportedLegacyFallback(t *testing.T) {
	fake := storefake.New()
	fake.Add(eligibility.TableCredentials, map[string]any{})
	fake.DropField(eligibility.TableCredentials, threshold.FieldExportAt)
	s := threshold.New(fake)

	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	mark, err := s.MarkExported(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, threshold.FieldExportAtLegacy, mark.Field)

	got, err := s.LastExport(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, threshold.Clamp(-1))
	assert.Equal(t, 1000.0, threshold.Clamp(1000.1))
	assert.Equal(t, 70.0, threshold.Clamp(70))
}
