package export_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/export"
	"github.com/user/topleads/internal/storefake"
)

func addLead(fake *storefake.Store, score float64, extra map[string]any) {
	fields := map[string]any{
		eligibility.FieldScoringStatus:    eligibility.StatusScored,
		eligibility.FieldConnectionStatus: eligibility.StatusCandidate,
		eligibility.FieldAIScore:          score,
	}
	for k, v := range extra {
		fields[k] = v
	}
	fake.Add(eligibility.TableLeads, fields)
}

func TestStreamLinkedInTxt(t *testing.T) {
	fake := storefake.New()
	addLead(fake, 95, map[string]any{eligibility.FieldLinkedInURL: "https://linkedin.com/in/alice"})
	addLead(fake, 90, map[string]any{eligibility.FieldLinkedInURL: "https://linkedin.com/in/bruno"})
	addLead(fake, 85, map[string]any{eligibility.FieldLinkedInURL: "https://linkedin.com/in/alice"}) // duplicate
	addLead(fake, 80, map[string]any{})                                                              // blank, skipped

	var out strings.Builder
	n, err := export.Stream(context.Background(), fake, export.Request{Kind: export.KindLinkedIn, Format: export.FormatTxt}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "https://linkedin.com/in/alice\nhttps://linkedin.com/in/bruno\n", out.String())
}

func TestStreamURLDedupIsCaseSensitive(t *testing.T) {
	fake := storefake.New()
	addLead(fake, 95, map[string]any{eligibility.FieldLinkedInURL: "https://linkedin.com/in/Alice"})
	addLead(fake, 90, map[string]any{eligibility.FieldLinkedInURL: "https://linkedin.com/in/alice"})

	var out strings.Builder
	n, err := export.Stream(context.Background(), fake, export.Request{Kind: export.KindLinkedIn, Format: export.FormatTxt}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "URL case differences are distinct values")
}

func TestStreamEmailDedupLowercases(t *testing.T) {
	fake := storefake.New()
	addLead(fake, 95, map[string]any{eligibility.FieldEmail: "Alice@Example.com"})
	addLead(fake, 90, map[string]any{eligibility.FieldEmail: "alice@example.com"})

	var out strings.Builder
	n, err := export.Stream(context.Background(), fake, export.Request{Kind: export.KindEmails, Format: export.FormatTxt}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Alice@Example.com\n", out.String(), "first spelling wins")
}

func TestStreamPhoneDedupDigitsOnly(t *testing.T) {
	fake := storefake.New()
	addLead(fake, 95, map[string]any{eligibility.FieldPhone: "+1 (555) 010-2030"})
	addLead(fake, 90, map[string]any{eligibility.FieldPhone: "15550102030"})

	var out strings.Builder
	n, err := export.Stream(context.Background(), fake, export.Request{Kind: export.KindPhones, Format: export.FormatTxt}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStreamCSVHeader(t *testing.T) {
	fake := storefake.New()
	addLead(fake, 95, map[string]any{eligibility.FieldEmail: "alice@example.com"})

	var out strings.Builder
	n, err := export.Stream(context.Background(), fake, export.Request{Kind: export.KindEmails, Format: export.FormatCSV}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "value\nalice@example.com\n", out.String())
}

func TestStreamLimit(t *testing.T) {
	fake := storefake.New()
	for i := 0; i < 5; i++ {
		addLead(fake, float64(90+i), map[string]any{eligibility.FieldEmail: strings.Repeat("x", i+1) + "@example.com"})
	}

	var out strings.Builder
	n, err := export.Stream(context.Background(), fake, export.Request{Kind: export.KindEmails, Format: export.FormatTxt, Limit: 3}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestParseKind(t *testing.T) {
	for raw, want := range map[string]export.Kind{
		"linkedin": export.KindLinkedIn,
		"EMAILS":   export.KindEmails,
		"phones":   export.KindPhones,
	} {
		got, err := export.ParseKind(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := export.ParseKind("carrier-pigeon")
	assert.Error(t, err)
}
