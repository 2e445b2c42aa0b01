package probe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/probe"
	"github.com/user/topleads/internal/storefake"
	"github.com/user/topleads/internal/threshold"
)

func TestRunHealthyBase(t *testing.T) {
	res := probe.Run(context.Background(), storefake.New())
	assert.True(t, res.OK)
	assert.True(t, res.Tables[eligibility.TableLeads])
	assert.True(t, res.Tables[eligibility.TableCredentials])
	assert.True(t, res.Fields["Leads.AI Score"])
}

func TestRunMissingRequiredField(t *testing.T) {
	fake := storefake.New()
	fake.DropField(eligibility.TableLeads, eligibility.FieldBatchStatus)

	res := probe.Run(context.Background(), fake)
	assert.False(t, res.OK)
	assert.False(t, res.Fields["Leads.Temp LH Batch Status"])
	assert.NotEmpty(t, res.Notes)
}

func TestRunLegacyExportFieldOnly(t *testing.T) {
	fake := storefake.New()
	fake.DropField(eligibility.TableCredentials, threshold.FieldExportAt)

	res := probe.Run(context.Background(), fake)
	assert.True(t, res.OK, "legacy export column alone is acceptable")
	assert.Contains(t, res.Notes[len(res.Notes)-1], "legacy")
}

func TestRunMissingOptionalEmail(t *testing.T) {
	fake := storefake.New()
	fake.DropField(eligibility.TableLeads, eligibility.FieldEmail)

	res := probe.Run(context.Background(), fake)
	assert.True(t, res.OK, "email column is optional")
	assert.False(t, res.Fields["Leads.Email"])
}
