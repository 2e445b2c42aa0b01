// Package probe verifies that a tenant's base carries the tables and columns
// the engine depends on. It never mutates anything.
package probe

import (
	"context"
	"fmt"

	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/rowstore"
	"github.com/user/topleads/internal/threshold"
)

type Result struct {
	OK     bool            `json:"ok"`
	Tables map[string]bool `json:"tables"`
	Fields map[string]bool `json:"fields"`
	Notes  []string        `json:"notes"`
}

var leadFields = []string{
	eligibility.FieldAIScore,
	eligibility.FieldScoringStatus,
	eligibility.FieldConnectionStatus,
	eligibility.FieldBatchStatus,
	eligibility.FieldDateAdded,
	eligibility.FieldLinkedInURL,
	eligibility.FieldFirstName,
	eligibility.FieldLastName,
}

// Run probes every required field. A table counts as present when any of its
// required fields answers. The export timestamp is special: either the
// current or the legacy column satisfies the check.
func Run(ctx context.Context, g rowstore.Gateway) Result {
	res := Result{
		OK:     true,
		Tables: map[string]bool{},
		Fields: map[string]bool{},
		Notes:  []string{},
	}

	check := func(table, field string, required bool) bool {
		ok, err := g.ExistsField(ctx, table, field)
		if err != nil {
			res.OK = false
			res.Notes = append(res.Notes, fmt.Sprintf("%s.%s: probe failed: %v", table, field, err))
			return false
		}
		res.Fields[table+"."+field] = ok
		if ok {
			res.Tables[table] = true
		} else if required {
			res.OK = false
			res.Notes = append(res.Notes, fmt.Sprintf("%s.%s: missing", table, field))
		}
		return ok
	}

	res.Tables[eligibility.TableLeads] = false
	res.Tables[eligibility.TableCredentials] = false

	for _, f := range leadFields {
		check(eligibility.TableLeads, f, true)
	}
	check(eligibility.TableCredentials, threshold.FieldThreshold, true)

	// Email and phone columns only matter for exports.
	if !check(eligibility.TableLeads, eligibility.FieldEmail, false) {
		res.Notes = append(res.Notes, "Leads.Email: missing; email export unavailable")
	}
	if !check(eligibility.TableLeads, eligibility.FieldPhone, false) {
		res.Notes = append(res.Notes, "Leads.Phone Number: missing; phone export unavailable")
	}

	current := check(eligibility.TableCredentials, threshold.FieldExportAt, false)
	legacy := check(eligibility.TableCredentials, threshold.FieldExportAtLegacy, false)
	switch {
	case current && legacy:
		res.Notes = append(res.Notes, "both export-timestamp columns exist; the current one wins on write")
	case !current && legacy:
		res.Notes = append(res.Notes, "only the legacy export-timestamp column exists; writes fall back to it")
	case !current && !legacy:
		res.OK = false
		res.Notes = append(res.Notes, "no export-timestamp column on Credentials")
	}
	return res
}
