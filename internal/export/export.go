// Package export streams one projected column of the eligible set as plain
// text or CSV, de-duplicating values on the way out.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/eligibility"
	"github.com/user/topleads/internal/rowstore"
)

type Kind string

const (
	KindLinkedIn Kind = "linkedin"
	KindEmails   Kind = "emails"
	KindPhones   Kind = "phones"
)

type Format string

const (
	FormatTxt Format = "txt"
	FormatCSV Format = "csv"
)

// DefaultCopyLimit bounds the clipboard path; downloads are uncapped.
const DefaultCopyLimit = 10000

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(raw)) {
	case KindLinkedIn:
		return KindLinkedIn, nil
	case KindEmails:
		return KindEmails, nil
	case KindPhones:
		return KindPhones, nil
	}
	return "", apperr.BadValuef("type must be linkedin, emails or phones, got %q", raw)
}

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(raw)) {
	case FormatTxt, "":
		return FormatTxt, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", apperr.BadValuef("format must be txt or csv, got %q", raw)
}

func (k Kind) field() string {
	switch k {
	case KindEmails:
		return eligibility.FieldEmail
	case KindPhones:
		return eligibility.FieldPhone
	default:
		return eligibility.FieldLinkedInURL
	}
}

// dedupKey normalizes a value for duplicate detection: URLs compare
// case-sensitively, emails lowercased, phones by their digits alone.
func (k Kind) dedupKey(value string) string {
	switch k {
	case KindEmails:
		return strings.ToLower(value)
	case KindPhones:
		var b strings.Builder
		for _, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	default:
		return value
	}
}

type Request struct {
	Kind      Kind
	Format    Format
	Threshold float64
	Limit     int // 0 means unlimited
}

// Stream writes the projected column of every eligible lead to w, skipping
// blanks and duplicates, until the set is exhausted or Limit values were
// written. Returns the number of values written.
func Stream(ctx context.Context, g rowstore.Gateway, req Request, w io.Writer) (int, error) {
	field := req.Kind.field()
	seen := make(map[string]struct{})

	var cw *csv.Writer
	if req.Format == FormatCSV {
		cw = csv.NewWriter(w)
		if err := cw.Write([]string{"value"}); err != nil {
			return 0, err
		}
	}

	written := 0
	err := g.SelectAllPaged(ctx, eligibility.TableLeads, rowstore.SelectOptions{
		FilterByFormula: eligibility.Formula(req.Threshold),
		Fields:          []string{field},
		Sort:            eligibility.Sort(),
	}, func(rec rowstore.Record) (bool, error) {
		value := strings.TrimSpace(rec.Str(field))
		if value == "" {
			return true, nil
		}
		key := req.Kind.dedupKey(value)
		if key == "" {
			return true, nil
		}
		if _, dup := seen[key]; dup {
			return true, nil
		}
		seen[key] = struct{}{}

		if cw != nil {
			if err := cw.Write([]string{value}); err != nil {
				return false, err
			}
		} else {
			if _, err := fmt.Fprintln(w, value); err != nil {
				return false, err
			}
		}
		written++
		return req.Limit == 0 || written < req.Limit, nil
	})
	if cw != nil {
		cw.Flush()
		if err == nil {
			err = cw.Error()
		}
	}
	return written, err
}
