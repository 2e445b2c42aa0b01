package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/user/topleads/internal/export"
	"github.com/user/topleads/internal/threshold"
)

// handleExport streams one column of the eligible set. The copy path is
// capped; download=1 lifts the cap and attaches a filename. A successful
// export stamps the tenant's export timestamp.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}

	kind := export.KindLinkedIn
	if raw, present := queryFirst(r, "type"); present {
		var err error
		kind, err = export.ParseKind(raw)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	rawFormat, _ := queryFirst(r, "format")
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	download := boolParam(r, "download")

	limit, present, err := intParam(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if !present {
		limit = export.DefaultCopyLimit
		if download {
			limit = 0
		}
	}

	th := 0.0
	override, err := thresholdParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if override != nil {
		th = *override
	} else {
		v, err := threshold.New(t.Store).Get(r.Context())
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		if v.Value != nil {
			th = *v.Value
		}
	}

	// Exports are bounded, so buffering keeps the status line honest when the
	// store fails mid-read.
	var buf bytes.Buffer
	n, err := export.Stream(r.Context(), t.Store, export.Request{
		Kind:      kind,
		Format:    format,
		Threshold: th,
		Limit:     limit,
	}, &buf)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	if _, err := threshold.New(t.Store).MarkExported(r.Context(), time.Now()); err != nil {
		// The export itself succeeded; a stale timestamp is not worth a 500.
		slog.Warn("export timestamp write failed", "tenant", t.ID, "err", err)
	}

	contentType := "text/plain; charset=utf-8"
	ext := "txt"
	if format == export.FormatCSV {
		contentType = "text/csv; charset=utf-8"
		ext = "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Total-Count", strconv.Itoa(n))
	if download {
		name := fmt.Sprintf("top-leads-%s-%s.%s", kind, time.Now().UTC().Format("20060102"), ext)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
