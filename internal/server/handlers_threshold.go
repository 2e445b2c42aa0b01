package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/threshold"
)

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	v, err := threshold.New(t.Store).Get(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := map[string]any{"ok": true, "value": nil, "recordId": v.RecordID}
	if v.Value != nil {
		resp["value"] = *v.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutThreshold(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	raw, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := validateBody(raw, thresholdBodySchema); err != nil {
		s.writeErr(w, r, err)
		return
	}
	var body struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		s.writeErr(w, r, apperr.BadValuef("decoding body: %v", err))
		return
	}

	v, err := threshold.New(t.Store).Put(r.Context(), body.Value)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "value": *v.Value, "recordId": v.RecordID})
}

func (s *Server) handleGetLastExport(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	at, err := threshold.New(t.Store).LastExport(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := map[string]any{"ok": true, "at": nil}
	if at != nil {
		resp["at"] = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePutLastExport stamps the export time by hand. The body's "at" takes an
// RFC3339 string or epoch milliseconds; an empty body means now.
func (s *Server) handlePutLastExport(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	raw, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	at := time.Now()
	if len(raw) > 0 {
		if err := validateBody(raw, exportLastBodySchema); err != nil {
			s.writeErr(w, r, err)
			return
		}
		var body struct {
			At json.RawMessage `json:"at"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			s.writeErr(w, r, apperr.BadValuef("decoding body: %v", err))
			return
		}
		if len(body.At) > 0 {
			at, err = parseAt(body.At)
			if err != nil {
				s.writeErr(w, r, err)
				return
			}
		}
	}

	mark, err := threshold.New(t.Store).MarkExported(r.Context(), at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"at":       mark.At.Format(time.RFC3339),
		"recordId": mark.RecordID,
		"field":    mark.Field,
	})
}

func parseAt(raw json.RawMessage) (time.Time, error) {
	var iso string
	if err := json.Unmarshal(raw, &iso); err == nil {
		at, err := time.Parse(time.RFC3339, iso)
		if err != nil {
			return time.Time{}, apperr.BadValuef("at must be an RFC3339 timestamp, got %q", iso)
		}
		return at, nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)), nil
	}
	return time.Time{}, apperr.BadValuef("at must be a timestamp string or epoch milliseconds, got %s", strconv.Quote(string(raw)))
}
