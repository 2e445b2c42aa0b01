package server

import (
	"encoding/json"
	"net/http"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/batch"
)

// selectParams carries everything POST /batch/select and its dry-run twin
// accept. Query flags drive all-mode; a recordIds body switches to explicit
// mode.
func (s *Server) selectParams(r *http.Request) (batch.LockRequest, error) {
	var req batch.LockRequest

	pageSize, _, err := pageSizeParam(r)
	if err != nil {
		return req, err
	}
	req.PageSize = pageSize
	req.AppendExplicit = boolParam(r, "append")
	req.ReplaceExplicit = boolParam(r, "replace")

	req.ThresholdOverride, err = thresholdParam(r)
	if err != nil {
		return req, err
	}

	raw, err := readBody(r)
	if err != nil {
		return req, err
	}
	if len(raw) > 0 {
		if err := validateBody(raw, selectBodySchema); err != nil {
			return req, err
		}
		var body struct {
			RecordIDs []string `json:"recordIds"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return req, apperr.BadValuef("decoding body: %v", err)
		}
		req.RecordIDs = body.RecordIDs
	}

	if len(req.RecordIDs) > 0 {
		if req.AppendExplicit {
			return req, apperr.BadValuef("append does not apply to an explicit record list")
		}
		return req, nil
	}

	all := boolParam(r, "all")
	if mode, _ := queryFirst(r, "mode"); mode == batch.ModeAll {
		all = true
	}
	if !all {
		return req, apperr.BadValuef("nothing to select: pass all=1 or a recordIds body")
	}
	return req, nil
}

func (s *Server) handleSelectBatch(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	req, err := s.selectParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	res, err := s.machine.LockBatch(r.Context(), t, req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.LockResult
	}{true, res})
}

func (s *Server) handleDryRunSelect(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	req, err := s.selectParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	res, err := s.machine.DryRunSelect(r.Context(), t, req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.DryRunResult
	}{true, res})
}

func (s *Server) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	pageSize, _, err := pageSizeParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	res, err := s.machine.CurrentBatch(r.Context(), t, batch.CurrentRequest{
		All:      boolParam(r, "all"),
		PageSize: pageSize,
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.CurrentResult
	}{true, res})
}

func (s *Server) handleFinalizeBatch(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	raw, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var ids []string
	if len(raw) > 0 {
		if err := validateBody(raw, selectBodySchema); err != nil {
			s.writeErr(w, r, err)
			return
		}
		var body struct {
			RecordIDs []string `json:"recordIds"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			s.writeErr(w, r, apperr.BadValuef("decoding body: %v", err))
			return
		}
		ids = body.RecordIDs
	}

	res, err := s.machine.FinalizeBatch(r.Context(), t, ids)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.FinalizeResult
	}{true, res})
}

func (s *Server) handleResetBatch(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	res, err := s.machine.ResetBatch(r.Context(), t)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.ResetResult
	}{true, res})
}
