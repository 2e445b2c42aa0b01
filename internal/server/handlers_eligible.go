package server

import (
	"net/http"

	"github.com/user/topleads/internal/batch"
)

const defaultPreviewPageSize = 50

func (s *Server) handleEligible(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	page, present, err := intParam(r, "page")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if !present {
		page = 1
	}
	pageSize, present, err := pageSizeParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if !present {
		pageSize = defaultPreviewPageSize
	}
	override, err := thresholdParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	res, err := s.machine.PreviewEligible(r.Context(), t, batch.PreviewRequest{
		Page:              page,
		PageSize:          pageSize,
		ThresholdOverride: override,
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.PreviewResult
	}{true, res})
}

func (s *Server) handleEligibleCount(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	limit, _, err := pageSizeParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	override, err := thresholdParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	res, err := s.machine.CountEligible(r.Context(), t, override, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		batch.CountResult
	}{true, res})
}

// handleEligibleAll serves the legacy contract: the eligible set as a bare
// JSON array, no envelope.
func (s *Server) handleEligibleAll(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	override, err := thresholdParam(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	items, err := s.machine.EligibleAll(r.Context(), t, override)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
