package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/user/topleads/internal/probe"
)

// handleSanityCheck probes the tenant's base for the tables and columns the
// engine needs. Admin-only: a deployment without a configured secret keeps it
// closed.
func (s *Server) handleSanityCheck(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "admin bearer token required", "UNAUTHORIZED")
		return
	}
	t, ok := s.tenantOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, probe.Run(r.Context(), t.Store))
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AdminSecret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminSecret)) == 1
}
