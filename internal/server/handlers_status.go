package server

import "net/http"

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"enabled": s.cfg.Enabled,
		"env":     s.cfg.AppEnv,
		"commit":  s.cfg.GitCommit,
		"branch":  s.cfg.GitBranch,
	})
}
