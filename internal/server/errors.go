package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/user/topleads/internal/apperr"
)

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// statusFor maps an error code to its HTTP status. Partial writes report 500:
// the caller must inspect succeeded/failed and recover via reset.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeTenantMissing, apperr.CodeTenantUnknown, apperr.CodeBadValue:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeFeatureDisabled:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders any error as the JSON error envelope. Coded errors keep
// their message; everything else is reported as a store failure without
// leaking internals to the client.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	if e == nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nobody reads this response.
			writeError(w, http.StatusInternalServerError, "request canceled", string(apperr.CodeStoreFatal))
			return
		}
		slog.Error("unhandled error", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "row store operation failed", string(apperr.CodeStoreFatal))
		return
	}

	status := statusFor(e.Code)
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", e.Code, "err", err)
	}

	body := map[string]any{"error": e.Message, "code": e.Code}
	if len(e.Succeeded) > 0 || len(e.Failed) > 0 {
		body["succeeded"] = e.Succeeded
		body["failed"] = e.Failed
	}
	writeJSON(w, status, body)
}
