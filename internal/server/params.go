package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/config"
)

// queryFirst returns the first named query parameter that is present and
// non-blank.
func queryFirst(r *http.Request, names ...string) (string, bool) {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

// intParam parses the first present parameter among names. Reports present =
// false when none is set.
func intParam(r *http.Request, names ...string) (int, bool, error) {
	raw, ok := queryFirst(r, names...)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, apperr.BadValuef("%s must be an integer, got %q", names[0], raw)
	}
	return v, true, nil
}

// pageSizeParam reads pageSize with its limit alias.
func pageSizeParam(r *http.Request) (int, bool, error) {
	return intParam(r, "pageSize", "limit")
}

// thresholdParam reads the optional threshold override.
func thresholdParam(r *http.Request) (*float64, error) {
	raw, ok := queryFirst(r, "threshold")
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.BadValuef("threshold must be a number, got %q", raw)
	}
	return &v, nil
}

// boolParam applies the relaxed boolean grammar shared with the environment.
func boolParam(r *http.Request, name string) bool {
	return config.Bool(r.URL.Query().Get(name))
}
