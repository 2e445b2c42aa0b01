package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

type routeEntry struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

func (s *Server) routeList() []routeEntry {
	var routes []routeEntry
	chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeEntry{Method: method, Path: strings.TrimSuffix(route, "/")})
		return nil
	})
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// handleMeta is a human-facing index of the API. simple=1 drops the markup
// for terminals.
func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	routes := s.routeList()

	if boolParam(r, "simple") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, rt := range routes {
			fmt.Fprintf(w, "%-6s %s\n", rt.Method, rt.Path)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<!doctype html><html><head><title>top-scoring-leads API</title></head><body>")
	fmt.Fprint(w, "<h1>top-scoring-leads API</h1><table><tr><th>Method</th><th>Path</th></tr>")
	for _, rt := range routes {
		fmt.Fprintf(w, "<tr><td>%s</td><td><code>%s</code></td></tr>", rt.Method, rt.Path)
	}
	fmt.Fprintf(w, "</table><p>See <a href=%q>parameter catalog</a>.</p></body></html>", BasePath+"/_meta/params")
}

type paramEntry struct {
	Name   string `json:"name"`
	In     string `json:"in"`
	Type   string `json:"type"`
	Routes string `json:"routes"`
	Notes  string `json:"notes"`
}

var paramCatalog = []paramEntry{
	{"x-client-id", "header", "string", "all", "tenant identifier; highest precedence"},
	{"clientId", "query", "string", "all", "tenant identifier"},
	{"testClient", "query", "string", "all", "legacy tenant identifier"},
	{"page", "query", "int", "/eligible", "1-based page number"},
	{"pageSize", "query", "int", "/eligible, /batch/*", "1..200; limit is an alias"},
	{"limit", "query", "int", "/eligible/count, /export", "soft cap on returned rows"},
	{"threshold", "query", "number", "/eligible*, /batch/select*, /export", "per-request score threshold override"},
	{"all", "query", "bool", "/batch/select, /batch/current", "select or read the whole set"},
	{"mode", "query", "string", "/batch/select", "mode=all is equivalent to all=1"},
	{"append", "query", "bool", "/batch/select", "keep the current batch and add to it"},
	{"replace", "query", "bool", "/batch/select", "explicit replace; conflicts with append"},
	{"type", "query", "string", "/export", "linkedin | emails | phones"},
	{"format", "query", "string", "/export", "txt | csv"},
	{"download", "query", "bool", "/export", "attachment disposition; lifts the copy limit"},
	{"simple", "query", "bool", "/_meta", "plain-text route list"},
	{"value", "body", "number", "PUT /threshold", "clamped to 0..1000"},
	{"recordIds", "body", "[]string", "/batch/select, /batch/finalize", "1..200 record identifiers"},
	{"at", "body", "string|number", "PUT /export/last", "RFC3339 or epoch milliseconds; defaults to now"},
}

func (s *Server) handleMetaParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "params": paramCatalog})
}

func (s *Server) handleDebugRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "routes": s.routeList()})
}
