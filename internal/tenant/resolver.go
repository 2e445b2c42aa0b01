// Package tenant maps inbound requests to the row-store base of the tenant
// they address.
package tenant

import (
	"net/http"
	"strings"
	"sync"

	"github.com/user/topleads/internal/apperr"
	"github.com/user/topleads/internal/rowstore"
)

const (
	HeaderClientID  = "x-client-id"
	QueryClientID   = "clientId"
	QueryLegacyName = "testClient"
)

// Handle pairs a tenant identifier with its store gateway.
type Handle struct {
	ID    string
	Store rowstore.Gateway
}

// Resolver resolves tenant identifiers against a configured base map. Handles
// are cached for the process lifetime; the map is read-mostly.
type Resolver struct {
	client        *rowstore.Client
	bases         map[string]string
	defaultTenant string
	allowDefault  bool

	mu    sync.RWMutex
	cache map[string]Handle
}

func NewResolver(client *rowstore.Client, bases map[string]string, defaultTenant string, allowDefault bool) *Resolver {
	return &Resolver{
		client:        client,
		bases:         bases,
		defaultTenant: defaultTenant,
		allowDefault:  allowDefault,
		cache:         make(map[string]Handle),
	}
}

// FromRequest picks the tenant identifier with header > query > legacy query
// precedence. When no identifier is present the configured default applies
// only if the deployment explicitly allows it; an identifier that is present
// but unknown never falls back.
func (r *Resolver) FromRequest(req *http.Request) (Handle, error) {
	id := strings.TrimSpace(req.Header.Get(HeaderClientID))
	if id == "" {
		id = strings.TrimSpace(req.URL.Query().Get(QueryClientID))
	}
	if id == "" {
		id = strings.TrimSpace(req.URL.Query().Get(QueryLegacyName))
	}
	if id == "" {
		if !r.allowDefault || r.defaultTenant == "" {
			return Handle{}, apperr.New(apperr.CodeTenantMissing, "no tenant identifier in request")
		}
		id = r.defaultTenant
	}
	return r.Resolve(id)
}

// Resolve returns the handle for an explicit tenant identifier.
func (r *Resolver) Resolve(id string) (Handle, error) {
	r.mu.RLock()
	h, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	baseID, ok := r.bases[id]
	if !ok {
		return Handle{}, apperr.Newf(apperr.CodeTenantUnknown, "unknown tenant %q", id)
	}
	h = Handle{ID: id, Store: r.client.Base(baseID)}

	r.mu.Lock()
	r.cache[id] = h
	r.mu.Unlock()
	return h, nil
}
