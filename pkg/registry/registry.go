// Package registry holds the tenant table: identifier to chatflow id
// resolution, per-tenant origin allow-lists, and per-tenant OAuth
// parameters. A Registry is immutable once built; hot reload builds a new
// one and swaps it atomically through a Handle.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/logging"
)

// Entry represents a registered tenant
type Entry struct {
	Identifier     string              // Canonical case as configured
	ChatflowID     string              // Upstream internal id
	AllowedOrigins map[string]struct{} // Origin allow-list
	Unreachable    bool                // True when the origin list contained "*"
	Debug          *bool               // Tri-state debug override
	OAuth          *OAuthEntry         // Nil when the tenant has no OAuth block
}

// NotFoundError is returned when an identifier resolves to no tenant.
// It names the missing identifier for caller-facing diagnostics.
type NotFoundError struct {
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tenant not found: %s", e.Identifier)
}

// ErrNoServableTenants is returned when registration yields an empty table.
var ErrNoServableTenants = fmt.Errorf("no servable tenants configured")

// Registry is the immutable tenant table, keyed by canonical identifier.
type Registry struct {
	entries map[string]*Entry
}

// New builds a Registry from tenant configuration. Entries lacking an
// identifier or chatflow id are logged and skipped. Identifiers that are
// case-insensitively equal union their origin sets under the first
// entry's canonical case. An entry whose origins contain "*" stays in the
// table for diagnostics but is flagged unreachable and must never be
// served. An empty final table is a fatal configuration error.
func New(tenants []config.TenantConfig, defaultRedirectURI string, logger logging.Logger) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry)}

	for _, t := range tenants {
		if t.Identifier == "" || t.ChatflowID == "" {
			logger.Warn("Skipping invalid tenant entry",
				"identifier", t.Identifier, "chatflow_id", t.ChatflowID)
			continue
		}

		entry := r.find(t.Identifier)
		if entry == nil {
			entry = &Entry{
				Identifier:     t.Identifier,
				ChatflowID:     t.ChatflowID,
				AllowedOrigins: make(map[string]struct{}),
				Debug:          t.Debug,
			}
			if t.OAuth != nil {
				entry.OAuth = newOAuthEntry(t.OAuth, defaultRedirectURI)
			}
			r.entries[entry.Identifier] = entry
		}

		for _, origin := range t.AllowedOrigins {
			if origin == "*" {
				// Fail safe, not open: the tenant stays visible to Lookup
				// for diagnostics but no origin is ever allowed.
				entry.Unreachable = true
				logger.Warn("Tenant disabled: wildcard origin is forbidden",
					"identifier", t.Identifier)
				continue
			}
			entry.AllowedOrigins[origin] = struct{}{}
		}
	}

	if len(r.entries) == 0 {
		return nil, ErrNoServableTenants
	}

	return r, nil
}

// find returns the entry matching the identifier, exact match first, then
// a case-insensitive scan. Nil when absent.
func (r *Registry) find(identifier string) *Entry {
	if entry, ok := r.entries[identifier]; ok {
		return entry
	}
	for _, entry := range r.entries {
		if strings.EqualFold(entry.Identifier, identifier) {
			return entry
		}
	}
	return nil
}

// Lookup resolves an identifier to its tenant entry. Returns a
// NotFoundError naming the identifier when no tenant matches.
func (r *Registry) Lookup(identifier string) (*Entry, error) {
	if entry := r.find(identifier); entry != nil {
		return entry, nil
	}
	return nil, &NotFoundError{Identifier: identifier}
}

// OAuthLookup returns the tenant's OAuth config. ErrNotConfigured is
// distinct from tenant-not-found: a tenant may legitimately carry no OAuth
// block.
func (r *Registry) OAuthLookup(identifier string) (*OAuthEntry, error) {
	entry, err := r.Lookup(identifier)
	if err != nil {
		return nil, err
	}
	if entry.OAuth == nil {
		return nil, ErrNotConfigured
	}
	return entry.OAuth, nil
}

// Identifiers returns all canonical identifiers, sorted.
func (r *Registry) Identifiers() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllOrigins returns the union of all reachable tenants' allowed origins.
// Used to gate the shared widget loader asset.
func (r *Registry) AllOrigins() map[string]struct{} {
	origins := make(map[string]struct{})
	for _, entry := range r.entries {
		if entry.Unreachable {
			continue
		}
		for origin := range entry.AllowedOrigins {
			origins[origin] = struct{}{}
		}
	}
	return origins
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	return len(r.entries)
}
