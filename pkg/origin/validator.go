// Package origin decides whether a request's Origin header is permitted
// for a tenant. Pure functions, no state.
package origin

import "github.com/widgetgate/widgetgate/pkg/registry"

// Allowed reports whether the given Origin header value may access the
// tenant. An empty origin (same-origin or non-browser caller) is always
// allowed. Tenants flagged unreachable are always denied, including their
// own listed origins.
func Allowed(origin string, entry *registry.Entry) bool {
	if entry == nil || entry.Unreachable {
		return false
	}
	if origin == "" {
		return true
	}
	_, ok := entry.AllowedOrigins[origin]
	return ok
}

// AllowedAny reports whether the origin is in the given set, with the same
// empty-origin rule. Used for assets shared across tenants.
func AllowedAny(origin string, origins map[string]struct{}) bool {
	if origin == "" {
		return true
	}
	_, ok := origins[origin]
	return ok
}
