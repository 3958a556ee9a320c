// Package rewrite locates the public tenant identifier inside inbound
// paths and substitutes the internal chatflow id before forwarding.
//
// The search is position-based and best-effort: the upstream API's URL
// shapes are not uniform, so the identifier is expected at a small number
// of canonical segment positions rather than described per route. A miss
// leaves the path untouched.
package rewrite

import (
	"strings"

	"github.com/google/uuid"

	"github.com/widgetgate/widgetgate/pkg/registry"
)

// Candidate segment positions for the identifier, counted without the
// leading slash ("/api/v1/<resource>/<identifier>/..." puts it at index 3,
// two-level resources at index 4).
var candidatePositions = []int{3, 4}

// Rewriter resolves identifiers found in paths against the tenant table.
type Rewriter struct {
	registry *registry.Handle
}

// NewRewriter creates a Rewriter reading tenants through the given handle.
func NewRewriter(h *registry.Handle) *Rewriter {
	return &Rewriter{registry: h}
}

// IsUUID reports whether the segment already has the internal id's native
// shape. UUID-shaped segments are never treated as identifiers.
func IsUUID(segment string) bool {
	_, err := uuid.Parse(segment)
	return err == nil
}

// Rewrite inspects the full inbound path (never a mount-stripped one,
// since prefix stripping would destroy the identifier). When a candidate
// segment resolves to a tenant, it is replaced with the chatflow id and
// the rebuilt path is returned along with the entry. On no match the
// original path comes back unchanged with a nil entry; the request then
// either 404s naturally or is proxied unmodified.
func (rw *Rewriter) Rewrite(path string) (string, *registry.Entry) {
	rooted := strings.HasPrefix(path, "/")
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	for _, pos := range candidatePositions {
		if pos >= len(segments) {
			continue
		}
		candidate := segments[pos]
		if candidate == "" || IsUUID(candidate) {
			continue
		}

		entry, err := rw.registry.Get().Lookup(candidate)
		if err != nil {
			continue
		}

		segments[pos] = entry.ChatflowID
		rebuilt := strings.Join(segments, "/")
		if rooted {
			rebuilt = "/" + rebuilt
		}
		return rebuilt, entry
	}

	return path, nil
}

// TrailingIdentifier returns the final non-UUID path segment, which by
// this gateway's convention names the tenant. Empty when every trailing
// segment is UUID-shaped.
func TrailingIdentifier(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == "" || IsUUID(segments[i]) {
			continue
		}
		return segments[i]
	}
	return ""
}
