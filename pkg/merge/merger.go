// Package merge reconciles the locally computed chatbot configuration
// with the one fetched from the upstream service.
package merge

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"

	"github.com/widgetgate/widgetgate/pkg/logging"
)

// Conflict records a key present in both sources with differing values.
// Conflicts are observability only; they never veto the merge.
type Conflict struct {
	Tenant   string
	Key      string
	Local    string
	Upstream string
}

// Merger merges local and upstream configuration objects.
type Merger struct {
	logger logging.Logger
}

// NewMerger creates a Merger.
func NewMerger(logger logging.Logger) *Merger {
	return &Merger{logger: logger.WithModule("merge")}
}

// serialize renders a value for comparison and conflict logging.
func serialize(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// DetectConflicts computes the intersection of both key sets and records
// every shared key whose serialized values differ. Equal values produce no
// conflict.
func (m *Merger) DetectConflicts(local, upstream map[string]interface{}, tenant string) []Conflict {
	var conflicts []Conflict

	for key, localVal := range local {
		upstreamVal, shared := upstream[key]
		if !shared {
			continue
		}

		localSer := serialize(localVal)
		upstreamSer := serialize(upstreamVal)
		if localSer == upstreamSer {
			continue
		}

		m.logger.Warn("Config conflict, local value wins",
			"tenant", tenant, "key", key, "local", localSer, "upstream", upstreamSer)
		conflicts = append(conflicts, Conflict{
			Tenant:   tenant,
			Key:      key,
			Local:    localSer,
			Upstream: upstreamSer,
		})
	}

	return conflicts
}

// Merge returns upstream overlaid by local: local wins on key collision,
// and no key present in either source is ever dropped. The merge happens
// unconditionally regardless of detected conflicts.
func (m *Merger) Merge(local, upstream map[string]interface{}, tenant string) (map[string]interface{}, []Conflict) {
	conflicts := m.DetectConflicts(local, upstream, tenant)

	merged := make(map[string]interface{}, len(local)+len(upstream))
	for key, val := range local {
		merged[key] = val
	}

	// mergo fills in keys absent from the destination without touching
	// existing ones, which is exactly local-precedence.
	if err := mergo.Merge(&merged, upstream); err != nil {
		m.logger.Error("Config merge failed, returning local config",
			"tenant", tenant, "error", err)
		return merged, conflicts
	}

	// Reassert local values: mergo treats zero values as fillable, and
	// local precedence must hold even for falsy local settings.
	for key, val := range local {
		merged[key] = val
	}

	return merged, conflicts
}
