package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/r4rohan/gcevm/internal/stack"
)

// Change is one field-level difference between recorded and desired state.
type Change struct {
	Field string
	Old   string
	New   string
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %s -> %s", c.Field, c.Old, c.New)
}

// Fields excluded from instance change detection: attached disks are managed
// by an external mechanism this reconciler must not fight over, and the
// placeholder metadata key is rewritten by the guest environment.
var instanceIgnoredFields = []string{
	"metadata." + stack.PlaceholderMetadataKey,
	"attached_disks",
}

// Instance fields that cannot be mutated in place; a change forces
// destroy-and-recreate.
var instanceReplaceFields = []string{
	"zone",
	"boot_disk",
	"network_interface.subnetwork",
}

// Instance fields mutable only while the instance is stopped.
var instanceStopFields = []string{
	"machine_type",
}

// Firewall fields that force recreation.
var firewallReplaceFields = []string{
	"direction",
	"network",
}

// diffDesired compares a recorded desired payload against the current one,
// both as flattened JSON, and returns the changed fields. Order inside JSON
// arrays representing sets has been normalized at derivation time, so slice
// comparison is stable.
func diffDesired(kind stack.Kind, recorded json.RawMessage, desired any) ([]Change, error) {
	current, err := json.Marshal(desired)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal desired state: %w", err)
	}

	prev, err := flattenJSON(recorded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded state: %w", err)
	}
	next, err := flattenJSON(current)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]struct{}, len(prev)+len(next))
	for f := range prev {
		fields[f] = struct{}{}
	}
	for f := range next {
		fields[f] = struct{}{}
	}

	var changes []Change
	for field := range fields {
		if ignoredField(kind, field) {
			continue
		}
		oldVal, newVal := prev[field], next[field]
		if oldVal != newVal {
			changes = append(changes, Change{Field: field, Old: displayValue(oldVal), New: displayValue(newVal)})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes, nil
}

func ignoredField(kind stack.Kind, field string) bool {
	if kind != stack.KindInstance {
		return false
	}
	for _, ignored := range instanceIgnoredFields {
		if field == ignored || strings.HasPrefix(field, ignored+".") {
			return true
		}
	}
	return false
}

// requiresReplace reports whether any change hits a field the provider
// cannot mutate in place.
func requiresReplace(kind stack.Kind, changes []Change) bool {
	var fields []string
	switch kind {
	case stack.KindInstance:
		fields = instanceReplaceFields
	case stack.KindFirewall:
		fields = firewallReplaceFields
	default:
		// Addresses and grants are immutable but also have no mutable
		// desired fields; any change at all forces recreation.
		return len(changes) > 0 && (kind == stack.KindAddress || kind == stack.KindGrant)
	}
	return anyFieldMatches(changes, fields)
}

// requiresStop reports whether any change needs the instance stopped first.
func requiresStop(kind stack.Kind, changes []Change) bool {
	if kind != stack.KindInstance {
		return false
	}
	return anyFieldMatches(changes, instanceStopFields)
}

func anyFieldMatches(changes []Change, fields []string) bool {
	for _, c := range changes {
		for _, f := range fields {
			if c.Field == f || strings.HasPrefix(c.Field, f+".") {
				return true
			}
		}
	}
	return false
}

// flattenJSON turns nested JSON into dotted-path -> scalar string pairs.
// Array elements use their index as a path segment.
func flattenJSON(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	flattenValue("", v, out)
	return out, nil
}

func flattenValue(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenValue(joinPath(prefix, k), child, out)
		}
	case []any:
		for i, child := range val {
			flattenValue(joinPath(prefix, fmt.Sprintf("%d", i)), child, out)
		}
	case nil:
		out[prefix] = "null"
	default:
		out[prefix] = fmt.Sprintf("%v", val)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func displayValue(v string) string {
	if v == "" {
		return "(absent)"
	}
	return v
}
