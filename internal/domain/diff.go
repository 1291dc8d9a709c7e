package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// FieldChange holds the stringified before/after values of one field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// DiffOptions restricts and sanitizes which fields a diff reports.
type DiffOptions struct {
	// IncludeFields, when non-empty, limits the diff to the listed fields.
	IncludeFields []string
	// ExcludeFields removes fields from the diff after inclusion filtering.
	ExcludeFields []string
	// MaskFields lists fields whose values are masked in the recorded diff.
	MaskFields []string
}

// DiffFields computes the per-field differences between two field mappings.
// Either side may be nil: a create diffs from nothing, a delete diffs to
// nothing. Values are compared and recorded in stringified form. Returns nil
// when no tracked field changed.
func DiffFields(before, after map[string]any, opts DiffOptions) map[string]FieldChange {
	names := map[string]struct{}{}
	for name := range before {
		names[name] = struct{}{}
	}
	for name := range after {
		names[name] = struct{}{}
	}

	diff := map[string]FieldChange{}
	for name := range names {
		if len(opts.IncludeFields) > 0 && !slices.Contains(opts.IncludeFields, name) {
			continue
		}
		if slices.Contains(opts.ExcludeFields, name) {
			continue
		}

		oldValue := stringifyFieldValue(before[name])
		newValue := stringifyFieldValue(after[name])
		if oldValue == newValue {
			continue
		}

		if slices.Contains(opts.MaskFields, name) {
			oldValue = MaskString(oldValue)
			newValue = MaskString(newValue)
		}
		diff[name] = FieldChange{Old: oldValue, New: newValue}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}

func stringifyFieldValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}
