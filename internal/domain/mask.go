package domain

import "strings"

// MaskString hides the first half of a sensitive value, keeping enough of
// the tail for a human to recognize it. The split counts characters, not
// bytes, so multibyte values are never cut mid-rune.
func MaskString(value string) string {
	runes := []rune(value)
	limit := len(runes) / 2
	return strings.Repeat("*", limit) + string(runes[limit:])
}

// MaskFieldValues returns a copy of fields with string values under the
// given key paths masked. Paths address nested mappings with "__"
// separators (for example "card__number"); list elements under a masked
// path are masked individually.
func MaskFieldValues(fields map[string]any, paths []string) map[string]any {
	unpacked := make([][]string, 0, len(paths))
	for _, path := range paths {
		parts := []string{}
		for _, part := range strings.Split(path, "__") {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			unpacked = append(unpacked, parts)
		}
	}
	return maskMap(fields, unpacked)
}

func maskMap(data map[string]any, paths [][]string) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		masked, rest := matchMaskKey(paths, key)
		out[key] = maskValue(value, masked, rest)
	}
	return out
}

func maskValue(value any, masked bool, rest [][]string) any {
	switch typed := value.(type) {
	case string:
		if masked {
			return MaskString(typed)
		}
		return typed
	case map[string]any:
		return maskMap(typed, rest)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = maskValue(item, masked, rest)
		}
		return out
	default:
		return value
	}
}

// matchMaskKey reports whether key is a terminal masked field at this depth
// and collects the remaining paths that descend through it.
func matchMaskKey(paths [][]string, key string) (bool, [][]string) {
	masked := false
	var rest [][]string
	for _, path := range paths {
		if path[0] != key {
			continue
		}
		if len(path) == 1 {
			masked = true
			continue
		}
		rest = append(rest, path[1:])
	}
	return masked, rest
}
