package migrations

import "sort"

// asObject returns v as a JSON object, or nil when it is anything else.
func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asArray returns v as a JSON array, or nil when it is anything else.
func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// hasString reports whether obj[key] is present and a string.
func hasString(obj map[string]any, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	s, ok := obj[key].(string)
	return s, ok
}

// sortedKeys returns the keys of m in lexical order so that lookups which
// stop at the first match are deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
