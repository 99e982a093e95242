package llmjson

// ExtractList pulls a list payload out of a parsed value. Models asked for
// {"key": [...]} variously return exactly that, a bare array, or the array
// under a key of their own invention; all three shapes are accepted. The
// single-unknown-key fallback applies only when the object has exactly one
// key, so a multi-key object missing the expected key is rejected rather
// than guessed at.
func ExtractList(parsed any, key string) ([]any, bool) {
	switch v := parsed.(type) {
	case []any:
		return v, true
	case map[string]any:
		if raw, ok := v[key]; ok {
			arr, isArr := raw.([]any)
			return arr, isArr
		}
		if len(v) == 1 {
			for _, raw := range v {
				if arr, isArr := raw.([]any); isArr {
					return arr, true
				}
			}
		}
	}
	return nil, false
}

// StringItems returns the string members of items, dropping everything else.
func StringItems(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
