package refs

// Contains reports whether doc structurally contains query, following
// PostgreSQL jsonb @> rules: objects match on a subset of keys, every
// element of a query array must be contained in some element of the
// document array, and scalars compare by value.
func Contains(doc, query any) bool {
	switch q := query.(type) {
	case map[string]any:
		d, ok := doc.(map[string]any)
		if !ok {
			return false
		}
		for k, qv := range q {
			dv, ok := d[k]
			if !ok || !Contains(dv, qv) {
				return false
			}
		}
		return true
	case []any:
		d, ok := doc.([]any)
		if !ok {
			return false
		}
		for _, qe := range q {
			found := false
			for _, de := range d {
				if Contains(de, qe) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return doc == query
	}
}
