package details

// RewriteStrings walks a decoded JSON document and offers every string leaf
// to transform along with the nearest map key above it (array elements
// inherit their parent's key). When transform reports ok the leaf is
// replaced; otherwise it is left untouched. The walk is total: every nested
// object and array is visited regardless of depth. Maps and slices are
// rewritten in place; the (possibly replaced) document is returned.
func RewriteStrings(doc any, transform func(key, value string) (string, bool)) any {
	return rewrite("", doc, transform)
}

func rewrite(key string, v any, transform func(key, value string) (string, bool)) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = rewrite(k, child, transform)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = rewrite(key, child, transform)
		}
		return t
	case string:
		if replaced, ok := transform(key, t); ok {
			return replaced
		}
		return t
	default:
		return v
	}
}
