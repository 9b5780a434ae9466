package runtime

import "path"

// pathFields are the event keys treated as resource locators and scrubbed
// against the redaction globs.
var pathFields = map[string]bool{
	"uri":         true,
	"path":        true,
	"file":        true,
	"artifact":    true,
	"example_uri": true,
}

// RedactPath returns the empty string when the path matches any glob,
// otherwise the path unchanged.
func RedactPath(p string, globs []string) string {
	for _, g := range globs {
		if ok, err := path.Match(g, p); err == nil && ok {
			return ""
		}
	}
	return p
}

// RedactEvent scrubs locator-valued fields recursively, returning a copy.
// Non-locator fields pass through untouched.
func RedactEvent(event map[string]any, globs []string) map[string]any {
	out := make(map[string]any, len(event))
	for k, v := range event {
		switch val := v.(type) {
		case string:
			if pathFields[k] {
				out[k] = RedactPath(val, globs)
			} else {
				out[k] = val
			}
		case map[string]any:
			out[k] = RedactEvent(val, globs)
		case []any:
			items := make([]any, len(val))
			for i, item := range val {
				if m, ok := item.(map[string]any); ok {
					items[i] = RedactEvent(m, globs)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = val
		}
	}
	return out
}
