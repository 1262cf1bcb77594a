// Package schema cleans JSON-Schema tool parameter definitions before they
// are sent to an upstream, removing fields no upstream accepts universally.
package schema

// maxDepth bounds the recursion so a pathologically (or maliciously) deep
// input schema cannot blow the stack; beyond this depth nested values are
// returned unmodified rather than walked further.
const maxDepth = 64

var fieldsToRemove = []string{"$schema", "title", "examples", "additionalProperties"}

// CleanJSONSchema removes $schema, title, examples, additionalProperties
// from every object reachable through properties/items/nested values, and
// removes "format" specifically from objects whose "type" is "string".
// It is idempotent: cleaning an already-clean schema is a no-op.
func CleanJSONSchema(data any) any {
	return clean(data, 0)
}

func clean(data any, depth int) any {
	if depth >= maxDepth {
		return data
	}

	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))

		isString := v["type"] == "string"

		for key, value := range v {
			if shouldRemove(key, isString) {
				continue
			}
			result[key] = clean(value, depth+1)
		}

		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = clean(item, depth+1)
		}
		return result
	default:
		return v
	}
}

func shouldRemove(key string, isStringType bool) bool {
	if isStringType && key == "format" {
		return true
	}
	for _, f := range fieldsToRemove {
		if key == f {
			return true
		}
	}
	return false
}
