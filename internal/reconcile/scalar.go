package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractScalar collapses a possibly corrupted stored value into one scalar.
//
// Arrays yield their first element whose trimmed string form is non-empty,
// comma-joined strings yield their first non-empty part, and anything else
// passes through unchanged. A value with nothing usable in it yields nil.
// Applying ExtractScalar to its own result returns the same result.
func ExtractScalar(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range v {
			if picked := ExtractScalar(trimString(item)); !isBlank(picked) {
				return picked
			}
		}
		return nil
	case []string:
		for _, item := range v {
			if picked := ExtractScalar(strings.TrimSpace(item)); !isBlank(picked) {
				return picked
			}
		}
		return nil
	case string:
		if !strings.Contains(v, ",") {
			return v
		}
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				return trimmed
			}
		}
		return nil
	default:
		return v
	}
}

// ScalarString is ExtractScalar rendered as a string; nil becomes "".
func ScalarString(value any) string {
	return stringify(ExtractScalar(value))
}

func trimString(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	return strings.TrimSpace(stringify(value)) == ""
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// stringList reads a selection set that may have been stored as an array,
// a JSON-encoded array string, or a comma-joined string.
func stringList(value any) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(item string) {
		item = strings.TrimSpace(item)
		if item == "" {
			return
		}
		if _, ok := seen[item]; ok {
			return
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}

	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		for _, item := range v {
			add(item)
		}
	case []any:
		for _, item := range v {
			add(stringify(item))
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return stringList(decoded)
			}
		}
		for _, part := range strings.Split(trimmed, ",") {
			add(part)
		}
	default:
		add(stringify(v))
	}
	return out
}
