package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractString walks the candidate paths in priority order and returns the
// first present, non-empty string value. Paths use dot notation
// ("trade.maker.address"). Third-party payloads disagree on field names, so
// callers list every spelling they have observed.
func ExtractString(record map[string]interface{}, paths ...string) (string, bool) {
	for _, path := range paths {
		value, ok := lookupPath(record, path)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v, true
			}
		case json.Number:
			return v.String(), true
		case float64:
			return formatNumber(v), true
		case int64:
			return fmt.Sprintf("%d", v), true
		case bool:
			return fmt.Sprintf("%t", v), true
		}
	}
	return "", false
}

// ExtractInt returns the first present candidate coerced to int64. String
// values holding decimal integers are accepted; anything else is skipped.
func ExtractInt(record map[string]interface{}, paths ...string) (int64, bool) {
	for _, path := range paths {
		value, ok := lookupPath(record, path)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, true
			}
		case float64:
			return int64(v), true
		case int64:
			return v, true
		case int:
			return int64(v), true
		case string:
			var n int64
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// lookupPath resolves a dot-separated path against nested maps.
func lookupPath(record map[string]interface{}, path string) (interface{}, bool) {
	current := interface{}(record)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
