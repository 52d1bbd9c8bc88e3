package textutil

import "strings"

// NormalizeStringMap trims keys and values and drops entries whose key trims
// to empty. Returns nil when nothing survives, so callers can omit the map
// entirely, e.g. for PSP metadata.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(value)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
