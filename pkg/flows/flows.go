// Package flows provides the concrete Flow implementations shipped with
// xeda: synthesis and simulation adapters around real EDA tool CLIs,
// each registering itself with pkg/flow's static registry from an
// init() func (§9).
package flows

// settingsFloat reads a float64 out of a merged settings map; a missing
// key or a value of a non-numeric type yields def.
func settingsFloat(m map[string]interface{}, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

func settingsString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func settingsBool(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func settingsStringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
