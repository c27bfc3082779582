package tools

import "fmt"

// requireString pulls a required, non-empty string argument out of args.
func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

// optString pulls an optional string argument, returning def when absent.
func optString(args map[string]interface{}, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// optBool pulls an optional bool argument, returning def when absent.
func optBool(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// asInt coerces a backend or JSON numeric into an int. JSON decoding yields
// float64; the XML-RPC codec yields int/int64 — tool code must accept all
// three or the legacy-xml adapter's results silently vanish.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// optInt pulls an optional numeric argument, returning def when absent or of
// the wrong type.
func optInt(args map[string]interface{}, key string, def int) int {
	if n, ok := asInt(args[key]); ok {
		return n
	}
	return def
}

// requireIDs pulls a required list of record ids, accepting JSON numbers.
func requireIDs(args map[string]interface{}, key string) ([]int, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be a list of ids", key)
	}
	ids := make([]int, 0, len(raw))
	for _, item := range raw {
		n, ok := asInt(item)
		if !ok {
			return nil, fmt.Errorf("%s must contain only integers", key)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// optStringSlice pulls an optional list-of-strings argument.
func optStringSlice(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// requireDomain pulls the domain argument, defaulting to an empty (match
// everything) prefix-notation expression, and validates it.
func requireDomain(args map[string]interface{}, key string) ([]interface{}, error) {
	v, ok := args[key]
	if !ok {
		return []interface{}{}, nil
	}
	domain, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be a list in prefix notation", key)
	}
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}
	return domain, nil
}

// optMap pulls an optional object argument.
func optMap(args map[string]interface{}, key string) map[string]interface{} {
	if v, ok := args[key]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return map[string]interface{}{}
}

func toInterfaceSlice(ids []int) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
