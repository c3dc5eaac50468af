// Copyright 2025 Certen Protocol
//
// Canonical JSON encoding shared by the job-key fingerprinting in
// internal/proverdata. Deterministic key order, stable formatting — a
// simplified RFC8785-like approach.

package commitment

import (
	"encoding/json"
	"sort"
)

// CanonicalizeJSON re-encodes raw with map keys sorted and arrays left in
// their original order, so two semantically equal inputs with different
// key order serialize to identical bytes.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(sortKeys(v))
}

func sortKeys(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = sortKeys(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return vv
	}
}
