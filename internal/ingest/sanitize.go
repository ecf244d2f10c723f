package ingest

import (
	"encoding/json"
	"math"
	"sort"
	"unicode/utf8"

	gojson "github.com/goccy/go-json"

	"github.com/movinesta/swipe-ingest/internal/models"
)

const (
	maxPayloadArray  = 50
	maxPayloadKeys   = 64
	maxPayloadString = 1024
)

// SanitizePayload decodes an untrusted payload and reduces it to a shallow
// object: top-level primitives, arrays of primitives (capped), and nested
// objects flattened to their primitive fields. Anything that is not a JSON
// object yields nil.
func SanitizePayload(raw json.RawMessage) models.Payload {
	if isAbsent(raw) {
		return nil
	}
	var v any
	if err := gojson.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return Sanitize(v)
}

// Sanitize is SanitizePayload for an already decoded value.
func Sanitize(v any) models.Payload {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(models.Payload, min(len(obj), maxPayloadKeys))
	for _, k := range sortedKeys(obj) {
		if len(out) >= maxPayloadKeys {
			break
		}
		switch val := obj[k].(type) {
		case []any:
			arr := make([]any, 0, min(len(val), maxPayloadArray))
			for _, el := range val {
				if len(arr) >= maxPayloadArray {
					break
				}
				if p, ok := primitive(el); ok {
					arr = append(arr, p)
				}
			}
			out[k] = arr
		case map[string]any:
			flat := make(map[string]any)
			for _, nk := range sortedKeys(val) {
				if len(flat) >= maxPayloadKeys {
					break
				}
				if p, ok := primitive(val[nk]); ok {
					flat[nk] = p
				}
			}
			out[k] = flat
		default:
			if p, ok := primitive(val); ok {
				out[k] = p
			}
		}
	}
	return out
}

// primitive keeps strings (truncated), finite numbers and booleans.
func primitive(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return truncate(x, maxPayloadString), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return x, true
	case int, int64, uint64:
		return x, true
	case bool:
		return x, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
