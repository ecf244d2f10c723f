package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	gojson "github.com/goccy/go-json"
)

var jsonNull = []byte("null")

// isAbsent treats a missing field and an explicit null the same way.
func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, jsonNull)
}

// rawString returns the decoded string, or ok=false for any other JSON type.
func rawString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := gojson.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// rawNumber parses a JSON number. Literals that overflow float64 are
// reported as non-finite rather than failing the decode.
func rawNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && math.IsInf(f, 0) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

func rawBool(raw json.RawMessage) (bool, bool) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// rawPreview renders a raw value for issue metadata, capped in size.
func rawPreview(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	if s, ok := rawString(raw); ok {
		return truncate(s, 128)
	}
	return truncate(string(bytes.TrimSpace(raw)), 128)
}
