package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/movinesta/swipe-ingest/internal/models"
)

const (
	maxWriteKeyLen  = 256
	payloadHashSize = 12
	writeKeyVersion = "v1"
)

// WriteKeyInput is everything that makes two events the same logical event.
// The client event id is deliberately not part of it.
type WriteKeyInput struct {
	SessionID   string
	MediaItemID string
	EventType   models.EventType
	DeckID      *string
	Position    *int
	InWatchlist *bool
	Rating      *float64
	DwellMs     *int
	Payload     models.Payload
}

// BuildWriteKey derives the idempotency key for a row. Keys longer than
// maxWriteKeyLen are shortened with a digest suffix of the full key, so
// the cap never makes two distinct keys collide in practice.
func BuildWriteKey(in WriteKeyInput) string {
	parts := []string{
		writeKeyVersion,
		in.SessionID,
		in.MediaItemID,
		string(in.EventType),
		strOrDash(in.DeckID),
		intOrDash(in.Position),
		boolOrDash(in.InWatchlist),
		floatOrDash(in.Rating),
		intOrDash(in.DwellMs),
		PayloadHash(in.Payload),
	}
	key := strings.Join(parts, "|")
	if len(key) <= maxWriteKeyLen {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	suffix := "#" + hex.EncodeToString(sum[:16])
	return key[:maxWriteKeyLen-len(suffix)] + suffix
}

// PayloadHash is the hex of the first 12 bytes of SHA-256 over the
// canonical JSON of p (object keys sorted).
func PayloadHash(p models.Payload) string {
	var b []byte
	if p == nil {
		b = []byte("null")
	} else {
		var err error
		b, err = gojson.Marshal(p)
		if err != nil {
			// Sanitized payloads only hold primitives; fall back to a stable form.
			b = []byte(fmt.Sprintf("%v", map[string]any(p)))
		}
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:payloadHashSize])
}

// BuildServedKey identifies one served recommendation slot.
func BuildServedKey(requestID string, position int, contentID string) string {
	return requestID + ":" + strconv.Itoa(position) + ":" + contentID
}

// ParseServedKey splits a served key built by BuildServedKey.
func ParseServedKey(key string) (requestID string, position int, contentID string, ok bool) {
	parts := strings.Split(strings.TrimSpace(key), ":")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", 0, "", false
	}
	pos, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", false
	}
	return parts[0], pos, parts[2], true
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func intOrDash(i *int) string {
	if i == nil {
		return "-"
	}
	return strconv.Itoa(*i)
}

func boolOrDash(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}

func floatOrDash(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
