package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
)

// EventType is the closed set of swipe interaction kinds.
type EventType string

const (
	EventImpression      EventType = "impression"
	EventDetailOpen      EventType = "detail_open"
	EventDetailClose     EventType = "detail_close"
	EventDwell           EventType = "dwell"
	EventLike            EventType = "like"
	EventDislike         EventType = "dislike"
	EventSkip            EventType = "skip"
	EventWatchlist       EventType = "watchlist"
	EventWatchlistAdd    EventType = "watchlist_add"
	EventWatchlistRemove EventType = "watchlist_remove"
	EventRating          EventType = "rating"
	EventRatingSet       EventType = "rating_set"
	EventShare           EventType = "share"
)

var eventTypes = map[EventType]struct{}{
	EventImpression: {}, EventDetailOpen: {}, EventDetailClose: {}, EventDwell: {},
	EventLike: {}, EventDislike: {}, EventSkip: {}, EventWatchlist: {},
	EventWatchlistAdd: {}, EventWatchlistRemove: {}, EventRating: {},
	EventRatingSet: {}, EventShare: {},
}

// legacy client names still seen in the wild.
var eventTypeAliases = map[string]EventType{
	"open": EventDetailOpen,
	"seen": EventDetailClose,
}

func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

// ParseEventType trims, lower-cases and resolves legacy aliases.
func ParseEventType(s string) (EventType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := eventTypeAliases[s]; ok {
		return alias, true
	}
	t := EventType(s)
	return t, t.Valid()
}

// IsWatchlist reports whether t toggles watchlist membership.
func (t EventType) IsWatchlist() bool {
	return t == EventWatchlist || t == EventWatchlistAdd || t == EventWatchlistRemove
}

// IsRating reports whether t sets a numeric rating.
func (t EventType) IsRating() bool {
	return t == EventRating || t == EventRatingSet
}

// IngestRequest is the POST body in batch form. A body without "items" is
// decoded as a single IngestItem. Items stay raw so one malformed element
// does not fail its siblings.
type IngestRequest struct {
	Items []json.RawMessage `json:"items"`
}

// IngestItem groups the events a client produced for one content item.
// Fields are kept raw so type errors stay local to the item or event that
// carries them instead of failing the whole body.
type IngestItem struct {
	SessionID         json.RawMessage   `json:"sessionId,omitempty"`
	MediaItemID       json.RawMessage   `json:"mediaItemId,omitempty"`
	DeckID            json.RawMessage   `json:"deckId,omitempty"`
	RecRequestID      json.RawMessage   `json:"recRequestId,omitempty"`
	RecRequestIDSnake json.RawMessage   `json:"rec_request_id,omitempty"`
	Position          json.RawMessage   `json:"position,omitempty"`
	DedupeKey         json.RawMessage   `json:"dedupeKey,omitempty"`
	DedupeKeySnake    json.RawMessage   `json:"dedupe_key,omitempty"`
	Source            json.RawMessage   `json:"source,omitempty"`
	Events            []json.RawMessage `json:"events,omitempty"`

	// Inline single-event form.
	EventEntry
}

// Entries returns the batch events, or the inline event when no batch was
// sent. Batch elements that are not event objects are skipped and their
// indexes returned in bad.
func (it IngestItem) Entries() (entries []EventEntry, bad []int) {
	if it.Events != nil {
		for i, raw := range it.Events {
			var e EventEntry
			if err := gojson.Unmarshal(raw, &e); err != nil || !isObject(raw) {
				bad = append(bad, i)
				continue
			}
			entries = append(entries, e)
		}
		return entries, bad
	}
	if len(it.EventEntry.EventType) == 0 {
		return nil, nil
	}
	return []EventEntry{it.EventEntry}, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// EventEntry is one client interaction event as received on the wire.
type EventEntry struct {
	EventType     json.RawMessage `json:"eventType,omitempty"`
	DwellMs       json.RawMessage `json:"dwellMs,omitempty"`
	Rating0To10   json.RawMessage `json:"rating0_10,omitempty"`
	InWatchlist   json.RawMessage `json:"inWatchlist,omitempty"`
	ClientEventID json.RawMessage `json:"clientEventId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Payload is a sanitized, shallow event payload.
type Payload map[string]any

// EventRow is one persisted row of the raw event log.
type EventRow struct {
	UserID          string
	SessionID       string
	MediaItemID     string
	EventType       EventType
	DeckID          *string
	RecRequestID    *string
	Position        *int
	ServedDedupeKey *string
	Source          *string
	DwellMs         *int
	Rating0To10     *float64
	InWatchlist     *bool
	Payload         Payload
	ClientEventID   string
	DedupeKey       string
	DayBucket       time.Time
	CreatedAt       time.Time

	// Synthetic marks the dwell row emitted for a diary "watched" transition.
	Synthetic bool
}

// DayBucketOf truncates t to its UTC calendar day.
func DayBucketOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
