package models

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestParseEventType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want EventType
		ok   bool
	}{
		{"like", EventLike, true},
		{"  LIKE ", EventLike, true},
		{"open", EventDetailOpen, true},
		{"seen", EventDetailClose, true},
		{"watchlist_remove", EventWatchlistRemove, true},
		{"superlike", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseEventType(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ParseEventType(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestIngestItem_EntriesInlineAndBatch(t *testing.T) {
	t.Parallel()

	var inline IngestItem
	if err := json.Unmarshal([]byte(`{"sessionId":"s","mediaItemId":"m","eventType":"like"}`), &inline); err != nil {
		t.Fatalf("unmarshal inline: %v", err)
	}
	if entries, _ := inline.Entries(); len(entries) != 1 {
		t.Errorf("expected 1 inline entry, got %d", len(entries))
	}

	var batch IngestItem
	if err := json.Unmarshal([]byte(`{"sessionId":"s","mediaItemId":"m","events":[{"eventType":"like"},{"eventType":"skip"}]}`), &batch); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if entries, _ := batch.Entries(); len(entries) != 2 {
		t.Errorf("expected 2 batch entries, got %d", len(entries))
	}

	var empty IngestItem
	if entries, _ := empty.Entries(); len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestIngestItem_EntriesSkipsNonObjects(t *testing.T) {
	t.Parallel()

	var it IngestItem
	if err := json.Unmarshal([]byte(`{"events":[{"eventType":"like"},5,null,{"eventType":"skip"}]}`), &it); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entries, bad := it.Entries()
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
	if len(bad) != 2 || bad[0] != 1 || bad[1] != 2 {
		t.Errorf("expected bad indexes [1 2], got %v", bad)
	}
}

func TestDayBucketOf(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2026, 3, 2, 2, 30, 0, 0, loc)
	got := DayBucketOf(in)
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DayBucketOf = %v, want %v", got, want)
	}
}

func TestNewIngestResponse_EncodesEmptyLists(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(NewIngestResponse("r1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"ok":true,"requestId":"r1","acceptedClientEventIds":[],"rejectedClientEventIds":[],"retryClientEventIds":[],"shouldRetry":false,"issues":[]}`
	if string(b) != want {
		t.Errorf("got %s\nwant %s", b, want)
	}
}
