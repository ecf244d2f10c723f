package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/movinesta/swipe-ingest/internal/models"
)

const (
	userA  = "5b0e7c1a-3d2f-4e6a-9b8c-7d6e5f4a3b2c"
	mediaA = "0a1b2c3d-4e5f-4a6b-8c7d-8e9fa0b1c2d3"
)

func row(clientID, dedupeKey string, day time.Time) models.EventRow {
	return models.EventRow{
		UserID:        userA,
		MediaItemID:   mediaA,
		EventType:     models.EventLike,
		ClientEventID: clientID,
		DedupeKey:     dedupeKey,
		DayBucket:     models.DayBucketOf(day),
		CreatedAt:     day,
	}
}

func TestMemoryInsertFirstWriteWins(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	keys, err := m.InsertEvents(ctx, []models.EventRow{row("c1", "k1", day), row("c2", "k1", day)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if diff := cmp.Diff([]string{"k1"}, keys); diff != "" {
		t.Errorf("inserted keys mismatch (-want +got):\n%s", diff)
	}
	inserted, err := m.InsertEvent(ctx, row("c3", "k1", day.Add(time.Hour)))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted {
		t.Error("expected conflicting row to report not inserted")
	}
	events := m.Events(userA)
	if len(events) != 1 || events[0].ClientEventID != "c1" {
		t.Fatalf("expected only the first write, got %+v", events)
	}

	// Same key on the next day is a new row.
	if inserted, err := m.InsertEvent(ctx, row("c4", "k1", day.Add(24*time.Hour))); err != nil || !inserted {
		t.Fatalf("expected next-day row inserted, got %v %v", inserted, err)
	}
	if got := len(m.Events(userA)); got != 2 {
		t.Errorf("expected 2 rows across days, got %d", got)
	}
}

func TestMemoryBulkFailureIsAtomic(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	m.FailEvents(func(r models.EventRow) error {
		if r.ClientEventID == "bad" {
			return &pgconn.PgError{Code: "23514"}
		}
		return nil
	})
	day := time.Now()

	_, err := m.InsertEvents(context.Background(), []models.EventRow{row("ok", "k1", day), row("bad", "k2", day)})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23514" {
		t.Fatalf("expected check violation, got %v", err)
	}
	if got := len(m.Events(userA)); got != 0 {
		t.Errorf("expected no rows after failed bulk, got %d", got)
	}
}

func TestMemoryLabelsUnion(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	key := "req:1:" + mediaA

	_ = m.MergeLabels(ctx, userA, key, []string{models.LabelOpened})
	_ = m.MergeLabels(ctx, userA, key, []string{models.LabelPositive, models.LabelOpened})

	want := []string{models.LabelOpened, models.LabelPositive}
	if diff := cmp.Diff(want, m.Labels(userA, key)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryWatchlistDoesNotDowngradeStatus(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = m.UpsertDiaryStatus(ctx, userA, mediaA, models.DiaryWatched, "movie", now)
	_ = m.SetWatchlist(ctx, userA, mediaA, true, "movie", now)

	e, ok := m.Diary(userA, mediaA)
	if !ok || e.Status != models.DiaryWatched {
		t.Errorf("expected watched to survive watchlist add, got %+v", e)
	}

	_ = m.SetWatchlist(ctx, userA, mediaA, false, "", now)
	if _, ok := m.Diary(userA, mediaA); ok {
		t.Error("expected watchlist remove to delete the entry")
	}
}

func TestMemoryIngestHealth(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	h1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h2 := h1.Add(time.Hour)

	_ = m.AddRollup(ctx, models.IngestRollup{BucketStart: h1, Requests: 1, Accepted: 3, Rejected: 1, SampleRate: 0.1,
		Issues: map[string]int{models.CodeBadInput: 1}})
	_ = m.AddRollup(ctx, models.IngestRollup{BucketStart: h2, Requests: 1, Accepted: 2, Retry: 2, SampleRate: 0.1,
		Issues: map[string]int{models.CodeDBRetry: 2, models.CodeBadInput: 1}})
	_ = m.AddRollup(ctx, models.IngestRollup{BucketStart: h2, Requests: 1, SampleRate: 0.1})

	hourly, issues, err := m.IngestHealth(ctx, h1, 1)
	if err != nil {
		t.Fatalf("IngestHealth: %v", err)
	}
	if len(hourly) != 2 || !hourly[0].BucketStart.Equal(h2) {
		t.Fatalf("expected newest bucket first, got %+v", hourly)
	}
	if hourly[0].Requests != 2 {
		t.Errorf("expected 2 requests in newest bucket, got %d", hourly[0].Requests)
	}
	if hourly[0].RetryRate == nil || *hourly[0].RetryRate != 0.5 {
		t.Errorf("expected retry rate 0.5, got %v", hourly[0].RetryRate)
	}
	want := []models.IssueTotal{{Code: models.CodeBadInput, Count: 2}}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}

	// A non-positive topN returns every code.
	_, issues, _ = m.IngestHealth(ctx, h1, 0)
	want = []models.IssueTotal{{Code: models.CodeBadInput, Count: 2}, {Code: models.CodeDBRetry, Count: 2}}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Errorf("unlimited issues mismatch (-want +got):\n%s", diff)
	}

	hourly, _, _ = m.IngestHealth(ctx, h2.Add(time.Hour), 12)
	if len(hourly) != 0 {
		t.Errorf("expected empty window, got %d rows", len(hourly))
	}
}

func TestMemorySettings(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	m.PutSetting("a", []byte(`1`))

	got, err := m.LoadSettings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if len(got) != 1 || string(got["a"]) != "1" {
		t.Errorf("unexpected settings %v", got)
	}
}
