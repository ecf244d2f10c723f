package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/movinesta/swipe-ingest/internal/models"
)

// These tests run against a real database when SWIPE_TEST_DB_URL is set.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("SWIPE_TEST_DB_URL")
	if dbURL == "" {
		t.Skip("SWIPE_TEST_DB_URL not set")
	}
	ctx := context.Background()
	st, err := NewPostgresStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return st
}

func TestPostgresInsertIsIdempotent(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()

	user := uuid.NewString()
	now := time.Now().UTC()
	base := models.EventRow{
		UserID:      user,
		SessionID:   uuid.NewString(),
		MediaItemID: uuid.NewString(),
		EventType:   models.EventLike,
		Payload:     models.Payload{"ui": "card"},
		DedupeKey:   "v1|" + uuid.NewString(),
		DayBucket:   models.DayBucketOf(now),
		CreatedAt:   now,
	}
	first, second := base, base
	first.ClientEventID = uuid.NewString()
	second.ClientEventID = uuid.NewString()

	keys, err := st.InsertEvents(ctx, []models.EventRow{first, second})
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if len(keys) != 1 || keys[0] != base.DedupeKey {
		t.Errorf("expected one inserted key, got %v", keys)
	}
	inserted, err := st.InsertEvent(ctx, first)
	if err != nil {
		t.Fatalf("single insert: %v", err)
	}
	if inserted {
		t.Error("expected repeated row to report not inserted")
	}

	var n int
	if err := st.pool.QueryRow(ctx, `SELECT COUNT(*) FROM media_events WHERE user_id = $1`, user).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestPostgresMergeLabelsUnion(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()

	user := uuid.NewString()
	key := uuid.NewString() + ":0:" + uuid.NewString()
	if err := st.MergeLabels(ctx, user, key, []string{models.LabelOpened}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := st.MergeLabels(ctx, user, key, []string{models.LabelPositive, models.LabelOpened}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	var labels []string
	err := st.pool.QueryRow(ctx, `
		SELECT labels FROM rec_outcome_labels WHERE user_id = $1 AND served_dedupe_key = $2
	`, user, key).Scan(&labels)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if diff := cmp.Diff([]string{models.LabelOpened, models.LabelPositive}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestPostgresIngestHealthTopN(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()

	// A bucket far in the future keeps the window free of other rollups.
	bucket := time.Date(2199, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(time.Now().UnixNano()%10000) * time.Hour)
	codes := map[string]int{"A_" + uuid.NewString(): 3, "B_" + uuid.NewString(): 2, "C_" + uuid.NewString(): 1}
	if err := st.AddRollup(ctx, models.IngestRollup{BucketStart: bucket, Requests: 1, Accepted: 1, SampleRate: 1, Issues: codes}); err != nil {
		t.Fatalf("add rollup: %v", err)
	}

	_, issues, err := st.IngestHealth(ctx, bucket, 1)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if len(issues) != 1 || issues[0].Count != 3 {
		t.Errorf("expected only the top code, got %+v", issues)
	}

	_, issues, err = st.IngestHealth(ctx, bucket, 0)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if len(issues) != 3 {
		t.Errorf("expected every code with topN 0, got %+v", issues)
	}
}
