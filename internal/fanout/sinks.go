package fanout

import (
	"context"
	"time"

	"github.com/movinesta/swipe-ingest/internal/models"
)

// TasteUpdate is one interaction fed into the user's taste vector.
type TasteUpdate struct {
	UserID      string
	SessionID   string
	MediaItemID string
	EventType   models.EventType
	DwellMs     *int
	Rating      *float64
	InWatchlist *bool
	Strong      bool
}

// TasteSink updates learned taste state. Calls may fail silently from the
// caller's point of view: errors are logged and counted, never surfaced.
type TasteSink interface {
	UpdateTaste(ctx context.Context, u TasteUpdate) error
	RefreshCentroids(ctx context.Context, userID string, k, maxItems int) error
}

// LabelSink merges outcome labels into the set recorded for one serving.
// Implementations must union, never replace.
type LabelSink interface {
	MergeLabels(ctx context.Context, userID, servedKey string, labels []string) error
}

// DiaryStore holds the derived library projections. Every write is a
// last-write-wins upsert keyed by (user, media item).
type DiaryStore interface {
	MediaCategories(ctx context.Context, mediaIDs []string) (map[string]string, error)
	UpsertDiaryStatus(ctx context.Context, userID, mediaID string, status models.DiaryStatus, category string, at time.Time) error
	SetWatchlist(ctx context.Context, userID, mediaID string, inWatchlist bool, category string, at time.Time) error
	UpsertRating(ctx context.Context, userID, mediaID string, rating float64, category string, at time.Time) error
}

// RollupStore accumulates sampled ingest health counters per hour.
type RollupStore interface {
	AddRollup(ctx context.Context, r models.IngestRollup) error
}
