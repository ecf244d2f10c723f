package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/movinesta/swipe-ingest/internal/models"
)

// MediaCategories returns the kind of each known media item. Unknown ids
// are absent from the map.
func (p *PostgresStore) MediaCategories(ctx context.Context, mediaIDs []string) (_ map[string]string, err error) {
	out := make(map[string]string, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}
	ctx, span := startSpan(ctx, "store.MediaCategories", attribute.Int("ids", len(mediaIDs)))
	defer func() { endSpan(span, err) }()

	rows, err := p.pool.Query(ctx, `
		SELECT id::text, kind
		FROM media_items
		WHERE id = ANY($1::uuid[])
	`, mediaIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, err
		}
		out[id] = kind
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertDiaryStatus(ctx context.Context, userID, mediaID string, status models.DiaryStatus, category string, at time.Time) (err error) {
	ctx, span := startSpan(ctx, "store.UpsertDiaryStatus")
	defer func() { endSpan(span, err) }()

	_, err = p.pool.Exec(ctx, `
		INSERT INTO library_entries (user_id, title_id, status, content_type, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (user_id, title_id) DO UPDATE
		SET status = EXCLUDED.status,
		    content_type = COALESCE(EXCLUDED.content_type, library_entries.content_type),
		    updated_at = EXCLUDED.updated_at
	`, userID, mediaID, string(status), category, at)
	return err
}

// SetWatchlist adds a want_to_watch entry without downgrading an existing
// status, or removes the entry.
func (p *PostgresStore) SetWatchlist(ctx context.Context, userID, mediaID string, inWatchlist bool, category string, at time.Time) (err error) {
	ctx, span := startSpan(ctx, "store.SetWatchlist", attribute.Bool("in_watchlist", inWatchlist))
	defer func() { endSpan(span, err) }()

	if !inWatchlist {
		_, err = p.pool.Exec(ctx, `
			DELETE FROM library_entries
			WHERE user_id = $1 AND title_id = $2
		`, userID, mediaID)
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO library_entries (user_id, title_id, status, content_type, updated_at)
		VALUES ($1, $2, 'want_to_watch', NULLIF($3, ''), $4)
		ON CONFLICT (user_id, title_id) DO NOTHING
	`, userID, mediaID, category, at)
	return err
}

func (p *PostgresStore) UpsertRating(ctx context.Context, userID, mediaID string, rating float64, category string, at time.Time) (err error) {
	ctx, span := startSpan(ctx, "store.UpsertRating")
	defer func() { endSpan(span, err) }()

	_, err = p.pool.Exec(ctx, `
		INSERT INTO ratings (user_id, title_id, rating, content_type, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (user_id, title_id) DO UPDATE
		SET rating = EXCLUDED.rating,
		    content_type = COALESCE(EXCLUDED.content_type, ratings.content_type),
		    updated_at = EXCLUDED.updated_at
	`, userID, mediaID, rating, category, at)
	return err
}
