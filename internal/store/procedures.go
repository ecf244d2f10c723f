package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/movinesta/swipe-ingest/internal/fanout"
)

// UpdateTaste calls the recommender's taste-vector procedure. The
// procedure and its vector math live outside this service.
func (p *PostgresStore) UpdateTaste(ctx context.Context, u fanout.TasteUpdate) (err error) {
	ctx, span := startSpan(ctx, "store.UpdateTaste", attribute.String("event_type", string(u.EventType)))
	defer func() { endSpan(span, err) }()

	_, err = p.pool.Exec(ctx, `
		SELECT media_update_taste_vectors_v1($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.UserID, u.SessionID, u.MediaItemID, string(u.EventType), u.DwellMs, u.Rating, u.InWatchlist, u.Strong)
	return err
}

func (p *PostgresStore) RefreshCentroids(ctx context.Context, userID string, k, maxItems int) (err error) {
	ctx, span := startSpan(ctx, "store.RefreshCentroids", attribute.Int("k", k))
	defer func() { endSpan(span, err) }()

	_, err = p.pool.Exec(ctx, `SELECT media_refresh_user_centroids_v1($1, $2, $3)`, userID, k, maxItems)
	return err
}
