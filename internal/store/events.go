package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/movinesta/swipe-ingest/internal/models"
)

const eventColumns = `user_id, session_id, media_item_id, event_type, deck_id, rec_request_id,
	position, served_dedupe_key, source, dwell_ms, rating_0_10, in_watchlist, payload,
	client_event_id, dedupe_key, day_bucket, created_at`

const eventColumnCount = 17

func eventArgs(r models.EventRow) ([]any, error) {
	var payload []byte
	if r.Payload != nil {
		b, err := gojson.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		payload = b
	}
	return []any{
		r.UserID, r.SessionID, r.MediaItemID, string(r.EventType), r.DeckID, r.RecRequestID,
		r.Position, r.ServedDedupeKey, r.Source, r.DwellMs, r.Rating0To10, r.InWatchlist, payload,
		r.ClientEventID, r.DedupeKey, r.DayBucket, r.CreatedAt,
	}, nil
}

// InsertEvents writes all rows in one statement. Rows whose
// (user_id, dedupe_key, day_bucket) already exists are skipped, so the
// first write of a logical event wins. The statement is atomic; the
// returned keys are those of the rows actually written.
func (p *PostgresStore) InsertEvents(ctx context.Context, rows []models.EventRow) (_ []string, err error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ctx, span := startSpan(ctx, "store.InsertEvents", attribute.Int("rows", len(rows)))
	defer func() { endSpan(span, err) }()

	var sb strings.Builder
	sb.WriteString("INSERT INTO media_events (")
	sb.WriteString(eventColumns)
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*eventColumnCount)
	for i, r := range rows {
		rowArgs, err := eventArgs(r)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range rowArgs {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j+1)
		}
		sb.WriteByte(')')
		args = append(args, rowArgs...)
	}
	sb.WriteString(" ON CONFLICT (user_id, dedupe_key, day_bucket) DO NOTHING RETURNING dedupe_key")

	rs, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rs, pgx.RowTo[string])
}

// InsertEvent writes a single row with the same conflict rule as
// InsertEvents and reports whether it was new.
func (p *PostgresStore) InsertEvent(ctx context.Context, row models.EventRow) (inserted bool, err error) {
	ctx, span := startSpan(ctx, "store.InsertEvent")
	defer func() { endSpan(span, err) }()

	args, err := eventArgs(row)
	if err != nil {
		return false, err
	}
	// RETURNING 1 yields no row when the conflict rule skipped the insert.
	var one int
	err = p.pool.QueryRow(ctx, `
		INSERT INTO media_events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (user_id, dedupe_key, day_bucket) DO NOTHING
		RETURNING 1
	`, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
