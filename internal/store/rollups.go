package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/movinesta/swipe-ingest/internal/models"
)

// AddRollup adds one sampled request to its hourly bucket and issue counts
// in a single transaction.
func (p *PostgresStore) AddRollup(ctx context.Context, r models.IngestRollup) (err error) {
	ctx, span := startSpan(ctx, "store.AddRollup")
	defer func() { endSpan(span, err) }()

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO swipe_ingest_hourly_health
				(bucket_start, requests, accepted_events, rejected_events, retry_events, likes, dislikes, sample_rate, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (bucket_start) DO UPDATE
			SET requests        = swipe_ingest_hourly_health.requests + EXCLUDED.requests,
			    accepted_events = swipe_ingest_hourly_health.accepted_events + EXCLUDED.accepted_events,
			    rejected_events = swipe_ingest_hourly_health.rejected_events + EXCLUDED.rejected_events,
			    retry_events    = swipe_ingest_hourly_health.retry_events + EXCLUDED.retry_events,
			    likes           = swipe_ingest_hourly_health.likes + EXCLUDED.likes,
			    dislikes        = swipe_ingest_hourly_health.dislikes + EXCLUDED.dislikes,
			    sample_rate     = EXCLUDED.sample_rate,
			    updated_at      = now()
		`, r.BucketStart, r.Requests, r.Accepted, r.Rejected, r.Retry, r.Likes, r.Dislikes, r.SampleRate)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for code, n := range r.Issues {
			if n <= 0 {
				continue
			}
			batch.Queue(`
				INSERT INTO swipe_ingest_hourly_issue_counts (bucket_start, code, count)
				VALUES ($1, $2, $3)
				ON CONFLICT (bucket_start, code) DO UPDATE
				SET count = swipe_ingest_hourly_issue_counts.count + EXCLUDED.count
			`, r.BucketStart, code, n)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// IngestHealth returns hourly rows newer than since, newest first, and the
// topN issue codes summed over the same window. topN <= 0 returns every code.
func (p *PostgresStore) IngestHealth(ctx context.Context, since time.Time, topN int) (hourly []models.HourlyHealth, issues []models.IssueTotal, err error) {
	ctx, span := startSpan(ctx, "store.IngestHealth")
	defer func() { endSpan(span, err) }()

	rows, err := p.pool.Query(ctx, `
		SELECT bucket_start, requests, accepted_events, rejected_events, retry_events,
		       likes, dislikes, sample_rate, updated_at
		FROM swipe_ingest_hourly_health
		WHERE bucket_start >= $1
		ORDER BY bucket_start DESC
	`, since)
	if err != nil {
		return nil, nil, err
	}
	hourly, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.HourlyHealth, error) {
		var h models.HourlyHealth
		err := row.Scan(&h.BucketStart, &h.Requests, &h.Accepted, &h.Rejected, &h.Retry,
			&h.Likes, &h.Dislikes, &h.SampleRate, &h.UpdatedAt)
		h.ComputeRates()
		return h, err
	})
	if err != nil {
		return nil, nil, err
	}

	rows, err = p.pool.Query(ctx, `
		SELECT code, SUM(count)::bigint AS total
		FROM swipe_ingest_hourly_issue_counts
		WHERE bucket_start >= $1
		GROUP BY code
		ORDER BY total DESC, code
		LIMIT $2
	`, since, issueLimit(topN))
	if err != nil {
		return nil, nil, err
	}
	issues, err = pgx.CollectRows(rows, pgx.RowToStructByPos[models.IssueTotal])
	if err != nil {
		return nil, nil, err
	}
	return hourly, issues, nil
}

// issueLimit maps a non-positive topN to LIMIT NULL, which Postgres treats
// as no limit.
func issueLimit(topN int) *int {
	if topN <= 0 {
		return nil
	}
	return &topN
}
