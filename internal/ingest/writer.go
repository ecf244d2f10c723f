package ingest

import (
	"context"

	"github.com/movinesta/swipe-ingest/internal/logger"
	"github.com/movinesta/swipe-ingest/internal/metrics"
	"github.com/movinesta/swipe-ingest/internal/models"
)

// EventWriter persists raw event rows idempotently. Conflicts on
// (user_id, dedupe_key, day_bucket) must be ignored, not reported.
// InsertEvents returns the dedupe keys of the rows it actually wrote, one
// entry per written row; InsertEvent reports whether its row was written.
type EventWriter interface {
	InsertEvents(ctx context.Context, rows []models.EventRow) ([]string, error)
	InsertEvent(ctx context.Context, row models.EventRow) (bool, error)
}

// RowFailure is a row that could not be written on its own.
type RowFailure struct {
	Row      models.EventRow
	Class    FailureClass
	SQLState string
	Err      error
}

// WriteResult partitions the rows handed to BatchWriter.Write.
// Accepted holds every durable row, including rows that already existed;
// Inserted is the subset written by this call.
type WriteResult struct {
	Accepted []models.EventRow
	Inserted []models.EventRow
	Failed   []RowFailure
	BulkErr  error
}

// BatchWriter writes a request's rows in one statement and falls back to
// a serial row-by-row replay when that statement fails.
type BatchWriter struct {
	store EventWriter
	log   *logger.Logger
}

func NewBatchWriter(store EventWriter, log *logger.Logger) *BatchWriter {
	if log == nil {
		log = logger.Nop()
	}
	return &BatchWriter{store: store, log: log}
}

func (w *BatchWriter) Write(ctx context.Context, rows []models.EventRow) WriteResult {
	var res WriteResult
	if len(rows) == 0 {
		return res
	}

	keys, err := w.store.InsertEvents(ctx, rows)
	if err == nil {
		res.Accepted = rows
		res.Inserted = freshRows(rows, keys)
		return res
	}

	res.BulkErr = err
	metrics.BulkFallbacks.Inc()
	w.log.Warn("bulk insert failed, replaying rows", "rows", len(rows), "error", err)

	// Replay stays serial within a request.
	for _, row := range rows {
		inserted, err := w.store.InsertEvent(ctx, row)
		if err != nil {
			class, state := Classify(err)
			res.Failed = append(res.Failed, RowFailure{Row: row, Class: class, SQLState: state, Err: err})
			continue
		}
		res.Accepted = append(res.Accepted, row)
		if inserted {
			res.Inserted = append(res.Inserted, row)
		}
	}
	return res
}

// freshRows picks the rows matching the written keys. Rows sharing a key
// inside one batch claim it in submission order, so only the first counts.
func freshRows(rows []models.EventRow, keys []string) []models.EventRow {
	if len(keys) == 0 {
		return nil
	}
	written := make(map[string]int, len(keys))
	for _, k := range keys {
		written[k]++
	}
	var out []models.EventRow
	for _, r := range rows {
		if written[r.DedupeKey] > 0 {
			written[r.DedupeKey]--
			out = append(out, r)
		}
	}
	return out
}
