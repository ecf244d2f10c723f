package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	gojson "github.com/goccy/go-json"

	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/models"
	"github.com/movinesta/swipe-ingest/internal/ratelimit"
)

const (
	testUser    = "5b0e7c1a-3d2f-4e6a-9b8c-7d6e5f4a3b2c"
	testSession = "6f1c2d7e-8a9b-4c3d-9e0f-112233445566"
	testMedia   = "0a1b2c3d-4e5f-4a6b-8c7d-8e9fa0b1c2d3"
	testDeck    = "11111111-2222-4333-8444-555555555555"
	testReq     = "99999999-8888-4777-8666-555555555555"
)

func clientID(n int) string {
	return fmt.Sprintf("c0000000-0000-4000-8000-%012d", n)
}

// memWriter is an in-process EventWriter with the same conflict semantics
// as the events table: first write wins per (user, dedupe key, day).
type memWriter struct {
	mu        sync.Mutex
	rows      map[string]models.EventRow
	order     []string
	failRow   func(models.EventRow) error
	panicBulk bool
	bulkCalls int
	rowCalls  int
}

func newMemWriter() *memWriter {
	return &memWriter{rows: make(map[string]models.EventRow)}
}

func (w *memWriter) InsertEvents(_ context.Context, rows []models.EventRow) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bulkCalls++
	if w.panicBulk {
		panic("boom")
	}
	if w.failRow != nil {
		for _, r := range rows {
			if err := w.failRow(r); err != nil {
				return nil, err
			}
		}
	}
	var keys []string
	for _, r := range rows {
		if w.put(r) {
			keys = append(keys, r.DedupeKey)
		}
	}
	return keys, nil
}

func (w *memWriter) InsertEvent(_ context.Context, row models.EventRow) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rowCalls++
	if w.failRow != nil {
		if err := w.failRow(row); err != nil {
			return false, err
		}
	}
	return w.put(row), nil
}

func (w *memWriter) put(r models.EventRow) bool {
	k := r.UserID + "|" + r.DedupeKey + "|" + r.DayBucket.Format("2006-01-02")
	if _, ok := w.rows[k]; ok {
		return false
	}
	w.rows[k] = r
	w.order = append(w.order, k)
	return true
}

func (w *memWriter) all() []models.EventRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.EventRow, 0, len(w.order))
	for _, k := range w.order {
		out = append(out, w.rows[k])
	}
	return out
}

type staticSettings config.Settings

func (s staticSettings) Current(context.Context) (config.Settings, error) {
	return config.Settings(s), nil
}

func newTestIngestor(w EventWriter, lim ratelimit.Limiter) *Ingestor {
	return New(w, lim, staticSettings(config.DefaultSettings()), nil)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := gojson.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func item(events ...map[string]any) map[string]any {
	anyEvents := make([]any, len(events))
	for i, e := range events {
		anyEvents[i] = e
	}
	return map[string]any{
		"sessionId":   testSession,
		"mediaItemId": testMedia,
		"events":      anyEvents,
	}
}

func countIssues(issues []models.Issue, code string) int {
	n := 0
	for _, is := range issues {
		if is.Code == code {
			n++
		}
	}
	return n
}
