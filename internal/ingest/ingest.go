// Package ingest turns swipe interaction batches into durable raw event
// rows and a per-event accepted/rejected/retry verdict.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/logger"
	"github.com/movinesta/swipe-ingest/internal/metrics"
	"github.com/movinesta/swipe-ingest/internal/models"
	"github.com/movinesta/swipe-ingest/internal/ratelimit"
)

var tracer = otel.Tracer("github.com/movinesta/swipe-ingest/internal/ingest")

var errNotObject = errors.New("body must be a JSON object")

// SettingsSource yields the current runtime knobs. An error is advisory:
// the returned Settings are always usable.
type SettingsSource interface {
	Current(ctx context.Context) (config.Settings, error)
}

// Result is everything the transport layer needs after one request.
type Result struct {
	Response   models.IngestResponse
	RetryAfter time.Duration
	// Batch is the post-response work unit; never nil.
	Batch *models.AcceptedBatch
}

// Ingestor runs the synchronous part of the pipeline: parse, validate,
// rate limit, write, respond.
type Ingestor struct {
	validator *Validator
	writer    *BatchWriter
	limiter   ratelimit.Limiter
	settings  SettingsSource
	log       *logger.Logger
	now       func() time.Time
}

func New(store EventWriter, limiter ratelimit.Limiter, settings SettingsSource, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestor{
		validator: NewValidator(),
		writer:    NewBatchWriter(store, log),
		limiter:   limiter,
		settings:  settings,
		log:       log,
		now:       time.Now,
	}
}

type pendingEvent struct {
	item  ItemContext
	entry models.EventEntry
	id    string
}

// Ingest handles one request body for an authenticated user. It never
// returns an error: every failure is folded into the response envelope.
func (in *Ingestor) Ingest(ctx context.Context, userID string, body []byte) (res Result) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest")
	defer span.End()

	started := in.now()
	requestID := uuid.NewString()
	resp := models.NewIngestResponse(requestID)
	var ids []string

	log := in.log.With("request_id", requestID, "user_id", userID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("ingest panic", "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			resp = models.NewIngestResponse(requestID)
			resp.RetryClientEventIDs = append(resp.RetryClientEventIDs, ids...)
			resp.ShouldRetry = true
			resp.Issues = append(resp.Issues, models.Issue{
				Level:   models.LevelError,
				Code:    models.CodeUnexpected,
				Message: "unexpected error; retry the whole batch",
			})
			res = Result{Response: resp, Batch: newBatch(requestID, userID, started, resp, nil, nil)}
			metrics.IngestRequests.WithLabelValues("unexpected").Inc()
		}
		observe(res.Response, started, in.now())
		span.SetAttributes(
			attribute.Int("ingest.accepted", len(res.Response.AcceptedClientEventIDs)),
			attribute.Int("ingest.rejected", len(res.Response.RejectedClientEventIDs)),
			attribute.Int("ingest.retry", len(res.Response.RetryClientEventIDs)),
		)
	}()

	items, decodeIssues, err := decodeBody(body)
	if err != nil {
		resp.Issues = append(resp.Issues, models.Issue{
			Level:   models.LevelError,
			Code:    models.CodeBadJSON,
			Message: "request body is not valid JSON: " + err.Error(),
		})
		metrics.IngestRequests.WithLabelValues("bad_json").Inc()
		return Result{Response: resp, Batch: newBatch(requestID, userID, started, resp, nil, nil)}
	}

	settings := config.DefaultSettings()
	if in.settings != nil {
		if settings, err = in.settings.Current(ctx); err != nil {
			log.Warn("settings unavailable, using last known values", "error", err)
		}
	}

	resp.Issues = append(resp.Issues, decodeIssues...)

	seen := make(map[string]struct{})
	var pending []pendingEvent
	for _, bi := range items {
		i, it := bi.index, bi.item
		ic, issues := in.validator.ValidateItem(i, it)
		resp.Issues = append(resp.Issues, issues...)

		entries, bad := it.Entries()
		for _, j := range bad {
			resp.Issues = append(resp.Issues, models.Issue{
				Level:   models.LevelError,
				Code:    models.CodeBadInput,
				Message: "event is not an object",
				Meta:    map[string]any{"item": i, "event": j},
			})
		}
		if len(entries) == 0 && len(bad) == 0 {
			resp.Issues = append(resp.Issues, models.Issue{
				Level:   models.LevelWarn,
				Code:    models.CodeBadInput,
				Message: "item carries no events",
				Meta:    map[string]any{"item": i},
			})
			continue
		}
		for _, e := range entries {
			id, issue := in.validator.ClientEventID(e.ClientEventID, seen)
			if issue != nil {
				resp.Issues = append(resp.Issues, *issue)
			}
			ids = append(ids, id)
			pending = append(pending, pendingEvent{item: ic, entry: e, id: id})
		}
	}
	span.SetAttributes(attribute.Int("ingest.events", len(pending)))

	if len(pending) == 0 {
		metrics.IngestRequests.WithLabelValues("ok").Inc()
		return Result{Response: resp, Batch: newBatch(requestID, userID, started, resp, nil, nil)}
	}

	// A batch larger than the whole per-minute budget is admitted up to the
	// budget; the tail goes back for retry and is never validated or written.
	var deferred int
	if per := settings.SwipeEventsPerMinute; per > 0 && len(pending) > per {
		deferred = len(pending) - per
		pending = pending[:per]
	}

	if retryAfter, limited := in.checkRateLimit(ctx, log, userID, len(pending), settings.SwipeEventsPerMinute); limited {
		resp.RetryClientEventIDs = append(resp.RetryClientEventIDs, ids...)
		resp.ShouldRetry = true
		resp.Issues = append(resp.Issues, models.Issue{
			Level:   models.LevelWarn,
			Code:    models.CodeRateLimit,
			Message: "rate limit exceeded; retry later",
			Meta:    map[string]any{"retryAfterSeconds": int(math.Ceil(retryAfter.Seconds()))},
		})
		metrics.IngestRequests.WithLabelValues("rate_limited").Inc()
		return Result{Response: resp, RetryAfter: retryAfter, Batch: newBatch(requestID, userID, started, resp, nil, nil)}
	}

	var retryAfter time.Duration
	if deferred > 0 {
		retryAfter = time.Minute
		resp.Issues = append(resp.Issues, models.Issue{
			Level:   models.LevelWarn,
			Code:    models.CodeRateLimit,
			Message: "batch exceeds the per-minute budget; retry the remaining events later",
			Meta: map[string]any{
				"retryAfterSeconds": int(retryAfter.Seconds()),
				"admitted":          len(pending),
				"deferred":          deferred,
			},
		})
		log.Warn("oversized batch truncated", "admitted", len(pending), "deferred", deferred)
	}

	status := make(map[string]string, len(pending))
	diary := make(map[string][]models.DiaryOp)
	var rows []models.EventRow
	for _, p := range pending {
		out := in.validator.ValidateEvent(EventInput{
			Item:             p.item,
			Entry:            p.entry,
			ClientEventID:    p.id,
			UserID:           userID,
			SyntheticDwellMs: settings.SyntheticDwellMs,
			Now:              started,
		})
		if out.Reject != nil {
			status[p.id] = statusRejected
			resp.Issues = append(resp.Issues, *out.Reject)
			continue
		}
		if len(out.Diary) > 0 {
			diary[p.id] = out.Diary
		}
		if out.Row == nil {
			status[p.id] = statusAccepted
			continue
		}
		rows = append(rows, *out.Row)
	}

	wr := in.writer.Write(ctx, rows)
	for _, row := range wr.Accepted {
		status[row.ClientEventID] = statusAccepted
	}
	if wr.BulkErr != nil {
		resp.Issues = append(resp.Issues, models.Issue{
			Level:   models.LevelWarn,
			Code:    models.CodeBulkUpsertFailed,
			Message: "bulk write failed; rows were written individually",
			Meta:    map[string]any{"rows": len(rows)},
		})
	}
	for _, f := range wr.Failed {
		id := f.Row.ClientEventID
		if f.Class == Deterministic {
			status[id] = statusRejected
			resp.Issues = append(resp.Issues, models.Issue{
				Level:         models.LevelError,
				Code:          models.CodeDBRejected,
				Message:       "event rejected by the store",
				ClientEventID: id,
				Meta:          map[string]any{"sqlstate": f.SQLState},
			})
			continue
		}
		status[id] = statusRetry
		issue := models.Issue{
			Level:         models.LevelWarn,
			Code:          models.CodeDBRetry,
			Message:       "temporary store failure; retry this event",
			ClientEventID: id,
		}
		if f.SQLState != "" {
			issue.Meta = map[string]any{"sqlstate": f.SQLState}
		}
		resp.Issues = append(resp.Issues, issue)
		log.Warn("event write failed", "client_event_id", id, "error", f.Err)
	}

	for _, id := range ids {
		switch status[id] {
		case statusAccepted:
			resp.AcceptedClientEventIDs = append(resp.AcceptedClientEventIDs, id)
		case statusRejected:
			resp.RejectedClientEventIDs = append(resp.RejectedClientEventIDs, id)
		default:
			resp.RetryClientEventIDs = append(resp.RetryClientEventIDs, id)
		}
	}
	resp.ShouldRetry = len(resp.RetryClientEventIDs) > 0

	var acceptedOps []models.DiaryOp
	for _, id := range resp.AcceptedClientEventIDs {
		acceptedOps = append(acceptedOps, diary[id]...)
	}

	// Only rows written by this request fan out; a resubmitted event is
	// accepted again but must not be counted twice downstream.
	metrics.IngestRequests.WithLabelValues("ok").Inc()
	return Result{Response: resp, RetryAfter: retryAfter, Batch: newBatch(requestID, userID, started, resp, wr.Inserted, acceptedOps)}
}

const (
	statusAccepted = "accepted"
	statusRejected = "rejected"
	statusRetry    = "retry"
)

func (in *Ingestor) checkRateLimit(ctx context.Context, log *logger.Logger, userID string, n, perMinute int) (time.Duration, bool) {
	if in.limiter == nil {
		return 0, false
	}
	d, err := in.limiter.Allow(ctx, ratelimit.Key(userID, config.RateLimitActionSwipeEv), n, perMinute)
	if err != nil {
		log.Warn("rate limiter unavailable, allowing request", "error", err)
		return 0, false
	}
	if d.Allowed {
		return 0, false
	}
	retryAfter := d.RetryAfter
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return retryAfter, true
}

type bodyItem struct {
	index int
	item  models.IngestItem
}

// decodeBody accepts {"items": [...]} or a single item object. Elements of
// items that are not objects are reported as issues; the rest still decode.
func decodeBody(body []byte) ([]bodyItem, []models.Issue, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, errNotObject
	}
	var req models.IngestRequest
	if err := gojson.Unmarshal(trimmed, &req); err != nil {
		return nil, nil, err
	}
	if req.Items == nil {
		var item models.IngestItem
		if err := gojson.Unmarshal(trimmed, &item); err != nil {
			return nil, nil, err
		}
		return []bodyItem{{index: 0, item: item}}, nil, nil
	}

	items := make([]bodyItem, 0, len(req.Items))
	var issues []models.Issue
	for i, raw := range req.Items {
		var item models.IngestItem
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			issues = append(issues, itemNotObject(i))
			continue
		}
		if err := gojson.Unmarshal(raw, &item); err != nil {
			issues = append(issues, itemNotObject(i))
			continue
		}
		items = append(items, bodyItem{index: i, item: item})
	}
	return items, issues, nil
}

func itemNotObject(i int) models.Issue {
	return models.Issue{
		Level:   models.LevelError,
		Code:    models.CodeBadInput,
		Message: "item is not an object",
		Meta:    map[string]any{"item": i},
	}
}

func newBatch(requestID, userID string, receivedAt time.Time, resp models.IngestResponse, rows []models.EventRow, ops []models.DiaryOp) *models.AcceptedBatch {
	t := models.Tally{
		Accepted: len(resp.AcceptedClientEventIDs),
		Rejected: len(resp.RejectedClientEventIDs),
		Retry:    len(resp.RetryClientEventIDs),
		Issues:   make(map[string]int),
	}
	for _, row := range rows {
		switch row.EventType {
		case models.EventLike:
			t.Likes++
		case models.EventDislike:
			t.Dislikes++
		}
	}
	for _, issue := range resp.Issues {
		t.Issues[issue.Code]++
	}
	return &models.AcceptedBatch{
		RequestID:  requestID,
		UserID:     userID,
		ReceivedAt: receivedAt,
		Rows:       rows,
		DiaryOps:   ops,
		Tally:      t,
	}
}

func observe(resp models.IngestResponse, started, finished time.Time) {
	metrics.IngestDuration.Observe(finished.Sub(started).Seconds())
	metrics.IngestEvents.WithLabelValues("accepted").Add(float64(len(resp.AcceptedClientEventIDs)))
	metrics.IngestEvents.WithLabelValues("rejected").Add(float64(len(resp.RejectedClientEventIDs)))
	metrics.IngestEvents.WithLabelValues("retry").Add(float64(len(resp.RetryClientEventIDs)))
	for _, issue := range resp.Issues {
		metrics.IngestIssues.WithLabelValues(issue.Code).Inc()
	}
}
