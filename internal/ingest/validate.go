package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/movinesta/swipe-ingest/internal/models"
)

const (
	maxPosition    = 5000
	maxDwellMs     = 24 * 60 * 60 * 1000
	maxSourceLen   = 64
	maxServedKeyLn = 256
)

var sourceSeparators = regexp.MustCompile(`[\s-]+`)

var sourceAliases = map[string]string{
	"foryou":       "for_you",
	"from_friends": "friends",
}

// Validator checks items and events. Field-level checks use go-playground
// validator tags so the rules read the same way as the rest of the API.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) isUUID(s string) bool {
	return v.validate.Var(s, "required,uuid") == nil
}

func (v *Validator) validPosition(p int) bool {
	return v.validate.Var(p, fmt.Sprintf("min=0,max=%d", maxPosition)) == nil
}

// ItemContext is the validated, item-level part of every event in an item.
type ItemContext struct {
	Index       int
	SessionID   string
	MediaItemID string
	IDError     string
	Source      *string

	// Deck context is all set or all nil.
	DeckID       *string
	RecRequestID *string
	Position     *int
	ServedKey    *string
}

func (c ItemContext) IDsValid() bool { return c.IDError == "" }

// ValidateItem checks identifiers and resolves deck context. Malformed
// identifiers are recorded on the context and reject every event of the
// item later; unusable deck context is dropped as a unit with a warning.
func (v *Validator) ValidateItem(index int, it models.IngestItem) (ItemContext, []models.Issue) {
	ic := ItemContext{Index: index, Source: normalizeSource(it.Source)}

	session, ok := rawString(it.SessionID)
	session = strings.ToLower(strings.TrimSpace(session))
	if !ok || !v.isUUID(session) {
		ic.IDError = "sessionId must be a UUID"
		return ic, nil
	}
	media, ok := rawString(it.MediaItemID)
	media = strings.ToLower(strings.TrimSpace(media))
	if !ok || !v.isUUID(media) {
		ic.IDError = "mediaItemId must be a UUID"
		return ic, nil
	}
	ic.SessionID, ic.MediaItemID = session, media

	return ic, v.resolveDeckContext(&ic, it)
}

func (v *Validator) resolveDeckContext(ic *ItemContext, it models.IngestItem) []models.Issue {
	reqRaw := it.RecRequestID
	if isAbsent(reqRaw) {
		reqRaw = it.RecRequestIDSnake
	}
	keyRaw := it.DedupeKey
	if isAbsent(keyRaw) {
		keyRaw = it.DedupeKeySnake
	}
	if isAbsent(it.DeckID) && isAbsent(reqRaw) && isAbsent(it.Position) && isAbsent(keyRaw) {
		return nil
	}

	drop := func(field, msg string) []models.Issue {
		return []models.Issue{{
			Level:   models.LevelWarn,
			Code:    models.CodeDeckContextDropped,
			Message: "deck context dropped: " + msg,
			Meta:    map[string]any{"item": ic.Index, "field": field},
		}}
	}

	var deckID, reqID *string
	var pos *int

	if !isAbsent(it.DeckID) {
		s, ok := v.uuidField(it.DeckID)
		if !ok {
			return drop("deckId", "deckId must be a UUID")
		}
		deckID = &s
	}
	if !isAbsent(reqRaw) {
		s, ok := v.uuidField(reqRaw)
		if !ok {
			return drop("recRequestId", "recRequestId must be a UUID")
		}
		reqID = &s
	}
	if !isAbsent(it.Position) {
		f, ok := rawNumber(it.Position)
		if !ok || math.IsInf(f, 0) || f != math.Trunc(f) || !v.validPosition(int(f)) {
			return drop("position", fmt.Sprintf("position must be an integer in [0,%d]", maxPosition))
		}
		p := int(f)
		pos = &p
	}
	if !isAbsent(keyRaw) {
		s, ok := rawString(keyRaw)
		s = strings.ToLower(strings.TrimSpace(s))
		if !ok || s == "" || len(s) > maxServedKeyLn {
			return drop("dedupeKey", "dedupeKey must be a non-empty string")
		}
		rr, p, mi, ok := ParseServedKey(s)
		switch {
		case !ok || mi != ic.MediaItemID:
			return drop("dedupeKey", "dedupeKey does not match mediaItemId")
		case reqID != nil && *reqID != rr:
			return drop("dedupeKey", "dedupeKey does not match recRequestId")
		case pos != nil && *pos != p:
			return drop("dedupeKey", "dedupeKey does not match position")
		case !v.isUUID(rr) || !v.validPosition(p):
			return drop("dedupeKey", "dedupeKey is malformed")
		}
		reqID, pos = &rr, &p
	}

	if reqID == nil || pos == nil {
		return []models.Issue{{
			Level:   models.LevelWarn,
			Code:    models.CodeServedKeyMissing,
			Message: "deck context without recRequestId and position; recorded without deck context",
			Meta:    map[string]any{"item": ic.Index},
		}}
	}

	key := BuildServedKey(*reqID, *pos, ic.MediaItemID)
	ic.DeckID, ic.RecRequestID, ic.Position, ic.ServedKey = deckID, reqID, pos, &key
	return nil
}

func (v *Validator) uuidField(raw json.RawMessage) (string, bool) {
	s, ok := rawString(raw)
	s = strings.ToLower(strings.TrimSpace(s))
	return s, ok && v.isUUID(s)
}

// ClientEventID returns the client's idempotency token, or a generated one
// with a CLIENT_EVENT_ID_REPLACED warning when it is missing, malformed or
// already used earlier in the same request.
func (v *Validator) ClientEventID(raw json.RawMessage, seen map[string]struct{}) (string, *models.Issue) {
	reason := ""
	s, ok := rawString(raw)
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case isAbsent(raw) || (ok && s == ""):
		reason = "missing"
	case !ok || !v.isUUID(s):
		reason = "malformed"
	default:
		if _, dup := seen[s]; dup {
			reason = "duplicate"
		}
	}
	if reason == "" {
		seen[s] = struct{}{}
		return s, nil
	}

	id := uuid.NewString()
	seen[id] = struct{}{}
	return id, &models.Issue{
		Level:         models.LevelWarn,
		Code:          models.CodeClientEventIDReplaced,
		Message:       "clientEventId " + reason + "; generated a replacement",
		ClientEventID: id,
		Meta:          map[string]any{"original": rawPreview(raw), "reason": reason},
	}
}

// EventOutcome is the validation result for one event. Exactly one of
// Reject or (Row and/or Diary) is set.
type EventOutcome struct {
	ClientEventID string
	Row           *models.EventRow
	Diary         []models.DiaryOp
	Reject        *models.Issue
}

// EventInput bundles what ValidateEvent needs besides the wire entry.
type EventInput struct {
	Item             ItemContext
	Entry            models.EventEntry
	ClientEventID    string
	UserID           string
	SyntheticDwellMs int
	Now              time.Time
}

// ValidateEvent applies the per-event rules and builds the row to persist.
func (v *Validator) ValidateEvent(in EventInput) EventOutcome {
	out := EventOutcome{ClientEventID: in.ClientEventID}
	reject := func(field, msg string) EventOutcome {
		out.Reject = &models.Issue{
			Level:         models.LevelError,
			Code:          models.CodeBadInput,
			Message:       msg,
			ClientEventID: in.ClientEventID,
			Meta:          map[string]any{"item": in.Item.Index, "field": field},
		}
		return out
	}

	if !in.Item.IDsValid() {
		return reject("item", in.Item.IDError)
	}

	typeStr, _ := rawString(in.Entry.EventType)
	et, ok := models.ParseEventType(typeStr)
	if !ok {
		return reject("eventType", fmt.Sprintf("unknown eventType %q", rawPreview(in.Entry.EventType)))
	}

	var dwell *int
	if !isAbsent(in.Entry.DwellMs) {
		f, ok := rawNumber(in.Entry.DwellMs)
		if !ok || math.IsInf(f, 0) || math.IsNaN(f) || f < 0 {
			return reject("dwellMs", "dwellMs must be a non-negative finite number")
		}
		if f > maxDwellMs {
			return reject("dwellMs", "dwellMs exceeds 24h")
		}
		d := int(math.Round(f))
		dwell = &d
	}

	var rating *float64
	if !isAbsent(in.Entry.Rating0To10) {
		f, ok := rawNumber(in.Entry.Rating0To10)
		if !ok || f < 0 || f > 10 || f*2 != math.Trunc(f*2) {
			return reject("rating0_10", "rating0_10 must be in [0,10] in half-point steps")
		}
		rating = &f
	}

	var inWatchlist *bool
	if !isAbsent(in.Entry.InWatchlist) {
		b, ok := rawBool(in.Entry.InWatchlist)
		if !ok {
			return reject("inWatchlist", "inWatchlist must be a boolean")
		}
		inWatchlist = &b
	}

	switch et {
	case models.EventWatchlistAdd, models.EventWatchlistRemove:
		implied := et == models.EventWatchlistAdd
		if inWatchlist != nil && *inWatchlist != implied {
			return reject("inWatchlist", "inWatchlist contradicts eventType")
		}
		inWatchlist = &implied
	}

	payload := SanitizePayload(in.Entry.Payload)

	if et == models.EventLike && isStatusAction(payload) {
		raw, _ := payload["status"].(string)
		status, ok := models.ParseDiaryStatus(raw)
		if !ok {
			return reject("payload.status", fmt.Sprintf("unknown diary status %q", raw))
		}
		out.Diary = append(out.Diary, models.DiaryOp{
			Kind:          models.DiaryOpStatus,
			ClientEventID: in.ClientEventID,
			MediaItemID:   in.Item.MediaItemID,
			Status:        status,
		})
		if status != models.DiaryWatched {
			return out
		}
		// A watched transition is logged as a dwell so it does not count as a like.
		synthetic := in.SyntheticDwellMs
		row := v.buildRow(in, models.EventDwell, &synthetic, nil, nil, payload)
		row.Synthetic = true
		out.Row = row
		return out
	}

	out.Row = v.buildRow(in, et, dwell, rating, inWatchlist, payload)

	if et.IsWatchlist() && inWatchlist != nil {
		out.Diary = append(out.Diary, models.DiaryOp{
			Kind:          models.DiaryOpWatchlist,
			ClientEventID: in.ClientEventID,
			MediaItemID:   in.Item.MediaItemID,
			InWatchlist:   *inWatchlist,
		})
	}
	if et.IsRating() && rating != nil {
		out.Diary = append(out.Diary, models.DiaryOp{
			Kind:          models.DiaryOpRating,
			ClientEventID: in.ClientEventID,
			MediaItemID:   in.Item.MediaItemID,
			Rating:        *rating,
		})
	}
	return out
}

func (v *Validator) buildRow(in EventInput, et models.EventType, dwell *int, rating *float64, inWatchlist *bool, payload models.Payload) *models.EventRow {
	ic := in.Item
	row := &models.EventRow{
		UserID:          in.UserID,
		SessionID:       ic.SessionID,
		MediaItemID:     ic.MediaItemID,
		EventType:       et,
		DeckID:          ic.DeckID,
		RecRequestID:    ic.RecRequestID,
		Position:        ic.Position,
		ServedDedupeKey: ic.ServedKey,
		Source:          ic.Source,
		DwellMs:         dwell,
		Rating0To10:     rating,
		InWatchlist:     inWatchlist,
		Payload:         payload,
		ClientEventID:   in.ClientEventID,
		DayBucket:       models.DayBucketOf(in.Now),
		CreatedAt:       in.Now.UTC(),
	}
	row.DedupeKey = BuildWriteKey(WriteKeyInput{
		SessionID:   row.SessionID,
		MediaItemID: row.MediaItemID,
		EventType:   row.EventType,
		DeckID:      row.DeckID,
		Position:    row.Position,
		InWatchlist: row.InWatchlist,
		Rating:      row.Rating0To10,
		DwellMs:     row.DwellMs,
		Payload:     row.Payload,
	})
	return row
}

func isStatusAction(p models.Payload) bool {
	action, _ := p["action"].(string)
	return strings.EqualFold(strings.TrimSpace(action), "status")
}

// normalizeSource lower-cases the deck source tag and folds known aliases.
func normalizeSource(raw json.RawMessage) *string {
	s, ok := rawString(raw)
	if !ok {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	s = sourceSeparators.ReplaceAllString(s, "_")
	if alias, ok := sourceAliases[s]; ok {
		s = alias
	}
	s = truncate(s, maxSourceLen)
	return &s
}
