package models

// IssueLevel is the severity of a response issue.
type IssueLevel string

const (
	LevelWarn  IssueLevel = "warn"
	LevelError IssueLevel = "error"
)

// Issue codes reported back to clients.
const (
	CodeBadJSON               = "BAD_JSON"
	CodeBadInput              = "BAD_INPUT"
	CodeDeckContextDropped    = "DECK_CONTEXT_DROPPED"
	CodeServedKeyMissing      = "SERVED_KEY_MISSING"
	CodeClientEventIDReplaced = "CLIENT_EVENT_ID_REPLACED"
	CodeDBRejected            = "DB_REJECTED"
	CodeDBRetry               = "DB_RETRY"
	CodeBulkUpsertFailed      = "BULK_UPSERT_FAILED"
	CodeRateLimit             = "RATE_LIMIT"
	CodeUnexpected            = "UNEXPECTED"
)

// Issue describes one warning or error attached to an ingest response.
type Issue struct {
	Level         IssueLevel     `json:"level"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	ClientEventID string         `json:"clientEventId,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// IngestResponse is returned for every structurally parseable request.
// Clients resubmit RetryClientEventIDs and drop RejectedClientEventIDs.
type IngestResponse struct {
	OK                     bool     `json:"ok"`
	RequestID              string   `json:"requestId"`
	AcceptedClientEventIDs []string `json:"acceptedClientEventIds"`
	RejectedClientEventIDs []string `json:"rejectedClientEventIds"`
	RetryClientEventIDs    []string `json:"retryClientEventIds"`
	ShouldRetry            bool     `json:"shouldRetry"`
	Issues                 []Issue  `json:"issues"`
}

// NewIngestResponse returns an empty envelope with non-nil lists so they
// always encode as [] rather than null.
func NewIngestResponse(requestID string) IngestResponse {
	return IngestResponse{
		OK:                     true,
		RequestID:              requestID,
		AcceptedClientEventIDs: []string{},
		RejectedClientEventIDs: []string{},
		RetryClientEventIDs:    []string{},
		Issues:                 []Issue{},
	}
}
