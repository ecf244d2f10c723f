package models

import (
	"strings"
	"time"
)

// DiaryStatus is the user's library status for a title.
type DiaryStatus string

const (
	DiaryWantToWatch DiaryStatus = "want_to_watch"
	DiaryWatching    DiaryStatus = "watching"
	DiaryWatched     DiaryStatus = "watched"
	DiaryDropped     DiaryStatus = "dropped"
)

func ParseDiaryStatus(s string) (DiaryStatus, bool) {
	st := DiaryStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case DiaryWantToWatch, DiaryWatching, DiaryWatched, DiaryDropped:
		return st, true
	}
	return "", false
}

// DiaryOpKind selects which derived projection a DiaryOp updates.
type DiaryOpKind string

const (
	DiaryOpStatus    DiaryOpKind = "status"
	DiaryOpWatchlist DiaryOpKind = "watchlist"
	DiaryOpRating    DiaryOpKind = "rating"
)

// DiaryOp is a last-write-wins update to a derived projection row.
type DiaryOp struct {
	Kind          DiaryOpKind
	ClientEventID string
	MediaItemID   string
	Status        DiaryStatus
	InWatchlist   bool
	Rating        float64
}

// Ranking outcome labels accumulated per served recommendation.
const (
	LabelPositive      = "positive"
	LabelNotInterested = "not_interested"
	LabelSkipped       = "skipped"
	LabelOpened        = "opened"
	LabelHidden        = "hidden"
)

// Tally counts one request's outcomes for rollups.
type Tally struct {
	Accepted int
	Rejected int
	Retry    int
	Likes    int
	Dislikes int
	Issues   map[string]int
}

// AcceptedBatch is the post-response work unit handed to the fan-out pool.
type AcceptedBatch struct {
	RequestID  string
	UserID     string
	ReceivedAt time.Time
	Rows       []EventRow
	DiaryOps   []DiaryOp
	Tally      Tally
}

// IngestRollup is one sampled contribution to the hourly ingest health table.
type IngestRollup struct {
	BucketStart time.Time
	Requests    int
	Accepted    int
	Rejected    int
	Retry       int
	Likes       int
	Dislikes    int
	SampleRate  float64
	Issues      map[string]int
}

// HourlyHealth is one row of the ingest health report.
type HourlyHealth struct {
	BucketStart   time.Time `json:"bucket_start"`
	Requests      int64     `json:"requests"`
	Accepted      int64     `json:"accepted_events"`
	Rejected      int64     `json:"rejected_events"`
	Retry         int64     `json:"retry_events"`
	Likes         int64     `json:"likes"`
	Dislikes      int64     `json:"dislikes"`
	RejectionRate *float64  `json:"rejection_rate"`
	RetryRate     *float64  `json:"retry_rate"`
	SampleRate    float64   `json:"sample_rate"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IssueTotal is an issue code with its sampled count.
type IssueTotal struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
}

// ComputeRates fills the derived rates; they stay nil for an empty bucket.
func (h *HourlyHealth) ComputeRates() {
	total := h.Accepted + h.Rejected + h.Retry
	if total <= 0 {
		h.RejectionRate, h.RetryRate = nil, nil
		return
	}
	rejection := float64(h.Rejected) / float64(total)
	retry := float64(h.Retry) / float64(total)
	h.RejectionRate, h.RetryRate = &rejection, &retry
}
