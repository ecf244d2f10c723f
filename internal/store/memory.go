package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/movinesta/swipe-ingest/internal/fanout"
	"github.com/movinesta/swipe-ingest/internal/models"
)

// MemoryStore implements every store interface in process. It backs local
// runs without DB_URL and the package tests; conflict semantics match the
// Postgres schema.
type MemoryStore struct {
	mu sync.RWMutex

	events     map[eventKey]models.EventRow
	eventOrder []eventKey
	failEvent  func(models.EventRow) error

	categories map[string]string
	diary      map[diaryKey]DiaryEntry
	ratings    map[diaryKey]float64
	labels     map[diaryKey][]string

	hourly map[time.Time]models.HourlyHealth
	issues map[time.Time]map[string]int64

	settings map[string][]byte

	tasteUpdates []fanout.TasteUpdate
	centroids    map[string]int
}

type eventKey struct {
	userID    string
	dedupeKey string
	day       time.Time
}

type diaryKey struct {
	userID string
	id     string
}

// DiaryEntry is one library_entries row.
type DiaryEntry struct {
	Status      models.DiaryStatus
	ContentType string
	UpdatedAt   time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:     make(map[eventKey]models.EventRow),
		categories: make(map[string]string),
		diary:      make(map[diaryKey]DiaryEntry),
		ratings:    make(map[diaryKey]float64),
		labels:     make(map[diaryKey][]string),
		hourly:     make(map[time.Time]models.HourlyHealth),
		issues:     make(map[time.Time]map[string]int64),
		settings:   make(map[string][]byte),
		centroids:  make(map[string]int),
	}
}

// FailEvents makes every write of a row for which fn returns an error fail
// with that error. A bulk write fails as a whole, like a single statement.
func (m *MemoryStore) FailEvents(fn func(models.EventRow) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEvent = fn
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) InsertEvents(ctx context.Context, rows []models.EventRow) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvent != nil {
		for _, r := range rows {
			if err := m.failEvent(r); err != nil {
				return nil, err
			}
		}
	}
	var inserted []string
	for _, r := range rows {
		if m.putEvent(r) {
			inserted = append(inserted, r.DedupeKey)
		}
	}
	return inserted, nil
}

func (m *MemoryStore) InsertEvent(ctx context.Context, row models.EventRow) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvent != nil {
		if err := m.failEvent(row); err != nil {
			return false, err
		}
	}
	return m.putEvent(row), nil
}

// putEvent reports whether r was new.
func (m *MemoryStore) putEvent(r models.EventRow) bool {
	k := eventKey{userID: r.UserID, dedupeKey: r.DedupeKey, day: models.DayBucketOf(r.DayBucket)}
	if _, ok := m.events[k]; ok {
		return false
	}
	m.events[k] = r
	m.eventOrder = append(m.eventOrder, k)
	return true
}

// Events returns a user's persisted rows in insertion order.
func (m *MemoryStore) Events(userID string) []models.EventRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.EventRow
	for _, k := range m.eventOrder {
		if k.userID == userID {
			out = append(out, m.events[k])
		}
	}
	return out
}

func (m *MemoryStore) SetCategory(mediaID, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[mediaID] = kind
}

func (m *MemoryStore) MediaCategories(_ context.Context, mediaIDs []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(mediaIDs))
	for _, id := range mediaIDs {
		if kind, ok := m.categories[id]; ok {
			out[id] = kind
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertDiaryStatus(_ context.Context, userID, mediaID string, status models.DiaryStatus, category string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := diaryKey{userID, mediaID}
	e := m.diary[k]
	e.Status, e.UpdatedAt = status, at
	if category != "" {
		e.ContentType = category
	}
	m.diary[k] = e
	return nil
}

func (m *MemoryStore) SetWatchlist(_ context.Context, userID, mediaID string, inWatchlist bool, category string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := diaryKey{userID, mediaID}
	if !inWatchlist {
		delete(m.diary, k)
		return nil
	}
	if _, ok := m.diary[k]; ok {
		return nil
	}
	m.diary[k] = DiaryEntry{Status: models.DiaryWantToWatch, ContentType: category, UpdatedAt: at}
	return nil
}

func (m *MemoryStore) UpsertRating(_ context.Context, userID, mediaID string, rating float64, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[diaryKey{userID, mediaID}] = rating
	return nil
}

// Diary returns the library entry for (user, media), if any.
func (m *MemoryStore) Diary(userID, mediaID string) (DiaryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.diary[diaryKey{userID, mediaID}]
	return e, ok
}

func (m *MemoryStore) Rating(userID, mediaID string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ratings[diaryKey{userID, mediaID}]
	return r, ok
}

func (m *MemoryStore) MergeLabels(_ context.Context, userID, servedKey string, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := diaryKey{userID, servedKey}
	set := m.labels[k]
	for _, l := range labels {
		if !slices.Contains(set, l) {
			set = append(set, l)
		}
	}
	sort.Strings(set)
	m.labels[k] = set
	return nil
}

// Labels returns the sorted label set for one serving.
func (m *MemoryStore) Labels(userID, servedKey string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.labels[diaryKey{userID, servedKey}])
}

func (m *MemoryStore) UpdateTaste(_ context.Context, u fanout.TasteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasteUpdates = append(m.tasteUpdates, u)
	return nil
}

func (m *MemoryStore) RefreshCentroids(_ context.Context, userID string, _, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.centroids[userID]++
	return nil
}

func (m *MemoryStore) TasteUpdates() []fanout.TasteUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tasteUpdates)
}

func (m *MemoryStore) CentroidRefreshes(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.centroids[userID]
}

func (m *MemoryStore) AddRollup(_ context.Context, r models.IngestRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := r.BucketStart.UTC()
	h := m.hourly[bucket]
	h.BucketStart = bucket
	h.Requests += int64(r.Requests)
	h.Accepted += int64(r.Accepted)
	h.Rejected += int64(r.Rejected)
	h.Retry += int64(r.Retry)
	h.Likes += int64(r.Likes)
	h.Dislikes += int64(r.Dislikes)
	h.SampleRate = r.SampleRate
	h.UpdatedAt = time.Now().UTC()
	m.hourly[bucket] = h

	if m.issues[bucket] == nil {
		m.issues[bucket] = make(map[string]int64)
	}
	for code, n := range r.Issues {
		if n > 0 {
			m.issues[bucket][code] += int64(n)
		}
	}
	return nil
}

// IngestHealth matches PostgresStore.IngestHealth, including topN <= 0
// meaning no limit.
func (m *MemoryStore) IngestHealth(_ context.Context, since time.Time, topN int) ([]models.HourlyHealth, []models.IssueTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hourly := []models.HourlyHealth{}
	totals := make(map[string]int64)
	for bucket, h := range m.hourly {
		if bucket.Before(since) {
			continue
		}
		h.ComputeRates()
		hourly = append(hourly, h)
		for code, n := range m.issues[bucket] {
			totals[code] += n
		}
	}
	sort.Slice(hourly, func(i, j int) bool { return hourly[i].BucketStart.After(hourly[j].BucketStart) })

	issues := []models.IssueTotal{}
	for _, code := range slices.Sorted(maps.Keys(totals)) {
		issues = append(issues, models.IssueTotal{Code: code, Count: totals[code]})
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Count > issues[j].Count })
	if topN > 0 && len(issues) > topN {
		issues = issues[:topN]
	}
	return hourly, issues, nil
}

func (m *MemoryStore) PutSetting(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = slices.Clone(value)
}

func (m *MemoryStore) LoadSettings(_ context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.settings[k]; ok {
			out[k] = slices.Clone(v)
		}
	}
	return out, nil
}
