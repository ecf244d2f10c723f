package config

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Settings registry keys read by the ingestion service.
const (
	KeyRateLimits          = "ops.rate_limits"
	KeySyntheticDwellMs    = "ranking.swipe.status_watched.synthetic_dwell_ms"
	KeyCentroidSampleRate  = "ranking.swipe.centroids.refresh_sample_rate"
	KeyCentroidK           = "ranking.swipe.centroids.k"
	KeyCentroidMaxItems    = "ranking.swipe.centroids.max_items"
	KeyRollupSampleRate    = "ranking.swipe.metrics_rollup.sample_rate"
	KeyTasteThresholds     = "ranking.swipe.taste"
	RateLimitActionSwipeEv = "swipe_event"
)

// SettingsKeys lists every key LoadSettings is asked for.
var SettingsKeys = []string{
	KeyRateLimits, KeySyntheticDwellMs, KeyCentroidSampleRate, KeyCentroidK,
	KeyCentroidMaxItems, KeyRollupSampleRate, KeyTasteThresholds,
}

// Settings are the runtime knobs of the ingestion pipeline.
type Settings struct {
	SwipeEventsPerMinute  int
	SyntheticDwellMs      int
	CentroidRefreshRate   float64
	CentroidK             int
	CentroidMaxItems      int
	RollupSampleRate      float64
	StrongPositiveRating  float64
	StrongNegativeRating  float64
	StrongPositiveDwellMs int
}

// DefaultSettings are the hard-coded fallbacks for every knob.
func DefaultSettings() Settings {
	return Settings{
		SwipeEventsPerMinute:  1000,
		SyntheticDwellMs:      12000,
		CentroidRefreshRate:   0.25,
		CentroidK:             3,
		CentroidMaxItems:      60,
		RollupSampleRate:      0.1,
		StrongPositiveRating:  7,
		StrongNegativeRating:  3,
		StrongPositiveDwellMs: 12000,
	}
}

// SettingsReader loads raw JSON values for the given keys from the
// external settings store. Missing keys are simply absent from the map.
type SettingsReader interface {
	LoadSettings(ctx context.Context, keys []string) (map[string][]byte, error)
}

// SettingsProvider caches Settings for ttl and falls back to the last good
// value (or defaults) when the store is unavailable.
type SettingsProvider struct {
	reader SettingsReader
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	current  Settings
	loadedAt time.Time
	loaded   bool
}

func NewSettingsProvider(reader SettingsReader, ttl time.Duration) *SettingsProvider {
	return &SettingsProvider{
		reader:  reader,
		ttl:     ttl,
		now:     time.Now,
		current: DefaultSettings(),
	}
}

// Current returns cached settings, refreshing them when stale. The error is
// informational: the returned Settings are always usable.
func (p *SettingsProvider) Current(ctx context.Context) (Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		return p.current, nil
	}
	if p.loaded && p.now().Sub(p.loadedAt) < p.ttl {
		return p.current, nil
	}

	raw, err := p.reader.LoadSettings(ctx, SettingsKeys)
	// Retry no sooner than ttl either way, so a down store is not hammered.
	p.loadedAt = p.now()
	p.loaded = true
	if err != nil {
		return p.current, err
	}
	p.current = ParseSettings(raw)
	return p.current, nil
}

// ParseSettings applies raw values over the defaults. Malformed or
// out-of-range values keep their default.
func ParseSettings(raw map[string][]byte) Settings {
	s := DefaultSettings()

	var limits struct {
		Actions map[string]int `json:"actions"`
	}
	if decode(raw[KeyRateLimits], &limits) {
		if v, ok := limits.Actions[RateLimitActionSwipeEv]; ok && v >= 1 && v <= 6000 {
			s.SwipeEventsPerMinute = v
		}
	}

	var dwell, k, maxItems int
	if decode(raw[KeySyntheticDwellMs], &dwell) && dwell >= 0 && dwell <= 600_000 {
		s.SyntheticDwellMs = dwell
	}
	if decode(raw[KeyCentroidK], &k) && k >= 1 && k <= 10 {
		s.CentroidK = k
	}
	if decode(raw[KeyCentroidMaxItems], &maxItems) && maxItems >= 10 && maxItems <= 200 {
		s.CentroidMaxItems = maxItems
	}

	var centroidRate, rollupRate float64
	if decode(raw[KeyCentroidSampleRate], &centroidRate) && centroidRate >= 0 && centroidRate <= 1 {
		s.CentroidRefreshRate = centroidRate
	}
	if decode(raw[KeyRollupSampleRate], &rollupRate) && rollupRate >= 0 && rollupRate <= 1 {
		s.RollupSampleRate = rollupRate
	}

	var taste struct {
		Thresholds *struct {
			StrongPositiveRatingMin  *float64 `json:"strong_positive_rating_min"`
			StrongNegativeRatingMax  *float64 `json:"strong_negative_rating_max"`
			StrongPositiveDwellMsMin *int     `json:"strong_positive_dwell_ms_min"`
		} `json:"thresholds"`
	}
	if decode(raw[KeyTasteThresholds], &taste) && taste.Thresholds != nil {
		th := taste.Thresholds
		if v := th.StrongPositiveRatingMin; v != nil && *v >= 0 && *v <= 10 {
			s.StrongPositiveRating = *v
		}
		if v := th.StrongNegativeRatingMax; v != nil && *v >= 0 && *v <= 10 {
			s.StrongNegativeRating = *v
		}
		if v := th.StrongPositiveDwellMsMin; v != nil && *v >= 0 && *v <= 600_000 {
			s.StrongPositiveDwellMs = *v
		}
	}
	return s
}

func decode(b []byte, v any) bool {
	if len(b) == 0 {
		return false
	}
	return json.Unmarshal(b, v) == nil
}
