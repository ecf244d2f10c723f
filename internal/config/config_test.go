package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RequiresJWTSecretUnlessAuthDisabled(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AUTH_DISABLED", "")
	t.Setenv("CONFIG_FILE", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}

	t.Setenv("AUTH_DISABLED", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.AuthDisabled {
		t.Error("expected AuthDisabled=true")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default addr, got %q", cfg.HTTPAddr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "http_addr: \":9000\"\njwt_secret: from-file\nfanout_workers: 2\nfanout_task_timeout: 2s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AUTH_DISABLED", "")
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Errorf("expected env addr :9100, got %q", cfg.HTTPAddr)
	}
	if cfg.JWTSecret != "from-file" {
		t.Errorf("expected secret from file, got %q", cfg.JWTSecret)
	}
	if cfg.FanoutWorkers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.FanoutWorkers)
	}
	if cfg.FanoutTaskTimeout != 2*time.Second {
		t.Errorf("expected 2s task timeout, got %v", cfg.FanoutTaskTimeout)
	}
}

func TestParseSettings_DefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	s := ParseSettings(nil)
	if s != DefaultSettings() {
		t.Errorf("expected defaults for empty input, got %+v", s)
	}

	s = ParseSettings(map[string][]byte{
		KeyRateLimits:         []byte(`{"actions":{"swipe_event":30,"swipe_deck":5}}`),
		KeySyntheticDwellMs:   []byte(`9000`),
		KeyCentroidSampleRate: []byte(`1`),
		KeyCentroidK:          []byte(`42`), // out of range, keeps default
		KeyRollupSampleRate:   []byte(`"nope"`),
		KeyTasteThresholds:    []byte(`{"thresholds":{"strong_positive_rating_min":8}}`),
	})
	if s.SwipeEventsPerMinute != 30 {
		t.Errorf("SwipeEventsPerMinute = %d, want 30", s.SwipeEventsPerMinute)
	}
	if s.SyntheticDwellMs != 9000 {
		t.Errorf("SyntheticDwellMs = %d, want 9000", s.SyntheticDwellMs)
	}
	if s.CentroidRefreshRate != 1 {
		t.Errorf("CentroidRefreshRate = %v, want 1", s.CentroidRefreshRate)
	}
	if s.CentroidK != 3 {
		t.Errorf("CentroidK = %d, want default 3", s.CentroidK)
	}
	if s.RollupSampleRate != 0.1 {
		t.Errorf("RollupSampleRate = %v, want default 0.1", s.RollupSampleRate)
	}
	if s.StrongPositiveRating != 8 || s.StrongNegativeRating != 3 {
		t.Errorf("thresholds = %v/%v, want 8/3", s.StrongPositiveRating, s.StrongNegativeRating)
	}
}

type fakeReader struct {
	calls int
	err   error
	raw   map[string][]byte
}

func (f *fakeReader) LoadSettings(context.Context, []string) (map[string][]byte, error) {
	f.calls++
	return f.raw, f.err
}

func TestSettingsProvider_CachesForTTL(t *testing.T) {
	t.Parallel()

	r := &fakeReader{raw: map[string][]byte{KeySyntheticDwellMs: []byte(`5000`)}}
	p := NewSettingsProvider(r, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	s, err := p.Current(context.Background())
	if err != nil || s.SyntheticDwellMs != 5000 {
		t.Fatalf("Current = %+v, %v", s, err)
	}
	_, _ = p.Current(context.Background())
	if r.calls != 1 {
		t.Errorf("expected 1 load within ttl, got %d", r.calls)
	}

	now = now.Add(2 * time.Minute)
	_, _ = p.Current(context.Background())
	if r.calls != 2 {
		t.Errorf("expected reload after ttl, got %d calls", r.calls)
	}
}

func TestSettingsProvider_KeepsLastGoodOnError(t *testing.T) {
	t.Parallel()

	r := &fakeReader{raw: map[string][]byte{KeyCentroidK: []byte(`5`)}}
	p := NewSettingsProvider(r, 0)

	if s, _ := p.Current(context.Background()); s.CentroidK != 5 {
		t.Fatalf("expected k=5, got %d", s.CentroidK)
	}

	r.err = errors.New("settings store down")
	s, err := p.Current(context.Background())
	if err == nil {
		t.Error("expected error to be reported")
	}
	if s.CentroidK != 5 {
		t.Errorf("expected last good k=5, got %d", s.CentroidK)
	}
}
