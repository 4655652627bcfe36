package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"runon/internal/ics"
	"runon/internal/model"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.Source != SourceAPI {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
source: ics
week_start: Monday
horizon_days: -3
home_location:
  latitude: 120
  longitude: 0
ics:
  - name: club
    url: https://example.com/club.ics
  - url: https://example.com/other.ics
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != SourceICS {
		t.Fatalf("source = %q", cfg.Source)
	}
	if cfg.WeekStart != "monday" || cfg.WeekStartDay() != time.Monday {
		t.Fatalf("week start = %q / %v", cfg.WeekStart, cfg.WeekStartDay())
	}
	if cfg.HorizonDays != 180 {
		t.Fatalf("horizon = %d, want default", cfg.HorizonDays)
	}
	if cfg.HomeLocation != nil {
		t.Fatalf("invalid home location kept: %+v", cfg.HomeLocation)
	}
	if cfg.ICS[0].ID != "club" || cfg.ICS[1].ID != "feed-2" {
		t.Fatalf("feed ids = %q, %q", cfg.ICS[0].ID, cfg.ICS[1].ID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.HomeLocation = &model.Coordinate{Latitude: 52.52, Longitude: 13.405}
	cfg.ICS = []ics.Feed{{ID: "a", URL: "https://example.com/a.ics"}}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone = %q", got.Timezone)
	}
	if got.HomeLocation == nil || got.HomeLocation.Latitude != 52.52 {
		t.Fatalf("home location = %+v", got.HomeLocation)
	}
	if len(got.ICS) != 1 || got.ICS[0].URL != "https://example.com/a.ics" {
		t.Fatalf("feeds = %+v", got.ICS)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source = SourceICS
	if err := cfg.Validate(); err == nil {
		t.Fatal("ics source without feeds should fail")
	}
	cfg.ICS = []ics.Feed{{ID: "x"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("feed without url should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RUNON_API_BASE_URL", "https://events.example.com")
	t.Setenv("RUNON_API_TOKEN", "secret")
	t.Setenv("RUNON_LISTEN", ":9999")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.API.BaseURL != "https://events.example.com" || cfg.API.Token != "secret" || cfg.Listen != ":9999" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("RUNON_TEST_ONLY_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RUNON_TEST_ONLY_KEY", "")
	os.Unsetenv("RUNON_TEST_ONLY_KEY")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("RUNON_TEST_ONLY_KEY"); got != "from-file" {
		t.Fatalf("RUNON_TEST_ONLY_KEY = %q", got)
	}
}

func TestTimeLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	if _, err := cfg.TimeLocation(); err == nil {
		t.Fatal("expected unknown zone error")
	}
	cfg.Timezone = ""
	loc, err := cfg.TimeLocation()
	if err != nil || loc != time.UTC {
		t.Fatalf("empty timezone = %v, %v", loc, err)
	}
}
