package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"runon/internal/calendar"
	"runon/internal/ics"
	"runon/internal/model"
)

const (
	SourceAPI = "api"
	SourceICS = "ics"
)

// APIConfig points at the events backend.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Token          string `yaml:"token,omitempty" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone calendar days are computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the first column of the month grid, any English
	// weekday name. Defaults to "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule for background reloads. Empty
	// disables periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Source selects where events come from: "api" or "ics".
	Source string `yaml:"source" json:"source"`

	API APIConfig `yaml:"api" json:"api"`

	// ICS feeds are read when Source is "ics".
	ICS         []ics.Feed `yaml:"ics" json:"ics"`
	ICSCacheDir string     `yaml:"ics_cache_dir" json:"ics_cache_dir"`
	HorizonDays int        `yaml:"horizon_days" json:"horizon_days"`

	// BackfillDays keeps recently finished occurrences visible.
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// SearchRadiusKm bounds location searches against ICS feeds.
	SearchRadiusKm float64 `yaml:"search_radius_km" json:"search_radius_km"`

	// HomeLocation, if set, is reported as the initial known location.
	HomeLocation *model.Coordinate `yaml:"home_location,omitempty" json:"home_location,omitempty"`

	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "UTC",
		WeekStart:      "sunday",
		RefreshCron:    "*/15 * * * *",
		LogLevel:       "info",
		Source:         SourceAPI,
		API:            APIConfig{BaseURL: "http://127.0.0.1:8000", TimeoutSeconds: 15},
		ICS:            []ics.Feed{},
		ICSCacheDir:    "./var/ics-cache",
		HorizonDays:    180,
		BackfillDays:   7,
		SearchRadiusKm: 50,
		CORSOrigins:    []string{},
	}
}

// Normalize fills in missing or invalid values so partially written
// configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if _, err := calendar.ParseWeekStart(c.WeekStart); err != nil {
		c.WeekStart = def.WeekStart
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	switch c.Source {
	case SourceAPI, SourceICS:
	default:
		c.Source = SourceAPI
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = def.API.TimeoutSeconds
	}
	if c.ICS == nil {
		c.ICS = []ics.Feed{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = c.ICS[i].Name
		}
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = "feed-" + strconv.Itoa(i+1)
		}
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = def.BackfillDays
	}
	if c.SearchRadiusKm <= 0 {
		c.SearchRadiusKm = def.SearchRadiusKm
	}
	if c.HomeLocation != nil && !c.HomeLocation.Valid() {
		c.HomeLocation = nil
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Source == SourceICS && len(c.ICS) == 0 {
		return errors.New("config: source is ics but no ics feeds are configured")
	}
	for _, f := range c.ICS {
		if f.URL == "" {
			return errors.New("config: ics feed " + f.ID + " has no url")
		}
	}
	return nil
}

// WeekStartDay returns the parsed week start, Sunday when unset or invalid.
func (c *Config) WeekStartDay() time.Weekday {
	wd, err := calendar.ParseWeekStart(c.WeekStart)
	if err != nil {
		return time.Sunday
	}
	return wd
}

// TimeLocation resolves Timezone, falling back to UTC.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Timeout is the API request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Horizon is how far ahead ICS recurrences are expanded.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// Backfill is how far behind now ICS occurrences are still listed.
func (c *Config) Backfill() time.Duration {
	return time.Duration(c.BackfillDays) * 24 * time.Hour
}

// LoadEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides file settings with RUNON_* environment variables.
// The API token is normally supplied this way so it never lands in the
// YAML file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RUNON_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("RUNON_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("RUNON_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("RUNON_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RUNON_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 permissions and returned.
//   - Otherwise the YAML is read, unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".runon-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
