package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration for studyplan, stored in
// ~/.studyplan/config.json. The file supports single-line // comments for
// documentation purposes.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Calendar  CalendarConfig  `json:"calendar"`
}

// SchedulerConfig holds the tunables of the scheduling and auto-reschedule
// engine. Each knob is independently adjustable.
type SchedulerConfig struct {
	// Enabled toggles all automated rescheduling work. When false, every
	// gated code path is suppressed and audited instead of executed.
	Enabled bool `json:"enabled"`
	// PushEnabled allows the same-day-pushed strategy to displace
	// lower-priority sessions.
	PushEnabled bool `json:"push_enabled"`
	// MaxPushCount caps how many sessions one reschedule may displace.
	MaxPushCount int `json:"max_push_count"`
	// CheckIntervalMinutes is the missed-session detection period.
	CheckIntervalMinutes int `json:"check_interval_minutes"`
	// MaxStudyMinutesPerDay caps auto-scheduled study time per day.
	MaxStudyMinutesPerDay int `json:"max_study_minutes_per_day"`
	// WorkDayStartHour / WorkDayEndHour bound the auto-scheduling window.
	WorkDayStartHour int `json:"work_day_start_hour"`
	WorkDayEndHour   int `json:"work_day_end_hour"`
	// DayEndHour is the last hour of the day considered for same-day
	// rescheduling (e.g. 21 means nothing is placed past 21:00).
	DayEndHour int `json:"day_end_hour"`
	// BlockGapMinutes is the largest gap between sessions still merged
	// into one calendar block.
	BlockGapMinutes int `json:"block_gap_minutes"`
}

// CalendarConfig holds external calendar settings.
type CalendarConfig struct {
	// TenantID is the Azure AD tenant. Use "common" for personal accounts.
	TenantID string `json:"tenant_id"`
	// ClientID is the Azure app (client) ID for the OAuth2 device code flow.
	ClientID string `json:"client_id"`
	// Timezone is the IANA timezone for event times (e.g. "Europe/Berlin").
	// Empty = UTC.
	Timezone string `json:"timezone"`
	// ICS lists read-only ICS subscription feeds whose events count as
	// busy time during scheduling.
	ICS []ICSSource `json:"ics"`
}

// ICSSource describes a single ICS subscription feed.
type ICSSource struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

const (
	// DefaultTenantID is the Microsoft "common" tenant.
	DefaultTenantID = "common"
	// DefaultClientID is the well-known public Azure CLI app ID. It supports
	// device code flow without a client secret. Replace with your own
	// registered app ID for organisational deployments.
	DefaultClientID = "04b07795-8542-4c4a-95af-30b2c573d5ab"

	DefaultMaxPushCount          = 2
	DefaultCheckIntervalMinutes  = 15
	DefaultMaxStudyMinutesPerDay = 360
	DefaultWorkDayStartHour      = 9
	DefaultWorkDayEndHour        = 17
	DefaultDayEndHour            = 21
	DefaultBlockGapMinutes       = 15
)

// defaultConfig returns a Config pre-filled with sensible defaults.
func defaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Enabled:               true,
			PushEnabled:           true,
			MaxPushCount:          DefaultMaxPushCount,
			CheckIntervalMinutes:  DefaultCheckIntervalMinutes,
			MaxStudyMinutesPerDay: DefaultMaxStudyMinutesPerDay,
			WorkDayStartHour:      DefaultWorkDayStartHour,
			WorkDayEndHour:        DefaultWorkDayEndHour,
			DayEndHour:            DefaultDayEndHour,
			BlockGapMinutes:       DefaultBlockGapMinutes,
		},
		Calendar: CalendarConfig{
			TenantID: DefaultTenantID,
			ClientID: DefaultClientID,
			Timezone: "",
			ICS:      []ICSSource{},
		},
	}
}

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing.
const configTemplate = `// studyplan configuration – ~/.studyplan/config.json
//
// All settings are optional; the built-in defaults shown below work out of
// the box. Edit this file to customise scheduling behaviour.
{
  // ── Scheduling & auto-reschedule ─────────────────────────────────────────
  "scheduler": {
    // Master switch for all automated rescheduling.
    "enabled": true,

    // Allow the engine to push lower-priority sessions aside when no free
    // slot exists on the same day.
    "push_enabled": true,

    // Maximum number of sessions a single reschedule may push.
    "max_push_count": 2,

    // How often (minutes) to check for missed sessions in watch mode.
    "check_interval_minutes": 15,

    // Daily cap on auto-scheduled study minutes.
    "max_study_minutes_per_day": 360,

    // Work window used for initial placement.
    "work_day_start_hour": 9,
    "work_day_end_hour": 17,

    // Same-day reschedules never run past this hour.
    "day_end_hour": 21,

    // Sessions closer together than this (minutes) merge into one
    // calendar block.
    "block_gap_minutes": 15
  },

  // ── External calendar ────────────────────────────────────────────────────
  "calendar": {
    // Azure AD tenant ID: "common" for personal Microsoft accounts.
    "tenant_id": "common",

    // Azure application (client) ID for the OAuth2 device code flow.
    "client_id": "04b07795-8542-4c4a-95af-30b2c573d5ab",

    // IANA timezone for interpreting calendar event times. Empty = UTC.
    "timezone": "",

    // ICS subscription feeds whose events count as busy time, e.g.
    //   { "url": "https://example.org/lectures.ics", "name": "Lectures" }
    "ics": []
  }
}
`

// configFilePath returns the path to ~/.studyplan/config.json.
func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".studyplan", "config.json"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// Load reads ~/.studyplan/config.json, creating it with annotated defaults
// on first run.
func Load() (Config, error) {
	path, err := configFilePath()
	if err != nil {
		return defaultConfig(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from an explicit path; used by tests and by the
// --config flag.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
		return defaultConfig(), nil
	}
	if err != nil {
		return defaultConfig(), fmt.Errorf("reading config file %s: %w", path, err)
	}

	cleaned := stripLineComments(data)
	// Decoding over the defaults keeps omitted fields, booleans included,
	// at their default values; normalize only repairs invalid ones.
	cfg := defaultConfig()
	if err := json.Unmarshal(cleaned, &cfg); err != nil {
		return defaultConfig(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize fills zero-value fields with built-in defaults so callers always
// get a usable Config even if the user only partially fills in the file.
func (c *Config) normalize() {
	s := &c.Scheduler
	if s.MaxPushCount <= 0 {
		s.MaxPushCount = DefaultMaxPushCount
	}
	if s.CheckIntervalMinutes <= 0 {
		s.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	if s.MaxStudyMinutesPerDay <= 0 {
		s.MaxStudyMinutesPerDay = DefaultMaxStudyMinutesPerDay
	}
	if s.WorkDayStartHour <= 0 {
		s.WorkDayStartHour = DefaultWorkDayStartHour
	}
	if s.WorkDayEndHour <= 0 || s.WorkDayEndHour <= s.WorkDayStartHour {
		s.WorkDayEndHour = DefaultWorkDayEndHour
		if s.WorkDayEndHour <= s.WorkDayStartHour {
			s.WorkDayEndHour = s.WorkDayStartHour + 8
		}
	}
	if s.DayEndHour <= 0 {
		s.DayEndHour = DefaultDayEndHour
	}
	if s.BlockGapMinutes <= 0 {
		s.BlockGapMinutes = DefaultBlockGapMinutes
	}

	if c.Calendar.TenantID == "" {
		c.Calendar.TenantID = DefaultTenantID
	}
	if c.Calendar.ClientID == "" {
		c.Calendar.ClientID = DefaultClientID
	}
	if c.Calendar.ICS == nil {
		c.Calendar.ICS = []ICSSource{}
	}
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
