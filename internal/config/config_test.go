package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/planwise/studyplan/internal/config"
)

func TestLoadFromCreatesAnnotatedDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Scheduler.Enabled {
		t.Error("default config must enable the scheduler")
	}
	if cfg.Scheduler.CheckIntervalMinutes != config.DefaultCheckIntervalMinutes {
		t.Errorf("check interval = %d", cfg.Scheduler.CheckIntervalMinutes)
	}

	// First run writes the annotated template.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("template file empty")
	}

	// The template itself parses on the next load.
	again, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Scheduler.DayEndHour != config.DefaultDayEndHour {
		t.Errorf("day end hour = %d after reload", again.Scheduler.DayEndHour)
	}
}

func TestLoadFromStripsCommentsAndBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `// partial config
{
  // only one knob set
  "scheduler": {
    "enabled": true,
    "max_push_count": 5
  }
}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.MaxPushCount != 5 {
		t.Errorf("max push count = %d, want 5", cfg.Scheduler.MaxPushCount)
	}
	if cfg.Scheduler.WorkDayStartHour != config.DefaultWorkDayStartHour {
		t.Errorf("work day start = %d, want backfilled default", cfg.Scheduler.WorkDayStartHour)
	}
	if cfg.Calendar.TenantID != config.DefaultTenantID {
		t.Errorf("tenant = %q, want backfilled default", cfg.Calendar.TenantID)
	}
}

// A config that never mentions the scheduler section keeps the feature
// enabled; only an explicit "enabled": false turns it off.
func TestLoadFromOmittedBooleansKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "calendar": {
    "tenant_id": "my-tenant"
  }
}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Scheduler.Enabled {
		t.Error("scheduler disabled by an omitted section")
	}
	if !cfg.Scheduler.PushEnabled {
		t.Error("push disabled by an omitted section")
	}
	if cfg.Calendar.TenantID != "my-tenant" {
		t.Errorf("tenant = %q, want my-tenant", cfg.Calendar.TenantID)
	}
	if cfg.Calendar.ClientID != config.DefaultClientID {
		t.Errorf("client id = %q, want default", cfg.Calendar.ClientID)
	}
}

func TestLoadFromExplicitDisableRespected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"scheduler": {"enabled": false, "push_enabled": false}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.Enabled {
		t.Error("explicit enabled=false ignored")
	}
	if cfg.Scheduler.PushEnabled {
		t.Error("explicit push_enabled=false ignored")
	}
}

func TestLoadFromRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}
