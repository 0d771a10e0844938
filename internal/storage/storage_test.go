package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/storage"
)

func TestLoadJSONNotExist(t *testing.T) {
	base := t.TempDir()
	var ops []model.RescheduleOperation
	if err := storage.LoadJSON(base, "reschedule-history.json", &ops); err != nil {
		t.Fatalf("LoadJSON on missing file: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("ops = %d, want 0", len(ops))
	}
}

func TestSaveJSONAndLoadJSON(t *testing.T) {
	base := t.TempDir()
	ts := time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)
	ops := []model.RescheduleOperation{
		{
			ID:        "op-1",
			SessionID: "session-1",
			Strategy:  model.StrategySameDaySlot,
			Timestamp: ts,
		},
	}

	if err := storage.SaveJSON(base, "reschedule-history.json", ops); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	var loaded []model.RescheduleOperation
	if err := storage.LoadJSON(base, "reschedule-history.json", &loaded); err != nil {
		t.Fatalf("LoadJSON after save: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded = %d, want 1", len(loaded))
	}
	if loaded[0].ID != "op-1" {
		t.Errorf("ID = %q, want %q", loaded[0].ID, "op-1")
	}
	if loaded[0].Strategy != model.StrategySameDaySlot {
		t.Errorf("Strategy = %q, want %q", loaded[0].Strategy, model.StrategySameDaySlot)
	}
}

func TestLoadJSONCorruptBacksUp(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "audit.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	var ops []model.RescheduleOperation
	if err := storage.LoadJSON(base, "audit.json", &ops); err != nil {
		t.Fatalf("LoadJSON on corrupt file: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("ops = %d, want 0", len(ops))
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Errorf("expected corrupt backup file: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected original file to be moved aside")
	}
}
