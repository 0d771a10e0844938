package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BaseDir returns the root data directory (~/.studyplan).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".studyplan"), nil
}

// LoadJSON reads the named feature file under base into v. A missing file
// is empty state and leaves v untouched. A corrupt file is backed up as
// <name>.corrupt and also treated as empty so one bad write never wedges
// the scheduler.
func LoadJSON(base, name string, v any) error {
	path := filepath.Join(base, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage error reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		fmt.Fprintf(os.Stderr, "Warning: corrupt JSON in %s (backed up to %s): %v\n", path, backupPath, err)
		return nil
	}
	return nil
}

// SaveJSON atomically writes v as indented JSON to the named feature file
// under base, creating the directory on first use.
func SaveJSON(base, name string, v any) error {
	path := filepath.Join(base, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}
