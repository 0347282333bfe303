package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestShouldSuggestFresh(t *testing.T) {
	state := DefaultUIState()

	if !state.ShouldSuggest(now, false) {
		t.Error("Expected hint to be suggested when never dismissed")
	}
	if state.ShouldSuggest(now, true) {
		t.Error("Expected no hint once a configuration is saved")
	}
}

func TestShouldSuggestCooldown(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"just dismissed", 0, false},
		{"six days", 6 * 24 * time.Hour, false},
		{"just under seven days", HintCooldown - time.Minute, false},
		{"seven days", HintCooldown, true},
		{"a month", 30 * 24 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DefaultUIState()
			state.Dismiss(now.Add(-tt.elapsed))
			if got := state.ShouldSuggest(now, false); got != tt.want {
				t.Errorf("ShouldSuggest after %v = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestAcceptedClearsDismissal(t *testing.T) {
	state := DefaultUIState()
	state.Dismiss(now)
	state.Accepted()

	if !state.SetupHint.DismissedAt.IsZero() {
		t.Error("Expected dismissal to be cleared")
	}
}

func TestLoadNonExistent(t *testing.T) {
	state := Load(filepath.Join(t.TempDir(), "missing"))

	if state == nil {
		t.Fatal("Load returned nil for non-existent file")
	}
	if !state.SetupHint.DismissedAt.IsZero() {
		t.Error("Expected default state to have no dismissal")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	state := DefaultUIState()
	state.Dismiss(now)

	if err := Save(tmpDir, state); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	path := filepath.Join(tmpDir, "ui-state.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("State file was not created")
	}

	loaded := Load(tmpDir)
	if !loaded.SetupHint.DismissedAt.Equal(now) {
		t.Errorf("Loaded dismissal %v, want %v", loaded.SetupHint.DismissedAt, now)
	}
	if loaded.ShouldSuggest(now.Add(24*time.Hour), false) {
		t.Error("Expected loaded dismissal to keep the hint hidden")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "subdir", "data")

	if err := Save(dataDir, DefaultUIState()); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "ui-state.json")); os.IsNotExist(err) {
		t.Error("State file was not created")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "ui-state.json")
	if err := os.WriteFile(path, []byte("invalid json {{{"), 0644); err != nil {
		t.Fatalf("Failed to write invalid JSON: %v", err)
	}

	state := Load(tmpDir)
	if state == nil {
		t.Fatal("Load returned nil for invalid JSON")
	}
	if !state.ShouldSuggest(now, false) {
		t.Error("Expected defaults when JSON is invalid")
	}
}
