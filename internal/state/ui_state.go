// Package state keeps small UI preferences between runs.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bridgestowork/bridges-forms/internal/logger"
)

// HintCooldown is how long a dismissed setup hint stays hidden.
const HintCooldown = 7 * 24 * time.Hour

const fileName = "ui-state.json"

// UIState holds persistent UI preferences that carry across sessions.
type UIState struct {
	SetupHint SetupHintState `json:"setup_hint"`
}

// SetupHintState records when the "save your setup" hint was last dismissed.
type SetupHintState struct {
	DismissedAt time.Time `json:"dismissed_at,omitempty"`
}

// DefaultUIState returns the state used when nothing was saved yet.
func DefaultUIState() *UIState {
	return &UIState{}
}

// ShouldSuggest reports whether the setup hint is shown. It is never shown
// once a saved configuration exists, and stays hidden for HintCooldown after
// a dismissal.
func (s *UIState) ShouldSuggest(now time.Time, configSaved bool) bool {
	if configSaved {
		return false
	}
	if s.SetupHint.DismissedAt.IsZero() {
		return true
	}
	return now.Sub(s.SetupHint.DismissedAt) >= HintCooldown
}

// Dismiss hides the hint starting at now.
func (s *UIState) Dismiss(now time.Time) {
	s.SetupHint.DismissedAt = now
}

// Accepted clears the dismissal once the user saved their setup.
func (s *UIState) Accepted() {
	s.SetupHint.DismissedAt = time.Time{}
}

// Load reads the UI state from <dataDir>/ui-state.json.
// Returns default state if the file doesn't exist or on error.
func Load(dataDir string) *UIState {
	path := filepath.Join(dataDir, fileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultUIState()
	}
	if err != nil {
		logger.Warn("Failed to read UI state file: %v", err)
		return DefaultUIState()
	}

	var state UIState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("Failed to parse UI state JSON: %v", err)
		return DefaultUIState()
	}

	return &state
}

// Save writes the UI state to <dataDir>/ui-state.json, creating the
// directory if needed.
func Save(dataDir string, state *UIState) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, fileName)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling UI state: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing UI state file: %w", err)
	}

	logger.Debug("UI state saved to %s", path)
	return nil
}
