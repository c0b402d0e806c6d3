package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/storyboard/internal/state"
)

// defaultSessionPath keeps the conversation state next to the config.
const defaultSessionPath = ".storyboard/session.json"

// loadSession reads a persisted session, or starts a fresh one when none
// exists yet.
func loadSession(path string) (*state.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.NewSession(), nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess state.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	return &sess, nil
}

// saveSession persists the session for the next turn.
func saveSession(path string, sess *state.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
