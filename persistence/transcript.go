package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTranscript saves a snapshot as indented JSON at path, creating parent
// directories as needed.
func WriteTranscript(path string, snapshot *SessionSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadTranscript loads a snapshot previously written by WriteTranscript.
func ReadTranscript(path string) (*SessionSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return &snapshot, nil
}
