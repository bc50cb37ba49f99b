package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Checkpoint is the persisted session snapshot used to resume correctly
// after a restart. The file metadata is used only to validate that the
// referenced daily file is genuine during recovery.
type Checkpoint struct {
	Timestamp       string `json:"timestamp"`
	FilePath        string `json:"file_path"`
	Recording       bool   `json:"recording"`
	LastCreationDay int    `json:"last_creation_day"` // day of year, -1 when none
	Day             int    `json:"day"`
	Year            int    `json:"year"`
	RainPulseTotal  uint64 `json:"rain_pulse_total"`
	StartedAt       int64  `json:"started_at"` // unix seconds of process start
	FileCreatedAt   int64  `json:"file_created_at,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
}

// CheckpointStore writes the snapshot to a primary path and duplicates it to
// a backup path, so one torn write cannot erase the last known state.
type CheckpointStore struct {
	path   string
	backup string
}

func NewCheckpointStore(path, backup string) *CheckpointStore {
	return &CheckpointStore{path: path, backup: backup}
}

// Save persists cp to both paths. The backup failing alone is not an error;
// losing both copies is.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	primaryErr := os.WriteFile(s.path, data, 0o644)
	backupErr := os.WriteFile(s.backup, data, 0o644)
	if primaryErr != nil && backupErr != nil {
		return fmt.Errorf("persist checkpoint: %w", primaryErr)
	}
	return nil
}

// Load reads the snapshot, falling back to the backup when the primary is
// absent or unreadable. A missing checkpoint returns (nil, nil).
func (s *CheckpointStore) Load() (*Checkpoint, error) {
	var lastErr error
	for _, path := range []string{s.path, s.backup} {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				lastErr = err
			}
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			lastErr = fmt.Errorf("decode %s: %w", path, err)
			continue
		}
		return &cp, nil
	}
	return nil, lastErr
}

// Clear removes both copies. Called when a day's window closes cleanly.
func (s *CheckpointStore) Clear() error {
	var firstErr error
	for _, path := range []string{s.path, s.backup} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

const checkpointTimeLayout = "2006-01-02 15:04:05"

func checkpointTimestamp(t time.Time) string {
	return t.Format(checkpointTimeLayout)
}
