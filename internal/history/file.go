package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Entry is one recorded bulk read job.
type Entry struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Module    string    `json:"module"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id"`
}

// FileLog keeps a JSON array of every job this tool has created. The file is
// the operator's record for finding job ids later, so a corrupt file is
// surfaced rather than silently replaced.
type FileLog struct {
	logger *zap.Logger
	path   string
}

func NewFileLog(path string, logger *zap.Logger) *FileLog {
	return &FileLog{logger: logger, path: path}
}

// Append adds entry to the log, creating the file on first use.
func (l *FileLog) Append(entry Entry) error {
	entries, err := l.Load()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job history: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job history: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace job history: %w", err)
	}

	l.logger.Debug("history.appended",
		zap.String("job_id", entry.ID),
		zap.String("path", l.path))
	return nil
}

// Load returns all recorded entries. A missing file yields an empty list.
func (l *FileLog) Load() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job history: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse job history %s: %w", l.path, err)
	}
	return entries, nil
}
