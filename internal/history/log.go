package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"postergen/internal/domain"
)

// Store is the append-only history log the pipeline writes finalized records
// to. Writes are serialized; readers see a consistent snapshot.
type Store interface {
	Append(ctx context.Context, record domain.HistoryRecord) error
	List(ctx context.Context) ([]domain.HistoryRecord, error)
}

// FileLog persists history as a single JSON array on the local filesystem.
// A mutex enforces the single-writer rule so concurrent pipeline runs never
// interleave entries.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog initializes a FileLog at path, creating parent directories as
// needed.
func NewFileLog(path string) (*FileLog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: ensure directory: %w", err)
		}
	}
	return &FileLog{path: path}, nil
}

// Append adds one record to the end of the log. The whole file is rewritten
// through a temp file and rename so a crashed writer never leaves a torn log.
func (l *FileLog) Append(ctx context.Context, record domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return err
	}
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}

// List returns all records in insertion order.
func (l *FileLog) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *FileLog) load() ([]domain.HistoryRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []domain.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	return records, nil
}

var _ Store = (*FileLog)(nil)
