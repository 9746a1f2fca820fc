package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/types"
)

// SnapshotWriter writes whole category sequences as JSON array files.
type SnapshotWriter struct {
	dir    string
	prefix string
	now    func() time.Time
	mu     sync.Mutex
}

// NewSnapshotWriter creates a SnapshotWriter rooted at dir.
func NewSnapshotWriter(dir, prefix string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, prefix: prefix, now: time.Now}
}

// WriteCategory saves records to dir/{prefix}-{category}-{stamp}.json and
// returns the path. A file written within the same second is replaced.
func (w *SnapshotWriter) WriteCategory(category types.Category, records []types.CapturedRequest) (string, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: marshal %s: %w", category, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, SnapshotName(w.prefix, category, Stamp(w.now())))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Debug("snapshot temp cleanup failed", "path", tmp, "error", rmErr)
		}
		return "", fmt.Errorf("snapshot: rename %s: %w", path, err)
	}

	slog.Debug("Snapshot file written", "path", path, "records", len(records))
	return path, nil
}
