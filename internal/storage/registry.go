package storage

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/copilot_capture/internal/types"
)

// WriterRegistry manages one JSONLWriter per capture category. All writers
// of a registry share the run stamp, so a run produces one file per category.
type WriterRegistry struct {
	dir        string
	prefix     string
	runStamp   string
	maxSizeMB  int
	bufferSize int

	writers map[types.Category]*JSONLWriter
	closed  bool
	mu      sync.RWMutex
}

// ErrRegistryClosed is returned by GetWriter after Close.
var ErrRegistryClosed = errors.New("writer registry is closed")

// NewWriterRegistry creates a new WriterRegistry for managing per-category writers.
func NewWriterRegistry(dir, prefix, runStamp string, bufferSize int, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		dir:        dir,
		prefix:     prefix,
		runStamp:   runStamp,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[types.Category]*JSONLWriter),
	}
}

// GetWriter returns (or creates) the JSONLWriter for a category. After Close
// it returns ErrRegistryClosed instead of opening a new file.
func (r *WriterRegistry) GetWriter(category types.Category) (*JSONLWriter, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if writer, ok := r.writers[category]; ok {
		r.mu.RUnlock()
		return writer, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	// Double-check after acquiring write lock
	if writer, ok := r.writers[category]; ok {
		return writer, nil
	}

	writer := NewJSONLWriter(r.dir, CaptureLogName(r.prefix, category, r.runStamp), r.bufferSize, r.maxSizeMB)
	r.writers[category] = writer

	slog.Info("Created new JSONL writer", "category", category, "file", writer.Path())
	return writer, nil
}

// Paths returns the file path of every writer created so far.
func (r *WriterRegistry) Paths() map[types.Category]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.Category]string, len(r.writers))
	for category, writer := range r.writers {
		out[category] = writer.Path()
	}
	return out
}

// Close closes all managed writers. Paths keeps reporting their files.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for category, writer := range r.writers {
		if err := writer.Close(); err != nil {
			slog.Error("Failed to close writer", "category", category, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
