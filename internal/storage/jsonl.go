package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrBufferFull is returned when a record cannot be queued without blocking.
var ErrBufferFull = errors.New("buffer full")

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("writer is closed")

// JSONLWriter appends JSON lines to a single size-rotated file.
type JSONLWriter struct {
	dir       string
	filename  string
	maxSizeMB int
	writeCh   chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *lumberjack.Logger
	mu        sync.Mutex

	// stateMu orders Write sends against Close so no record is queued
	// after the final drain.
	stateMu sync.RWMutex
	closed  bool
}

// NewJSONLWriter creates an async JSONL writer for dir/filename. The
// directory is created on first write.
func NewJSONLWriter(dir, filename string, bufferSize int, maxSizeMB int) *JSONLWriter {
	w := &JSONLWriter{
		dir:       dir,
		filename:  filename,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Path returns the active file path.
func (w *JSONLWriter) Path() string {
	return filepath.Join(w.dir, w.filename)
}

// Write queues a record for async writing
func (w *JSONLWriter) Write(record any) error {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		// Channel full, log warning but don't block
		slog.Warn("JSONL write buffer full, dropping record", "file", w.filename)
		return ErrBufferFull
	}
}

// Close shuts down the writer and flushes pending data
func (w *JSONLWriter) Close() error {
	w.closeOnce.Do(func() {
		w.stateMu.Lock()
		w.closed = true
		close(w.done)
		w.stateMu.Unlock()
	})
	w.wg.Wait()

	// Drain remaining items with timeout
	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("JSONL writer close timeout, some records may be lost", "file", w.filename)
			goto done
		default:
			goto done
		}
	}

done:
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal record", "error", err, "file", w.filename)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.logger == nil {
		if err := w.open(); err != nil {
			slog.Error("Failed to open JSONL file", "error", err, "file", w.filename)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write record", "error", err, "file", w.filename)
	}
}

func (w *JSONLWriter) open() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", w.dir, err)
	}

	w.logger = &lumberjack.Logger{
		Filename:   w.Path(),
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100, // Keep many backups
		Compress:   false,
		LocalTime:  true,
	}

	slog.Info("Opened new JSONL file", "file", w.Path())
	return nil
}
