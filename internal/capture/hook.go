package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/storage"
	"github.com/dgnsrekt/copilot_capture/internal/types"
	"github.com/google/uuid"
)

const (
	headerPreviewBytes = 50
	bodyPreviewBytes   = 500
)

// Publisher receives live capture events.
type Publisher interface {
	Publish(evt types.FeedEvent)
}

// Options configures the capture gate and retention.
type Options struct {
	// Hosts is matched by substring against the request host. Empty accepts
	// every host.
	Hosts []string
	// Filter is matched case-insensitively against URL and path. Empty
	// accepts everything that passed the host gate.
	Filter           string
	InterestKeywords []string
	MaxRecords       int
	MaxBodyBytes     int
	// SnapshotOnResponse rewrites the snapshot files after every response.
	SnapshotOnResponse bool
}

// Hook receives flows from the interception runtime, records the Copilot
// requests among them and persists them.
type Hook struct {
	hosts        []string
	filter       string
	keywords     []string
	maxBodyBytes int
	snapshotMode bool

	registry  *storage.WriterRegistry
	snapshots *storage.SnapshotWriter
	publisher Publisher

	mu        sync.Mutex
	sequences map[types.Category]*Sequence

	pending   map[string]*types.PendingRequest
	pendingMu sync.Mutex

	now  func() time.Time
	done chan struct{}

	// closeMu is held for reading by OnRequest, so Close waits for
	// in-flight captures and later flows are refused.
	closeMu sync.RWMutex
	closed  bool
}

// NewHook creates a Hook. registry may be nil when records are only kept in
// snapshots; publisher may be nil.
func NewHook(opts Options, registry *storage.WriterRegistry, snapshots *storage.SnapshotWriter, publisher Publisher) *Hook {
	h := &Hook{
		hosts:        lowerAll(opts.Hosts),
		filter:       strings.ToLower(strings.TrimSpace(opts.Filter)),
		keywords:     lowerAll(opts.InterestKeywords),
		maxBodyBytes: opts.MaxBodyBytes,
		snapshotMode: opts.SnapshotOnResponse,
		registry:     registry,
		snapshots:    snapshots,
		publisher:    publisher,
		sequences:    make(map[types.Category]*Sequence, len(types.Categories)),
		pending:      make(map[string]*types.PendingRequest),
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, c := range types.Categories {
		h.sequences[c] = NewSequence(opts.MaxRecords)
	}
	go h.cleanupLoop()
	return h
}

// Accepts reports whether a request passes the host gate and the filter.
func (h *Hook) Accepts(host, url, path string) bool {
	if !h.AcceptsHost(host) {
		return false
	}
	if h.filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), h.filter) || strings.Contains(strings.ToLower(path), h.filter)
}

// AcceptsHost reports whether a host passes the host gate alone. The proxy
// uses it to decide which CONNECT tunnels to decrypt.
func (h *Hook) AcceptsHost(host string) bool {
	if len(h.hosts) == 0 {
		return true
	}
	lowerHost := strings.ToLower(host)
	for _, allowed := range h.hosts {
		if strings.Contains(lowerHost, allowed) {
			return true
		}
	}
	return false
}

// OnRequest records an intercepted request. It returns the record and true
// when the flow was captured.
func (h *Hook) OnRequest(flow *types.Flow) (*types.CapturedRequest, bool) {
	if flow == nil || !h.Accepts(flow.Host, flow.URL, flow.Path) {
		return nil, false
	}

	h.closeMu.RLock()
	defer h.closeMu.RUnlock()
	if h.closed {
		slog.Warn("Capture closed, request not recorded", "method", flow.Method, "url", flow.URL)
		return nil, false
	}

	id := flow.ID
	if id == "" {
		id = uuid.NewString()
		flow.ID = id
	}

	slog.Info("Intercepted request", "flow_id", id, "method", flow.Method, "url", flow.URL)

	authHeaders := interestHeaders(flow.Headers, h.keywords)
	for name, value := range authHeaders {
		slog.Debug("Interest header", "flow_id", id, "name", name, "value", preview(value, headerPreviewBytes))
	}

	body := h.decodeBody(id, "request", flow.Body)
	if body != nil {
		slog.Debug("Request body preview", "flow_id", id, "body", preview(indent(body), bodyPreviewBytes))
	}

	category := types.Classify(flow.Path)
	rec := types.CapturedRequest{
		ID:          id,
		Category:    category,
		Timestamp:   h.now(),
		Method:      flow.Method,
		URL:         flow.URL,
		Host:        flow.Host,
		Path:        flow.Path,
		AuthHeaders: authHeaders,
		AllHeaders:  flattenHeaders(flow.Headers),
		Body:        body,
	}

	h.mu.Lock()
	seq := h.sequences[category]
	evicted := seq.Append(rec)
	retained := seq.Len()
	h.mu.Unlock()

	if evicted {
		slog.Debug("Evicted oldest record", "category", category, "retained", retained)
	}
	slog.Info("Categorized request", "flow_id", id, "category", category, "retained", retained)

	h.pendingMu.Lock()
	h.pending[id] = &types.PendingRequest{Category: category, URL: flow.URL, Timestamp: rec.Timestamp}
	h.pendingMu.Unlock()

	if h.registry != nil {
		if err := h.appendLog(category, rec); err != nil {
			slog.Error("Failed to queue captured request", "flow_id", id, "category", category, "error", err)
		}
	}

	h.publish(types.FeedEvent{
		Timestamp: rec.Timestamp,
		EventType: types.FeedEventRequest,
		FlowID:    id,
		Category:  category,
		Method:    rec.Method,
		URL:       rec.URL,
		Record:    &rec,
	})

	return &rec, true
}

// OnResponse logs the response of a captured flow. The response body is
// decoded for the log preview only and never stored.
func (h *Hook) OnResponse(flow *types.Flow) {
	if flow == nil || !h.Accepts(flow.Host, flow.URL, flow.Path) {
		return
	}

	h.pendingMu.Lock()
	pending, ok := h.pending[flow.ID]
	if ok {
		delete(h.pending, flow.ID)
	}
	h.pendingMu.Unlock()

	category := types.Classify(flow.Path)
	var duration time.Duration
	if ok {
		category = pending.Category
		duration = h.now().Sub(pending.Timestamp)
	}

	status := 0
	if flow.Response != nil {
		status = flow.Response.StatusCode
		slog.Info("Response received",
			"flow_id", flow.ID,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"truncated", flow.Response.Truncated,
		)
		if body := h.decodeBody(flow.ID, "response", flow.Response.Body); body != nil {
			slog.Debug("Response body preview", "flow_id", flow.ID, "body", preview(indent(body), bodyPreviewBytes))
		}
	} else {
		slog.Warn("Flow finished without response", "flow_id", flow.ID, "url", flow.URL)
	}

	h.publish(types.FeedEvent{
		Timestamp:  h.now(),
		EventType:  types.FeedEventResponse,
		FlowID:     flow.ID,
		Category:   category,
		Method:     flow.Method,
		URL:        flow.URL,
		StatusCode: status,
		DurationMS: duration.Milliseconds(),
	})

	if h.snapshotMode {
		if _, err := h.Persist(); err != nil {
			slog.Error("Failed to persist captured requests", "error", err)
		}
	}
}

// Persist writes every non-empty category sequence to a new snapshot file
// and returns the written paths. A failing category does not stop the
// others, and in-memory records are kept either way.
func (h *Hook) Persist() ([]string, error) {
	if h.snapshots == nil {
		return nil, errors.New("persist: no snapshot writer configured")
	}

	var (
		paths []string
		errs  []error
	)
	for _, category := range types.Categories {
		h.mu.Lock()
		records := h.sequences[category].Snapshot()
		h.mu.Unlock()

		if len(records) == 0 {
			continue
		}
		path, err := h.snapshots.WriteCategory(category, records)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Info("Saved captured requests", "category", category, "count", len(records), "file", path)
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

// Records returns up to limit of the newest retained records of a category,
// oldest first. limit <= 0 returns all of them.
func (h *Hook) Records(category types.Category, limit int) []types.CapturedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()

	seq, ok := h.sequences[category]
	if !ok {
		return nil
	}
	return seq.Last(limit)
}

// CategoryStats summarizes one category sequence.
type CategoryStats struct {
	Retained int `json:"retained"`
	Total    int `json:"total"`
	Evicted  int `json:"evicted"`
}

// Stats summarizes the capture session.
type Stats struct {
	Categories map[types.Category]CategoryStats `json:"categories"`
	Pending    int                              `json:"pending"`
	Files      map[types.Category]string        `json:"files,omitempty"`
}

// Stats returns per-category counters and the active log files.
func (h *Hook) Stats() Stats {
	out := Stats{Categories: make(map[types.Category]CategoryStats, len(types.Categories))}

	h.mu.Lock()
	for category, seq := range h.sequences {
		out.Categories[category] = CategoryStats{Retained: seq.Len(), Total: seq.Total(), Evicted: seq.Evicted()}
	}
	h.mu.Unlock()

	h.pendingMu.Lock()
	out.Pending = len(h.pending)
	h.pendingMu.Unlock()

	if h.registry != nil {
		out.Files = h.registry.Paths()
	}
	return out
}

// Close refuses further requests, waits for captures in progress, stops
// background cleanup and, in snapshot mode, writes the final snapshot.
// Writers passed to NewHook are closed by their owner, after Close.
func (h *Hook) Close() error {
	h.closeMu.Lock()
	if h.closed {
		h.closeMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	h.closeMu.Unlock()

	if h.snapshotMode {
		_, err := h.Persist()
		return err
	}
	return nil
}

func (h *Hook) appendLog(category types.Category, rec types.CapturedRequest) error {
	w, err := h.registry.GetWriter(category)
	if err != nil {
		return err
	}
	return w.Write(rec)
}

func (h *Hook) publish(evt types.FeedEvent) {
	if h.publisher != nil {
		h.publisher.Publish(evt)
	}
}

// decodeBody returns the compacted JSON body, or nil when the payload is
// empty, too large or not JSON.
func (h *Hook) decodeBody(flowID, direction string, body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if _, truncated, originalSize, sum := truncateBytes(trimmed, h.maxBodyBytes); truncated {
		slog.Warn("Body exceeds capture limit, not decoded",
			"flow_id", flowID,
			"direction", direction,
			"original_size", originalSize,
			"sha256", sum,
		)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func (h *Hook) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupStale()
		case <-h.done:
			return
		}
	}
}

func (h *Hook) cleanupStale() {
	threshold := h.now().Add(-5 * time.Minute)

	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	for id, pending := range h.pending {
		if pending.Timestamp.Before(threshold) {
			delete(h.pending, id)
		}
	}
}
