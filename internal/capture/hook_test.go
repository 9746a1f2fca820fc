package capture

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/copilot_capture/internal/storage"
	"github.com/dgnsrekt/copilot_capture/internal/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.FeedEvent
}

func (p *recordingPublisher) Publish(evt types.FeedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func newTestHook(t *testing.T, opts Options, dir string) *Hook {
	t.Helper()
	if opts.Hosts == nil {
		opts.Hosts = []string{"githubcopilot.com", "api.github.com"}
	}
	if opts.InterestKeywords == nil {
		opts.InterestKeywords = []string{"auth", "hmac", "github", "editor", "machine", "session", "client"}
	}
	if opts.MaxRecords == 0 {
		opts.MaxRecords = 100
	}
	h := NewHook(opts, nil, storage.NewSnapshotWriter(dir, "mitm-captured"), nil)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func copilotFlow(path string) *types.Flow {
	return &types.Flow{
		Method:  http.MethodPost,
		URL:     "https://api.githubcopilot.com" + path,
		Host:    "api.githubcopilot.com",
		Path:    path,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(`{"model":"gpt-4o"}`),
	}
}

func TestOnRequestClassifiesIntoExactlyOneCategory(t *testing.T) {
	h := newTestHook(t, Options{}, t.TempDir())

	cases := []struct {
		path string
		want types.Category
	}{
		{"/embeddings", types.CategoryEmbeddings},
		{"/v1/engines/copilot/embeddings?x=1", types.CategoryEmbeddings},
		{"/chat/completions", types.CategoryChat},
		{"/models", types.CategoryOther},
		{"/embeddings/chat/completions", types.CategoryEmbeddings},
	}

	counts := map[types.Category]int{}
	for _, tc := range cases {
		rec, ok := h.OnRequest(copilotFlow(tc.path))
		if !ok {
			t.Fatalf("OnRequest(%q) not captured", tc.path)
		}
		if rec.Category != tc.want {
			t.Fatalf("OnRequest(%q) category = %q; want %q", tc.path, rec.Category, tc.want)
		}
		counts[tc.want]++
	}

	for _, category := range types.Categories {
		records := h.Records(category, 0)
		if len(records) != counts[category] {
			t.Fatalf("Records(%q) = %d records; want %d", category, len(records), counts[category])
		}
		for _, rec := range records {
			if got := types.Classify(rec.Path); got != category {
				t.Fatalf("record with path %q stored in %q; classify says %q", rec.Path, category, got)
			}
		}
	}
}

func TestOnRequestHostGate(t *testing.T) {
	h := newTestHook(t, Options{}, t.TempDir())

	flow := copilotFlow("/chat/completions")
	flow.Host = "example.com"
	flow.URL = "https://example.com/chat/completions"
	if _, ok := h.OnRequest(flow); ok {
		t.Fatal("OnRequest() captured a request for a host outside the allow-list")
	}

	flow = copilotFlow("/user")
	flow.Host = "api.github.com"
	if _, ok := h.OnRequest(flow); !ok {
		t.Fatal("OnRequest() rejected api.github.com")
	}
}

func TestOnRequestFilterMatchesURLOrPath(t *testing.T) {
	h := newTestHook(t, Options{Filter: "Chat"}, t.TempDir())

	if _, ok := h.OnRequest(copilotFlow("/chat/completions")); !ok {
		t.Fatal("filter did not match path case-insensitively")
	}
	if _, ok := h.OnRequest(copilotFlow("/embeddings")); ok {
		t.Fatal("filter accepted a non-matching request")
	}
}

func TestOnRequestInterestHeaders(t *testing.T) {
	h := newTestHook(t, Options{}, t.TempDir())

	flow := copilotFlow("/chat/completions")
	flow.Headers = http.Header{
		"X-Github-Session-Token": {"abc"},
		"Authorization":          {"Bearer gho_x"},
		"Editor-Version":         {"vscode/1.95.0"},
		"Content-Length":         {"17"},
	}
	rec, ok := h.OnRequest(flow)
	if !ok {
		t.Fatal("OnRequest() not captured")
	}

	for _, name := range []string{"X-Github-Session-Token", "Authorization", "Editor-Version"} {
		if _, ok := rec.AuthHeaders[name]; !ok {
			t.Fatalf("AuthHeaders missing %q: %v", name, rec.AuthHeaders)
		}
	}
	if _, ok := rec.AuthHeaders["Content-Length"]; ok {
		t.Fatalf("AuthHeaders unexpectedly contains Content-Length: %v", rec.AuthHeaders)
	}
	if got := rec.AllHeaders["Content-Length"]; got != "17" {
		t.Fatalf("AllHeaders[Content-Length] = %q; want 17", got)
	}
}

func TestOnRequestBodyDecoding(t *testing.T) {
	h := newTestHook(t, Options{MaxBodyBytes: 64}, t.TempDir())

	cases := []struct {
		name string
		body string
		want string
	}{
		{"valid_json_is_compacted", "{ \"a\" : 1 }", `{"a":1}`},
		{"invalid_json_is_absent", "not valid json", ""},
		{"empty_body_is_absent", "", ""},
		{"oversized_body_is_absent", `{"pad":"` + strings.Repeat("x", 100) + `"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flow := copilotFlow("/chat/completions")
			flow.Body = []byte(tc.body)
			rec, ok := h.OnRequest(flow)
			if !ok {
				t.Fatal("OnRequest() not captured")
			}
			if got := string(rec.Body); got != tc.want {
				t.Fatalf("Body = %q; want %q", got, tc.want)
			}

			data, err := json.Marshal(rec)
			if err != nil {
				t.Fatalf("marshal record: %v", err)
			}
			hasBody := strings.Contains(string(data), `"body":`)
			if hasBody != (tc.want != "") {
				t.Fatalf("serialized record body presence = %v; record %s", hasBody, data)
			}
		})
	}
}

func TestPersistSkipsEmptyCategories(t *testing.T) {
	dir := t.TempDir()
	h := newTestHook(t, Options{}, dir)

	paths, err := h.Persist()
	if err != nil {
		t.Fatalf("Persist() on empty hook error = %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("Persist() on empty hook wrote %v", paths)
	}

	h.OnRequest(copilotFlow("/chat/completions"))
	h.OnRequest(copilotFlow("/chat/completions"))

	paths, err = h.Persist()
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if len(paths) != 1 || !strings.HasPrefix(filepath.Base(paths[0]), "mitm-captured-chat-") {
		t.Fatalf("Persist() paths = %v; want a single chat snapshot", paths)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var records []types.CapturedRequest
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("snapshot holds %d records; want the whole sequence of 2", len(records))
	}
}

func TestPersistFailureKeepsRecords(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	h := newTestHook(t, Options{}, filepath.Join(blocker, "temp"))

	h.OnRequest(copilotFlow("/embeddings"))
	if _, err := h.Persist(); err == nil {
		t.Fatal("Persist() error = nil; want mkdir failure")
	}
	if got := len(h.Records(types.CategoryEmbeddings, 0)); got != 1 {
		t.Fatalf("records after failed persist = %d; want 1", got)
	}
}

func TestOnResponseSnapshotMode(t *testing.T) {
	dir := t.TempDir()
	h := newTestHook(t, Options{SnapshotOnResponse: true}, dir)

	flow := copilotFlow("/embeddings")
	if _, ok := h.OnRequest(flow); !ok {
		t.Fatal("OnRequest() not captured")
	}
	flow.Response = &types.FlowResponse{StatusCode: http.StatusOK, Body: []byte(`{"data":[]}`)}
	h.OnResponse(flow)

	matches, err := filepath.Glob(filepath.Join(dir, "mitm-captured-embeddings-*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("snapshot files = %v; want one embeddings file", matches)
	}
	if got := h.Stats().Pending; got != 0 {
		t.Fatalf("pending after response = %d; want 0", got)
	}
}

func TestOnRequestAppendsToCaptureLog(t *testing.T) {
	dir := t.TempDir()
	registry := storage.NewWriterRegistry(dir, "mitm-captured", "20250101_000000", 16, 10)
	pub := &recordingPublisher{}
	h := NewHook(Options{Hosts: []string{"githubcopilot.com"}, MaxRecords: 10}, registry, nil, pub)
	defer func() { _ = h.Close() }()

	flow := copilotFlow("/chat/completions")
	h.OnRequest(flow)
	flow.Response = &types.FlowResponse{StatusCode: http.StatusOK}
	h.OnResponse(flow)

	if err := registry.Close(); err != nil {
		t.Fatalf("registry.Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "mitm-captured-chat-20250101_000000.jsonl"))
	if err != nil {
		t.Fatalf("read capture log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("capture log lines = %d; want 1", len(lines))
	}
	var rec types.CapturedRequest
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec.ID != flow.ID || rec.Category != types.CategoryChat {
		t.Fatalf("logged record = %+v; want id %q in chat", rec, flow.ID)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 || pub.events[0].EventType != types.FeedEventRequest || pub.events[1].EventType != types.FeedEventResponse {
		t.Fatalf("published events = %+v; want request then response", pub.events)
	}
}

func TestStatsCountsEvictions(t *testing.T) {
	h := newTestHook(t, Options{MaxRecords: 2}, t.TempDir())
	for i := 0; i < 3; i++ {
		h.OnRequest(copilotFlow("/models"))
	}
	st := h.Stats().Categories[types.CategoryOther]
	if st.Retained != 2 || st.Total != 3 || st.Evicted != 1 {
		t.Fatalf("stats = %+v; want retained 2 total 3 evicted 1", st)
	}
}

func TestOnRequestAfterShutdownOpensNoLog(t *testing.T) {
	dir := t.TempDir()
	registry := storage.NewWriterRegistry(dir, "mitm-captured", "20250101_000000", 16, 10)
	h := NewHook(Options{Hosts: []string{"githubcopilot.com"}, MaxRecords: 10}, registry, nil, nil)

	if _, ok := h.OnRequest(copilotFlow("/embeddings")); !ok {
		t.Fatal("OnRequest() before shutdown ok = false")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := registry.Close(); err != nil {
		t.Fatalf("registry.Close() error = %v", err)
	}

	if rec, ok := h.OnRequest(copilotFlow("/chat/completions")); ok || rec != nil {
		t.Fatalf("OnRequest() after Close = %+v, %v; want rejected", rec, ok)
	}
	if paths := registry.Paths(); len(paths) != 1 {
		t.Fatalf("writers after close = %v; want only embeddings", paths)
	}
	if _, err := os.Stat(filepath.Join(dir, "mitm-captured-chat-20250101_000000.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("chat log created after shutdown: %v", err)
	}
	if got := h.Stats().Categories[types.CategoryChat].Total; got != 0 {
		t.Fatalf("chat total after Close = %d; want 0", got)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestOnRequestLogsWhenRegistryClosedFirst(t *testing.T) {
	dir := t.TempDir()
	registry := storage.NewWriterRegistry(dir, "mitm-captured", "20250101_000000", 16, 10)
	h := NewHook(Options{Hosts: []string{"githubcopilot.com"}, MaxRecords: 10}, registry, nil, nil)
	defer func() { _ = h.Close() }()

	if err := registry.Close(); err != nil {
		t.Fatalf("registry.Close() error = %v", err)
	}
	if _, ok := h.OnRequest(copilotFlow("/chat/completions")); !ok {
		t.Fatal("OnRequest() ok = false; want record kept in memory")
	}
	if got := len(h.Records(types.CategoryChat, 0)); got != 1 {
		t.Fatalf("chat records = %d; want 1", got)
	}
	if paths := registry.Paths(); len(paths) != 0 {
		t.Fatalf("writers = %v; want none", paths)
	}
}
