package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/capture"
	"github.com/dgnsrekt/copilot_capture/internal/types"
)

type recordingHook struct {
	*capture.Hook

	mu        sync.Mutex
	responses []*types.Flow
	done      chan struct{}
}

func (r *recordingHook) OnResponse(flow *types.Flow) {
	r.Hook.OnResponse(flow)
	r.mu.Lock()
	r.responses = append(r.responses, flow)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func newProxyClient(t *testing.T, hook Hook, maxBody int) *http.Client {
	t.Helper()
	srv, err := New(hook, Options{MaxBodyBytes: maxBody})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	proxySrv := httptest.NewServer(srv.Handler())
	t.Cleanup(proxySrv.Close)

	proxyURL, err := url.Parse(proxySrv.URL)
	if err != nil {
		t.Fatalf("parse proxy url: %v", err)
	}
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   5 * time.Second,
	}
}

func TestProxyCapturesRequestAndForwardsBodies(t *testing.T) {
	var upstreamBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		upstreamBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0}]}`)
	}))
	defer upstream.Close()

	inner := capture.NewHook(capture.Options{Hosts: []string{"127.0.0.1"}, InterestKeywords: []string{"editor"}, MaxRecords: 10}, nil, nil, nil)
	defer func() { _ = inner.Close() }()
	hook := &recordingHook{Hook: inner, done: make(chan struct{}, 1)}
	client := newProxyClient(t, hook, 1024)

	req, err := http.NewRequest(http.MethodPost, upstream.URL+"/chat/completions?stream=true", strings.NewReader(`{"model":"gpt-4o"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Editor-Version", "vscode/1.95.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("proxied request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if string(body) != `{"choices":[{"index":0}]}` {
		t.Fatalf("client body = %q; want upstream body", body)
	}
	if upstreamBody != `{"model":"gpt-4o"}` {
		t.Fatalf("upstream received %q; want original request body", upstreamBody)
	}

	select {
	case <-hook.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hook never saw the response")
	}

	records := inner.Records(types.CategoryChat, 0)
	if len(records) != 1 {
		t.Fatalf("chat records = %d; want 1", len(records))
	}
	rec := records[0]
	if rec.Path != "/chat/completions?stream=true" || rec.Host != "127.0.0.1" {
		t.Fatalf("record path/host = %q/%q", rec.Path, rec.Host)
	}
	if string(rec.Body) != `{"model":"gpt-4o"}` {
		t.Fatalf("record body = %s", rec.Body)
	}
	if rec.AuthHeaders["Editor-Version"] != "vscode/1.95.0" {
		t.Fatalf("auth headers = %v", rec.AuthHeaders)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	got := hook.responses[0]
	if got.ID != rec.ID {
		t.Fatalf("response flow id = %q; want %q", got.ID, rec.ID)
	}
	if got.Response == nil || got.Response.StatusCode != http.StatusOK {
		t.Fatalf("response = %+v; want 200", got.Response)
	}
}

func TestProxyPassesThroughUnmatchedHosts(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "plain")
	}))
	defer upstream.Close()

	inner := capture.NewHook(capture.Options{Hosts: []string{"githubcopilot.com"}, MaxRecords: 10}, nil, nil, nil)
	defer func() { _ = inner.Close() }()
	client := newProxyClient(t, inner, 1024)

	resp, err := client.Get(upstream.URL + "/chat/completions")
	if err != nil {
		t.Fatalf("proxied request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "plain" {
		t.Fatalf("body = %q; want plain", body)
	}
	if st := inner.Stats(); st.Categories[types.CategoryChat].Total != 0 {
		t.Fatalf("unmatched host was captured: %+v", st)
	}
}

func TestTeeBodyKeepsPrefix(t *testing.T) {
	var gotBody []byte
	var gotTruncated bool
	calls := 0
	tb := newTeeBody(io.NopCloser(strings.NewReader("hello world")), 5, func(b []byte, truncated bool) {
		calls++
		gotBody = append([]byte(nil), b...)
		gotTruncated = truncated
	})

	all, err := io.ReadAll(tb)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(all) != "hello world" {
		t.Fatalf("passthrough = %q; want full body", all)
	}
	_ = tb.Close()

	if calls != 1 {
		t.Fatalf("done called %d times; want 1", calls)
	}
	if string(gotBody) != "hello" || !gotTruncated {
		t.Fatalf("kept %q truncated=%v; want hello/true", gotBody, gotTruncated)
	}
}
