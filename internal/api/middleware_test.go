package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/dgnsrekt/copilot_capture/internal/relay"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestLoggerRecordsRouteAndCategory(t *testing.T) {
	logs := captureLogs(t)
	h := NewServer(newStubService(), relay.NewBroker(), []byte("pem"))

	if w := serve(h, http.MethodGet, "/api/v1/captures/chat?limit=1"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	out := logs.String()
	for _, want := range []string{`msg="control request"`, "route=/api/v1/captures/{category}", "category=chat", "status=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRequestLoggerOmitsCategoryForStats(t *testing.T) {
	logs := captureLogs(t)
	h := NewServer(newStubService(), relay.NewBroker(), []byte("pem"))

	serve(h, http.MethodGet, "/api/v1/captures/stats")

	if out := logs.String(); strings.Contains(out, "category=") {
		t.Fatalf("stats request logged a category:\n%s", out)
	}
}

func TestCaptureCategory(t *testing.T) {
	tests := map[string]string{
		"/api/v1/captures/chat":       "chat",
		"/api/v1/captures/embeddings": "embeddings",
		"/api/v1/captures/stats":      "",
		"/api/v1/captures/persist":    "",
		"/api/v1/captures/":           "",
		"/health":                     "",
	}
	for path, want := range tests {
		if got := captureCategory(path); got != want {
			t.Errorf("captureCategory(%q) = %q; want %q", path, got, want)
		}
	}
}
