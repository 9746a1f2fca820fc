package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// feedPaths are long-lived live feed connections.
var feedPaths = map[string]string{
	"/api/v1/stream": "sse",
	"/api/v1/ws":     "websocket",
}

// requestLogger logs control API calls at debug level. Live feed clients are
// logged at info on connect and disconnect since they stay open for the whole
// capture session.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		feed, isFeed := feedPaths[r.URL.Path]
		if isFeed {
			slog.Info("feed client connected",
				"transport", feed,
				"categories", r.URL.Query().Get("categories"),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}

		next.ServeHTTP(ww, r)

		if isFeed {
			slog.Info("feed client disconnected",
				"transport", feed,
				"remote", r.RemoteAddr,
				"connected_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
			return
		}

		attrs := []any{
			"method", r.Method,
			"route", routePattern(r),
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		}
		if category := captureCategory(r.URL.Path); category != "" {
			attrs = append(attrs, "category", category)
		}
		slog.Debug("control request", attrs...)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// captureCategory returns the category segment of /api/v1/captures/{category}.
func captureCategory(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/captures/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	switch rest {
	case "stats", "persist":
		return ""
	}
	return rest
}
