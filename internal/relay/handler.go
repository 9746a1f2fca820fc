package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// SSEHandler returns an http.HandlerFunc that streams capture events as SSE.
// Clients may filter categories via ?categories=chat,embeddings.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		feedFilter := parseFeedFilter(r.URL.Query().Get("categories"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if feedFilter != nil && !feedFilter[evt.Feed] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// WebSocketHandler upgrades the connection and writes each capture event as
// a text frame. Same ?categories= filter as SSEHandler.
func WebSocketHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedFilter := parseFeedFilter(r.URL.Query().Get("categories"))

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		// Reader goroutine notices client close frames and broken connections.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if feedFilter != nil && !feedFilter[evt.Feed] {
					continue
				}
				if err := wsutil.WriteServerText(conn, []byte(evt.Payload)); err != nil {
					slog.Debug("websocket write failed", "remote", r.RemoteAddr, "error", err)
					return
				}
			}
		}
	}
}

func parseFeedFilter(q string) map[string]bool {
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, f := range strings.Split(q, ",") {
		if f = strings.TrimSpace(f); f != "" {
			filter[f] = true
		}
	}
	return filter
}
