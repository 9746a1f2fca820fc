package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/copilot_capture/internal/capture"
	"github.com/dgnsrekt/copilot_capture/internal/relay"
	"github.com/dgnsrekt/copilot_capture/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the capture session exposed by the control API.
type Service interface {
	Stats() capture.Stats
	Records(category types.Category, limit int) []types.CapturedRequest
	Persist() ([]string, error)
}

// NewServer builds the control API served on the proxy port for requests
// addressed to the proxy itself.
func NewServer(svc Service, broker *relay.Broker, caPEM []byte) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Copilot Capture Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/ca.pem", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-pem-file")
		w.Header().Set("Content-Disposition", `attachment; filename="copilot-capture-ca.pem"`)
		if _, err := w.Write(caPEM); err != nil {
			slog.Debug("ca response write failed", "error", err)
		}
	})
	router.Get("/api/v1/stream", relay.SSEHandler(broker))
	router.Get("/api/v1/ws", relay.WebSocketHandler(broker))

	registerHealthHandlers(api)
	registerCaptureHandlers(api, svc, broker)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	return huma.Error500InternalServerError(err.Error())
}
