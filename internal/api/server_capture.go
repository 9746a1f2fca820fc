package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/copilot_capture/internal/capture"
	"github.com/dgnsrekt/copilot_capture/internal/relay"
	"github.com/dgnsrekt/copilot_capture/internal/types"
)

type categoryInput struct {
	Category string `path:"category" enum:"embeddings,chat,other" doc:"Capture category"`
	Limit    int    `query:"limit" minimum:"0" default:"50" doc:"Newest records to return; 0 returns all retained"`
}

func registerCaptureHandlers(api huma.API, svc Service, broker *relay.Broker) {
	type statsOutput struct {
		Body struct {
			capture.Stats
			StreamClients int   `json:"stream_clients"`
			StreamDropped int64 `json:"stream_dropped"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "capture-stats", Method: http.MethodGet, Path: "/api/v1/captures/stats", Summary: "Capture counters per category", Tags: []string{"Captures"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			out := &statsOutput{}
			out.Body.Stats = svc.Stats()
			out.Body.StreamClients = broker.ClientCount()
			out.Body.StreamDropped = broker.Dropped()
			return out, nil
		})

	type recordsOutput struct {
		Body struct {
			Category types.Category          `json:"category"`
			Count    int                     `json:"count"`
			Records  []types.CapturedRequest `json:"records"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-captures", Method: http.MethodGet, Path: "/api/v1/captures/{category}", Summary: "List retained captured requests", Tags: []string{"Captures"}},
		func(ctx context.Context, input *categoryInput) (*recordsOutput, error) {
			category, ok := types.ParseCategory(input.Category)
			if !ok {
				return nil, huma.Error404NotFound("unknown category: " + input.Category)
			}
			records := svc.Records(category, input.Limit)
			out := &recordsOutput{}
			out.Body.Category = category
			out.Body.Count = len(records)
			out.Body.Records = records
			return out, nil
		})

	type persistOutput struct {
		Body struct {
			Files []string `json:"files"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "persist-captures", Method: http.MethodPost, Path: "/api/v1/captures/persist", Summary: "Write snapshot files for every non-empty category", Tags: []string{"Captures"}},
		func(ctx context.Context, input *struct{}) (*persistOutput, error) {
			files, err := svc.Persist()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &persistOutput{}
			out.Body.Files = files
			if out.Body.Files == nil {
				out.Body.Files = []string{}
			}
			return out, nil
		})
}
