package types

import (
	"encoding/json"
	"net/http"
	"time"
)

// CapturedRequest is one intercepted Copilot API request.
type CapturedRequest struct {
	ID          string            `json:"id"`
	Category    Category          `json:"category"`
	Timestamp   time.Time         `json:"timestamp"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Host        string            `json:"host"`
	Path        string            `json:"path"`
	AuthHeaders map[string]string `json:"auth_headers"`
	AllHeaders  map[string]string `json:"all_headers"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// Flow describes a request (and, once available, its response) as handed
// over by the interception runtime.
type Flow struct {
	ID      string
	Method  string
	URL     string
	Host    string
	Path    string
	Headers http.Header
	Body    []byte

	Response *FlowResponse
}

// FlowResponse is the response half of a Flow. Body holds at most the
// configured capture limit; Truncated reports whether bytes were dropped.
type FlowResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Truncated  bool
}

// PendingRequest tracks a captured request waiting for its response.
type PendingRequest struct {
	Category  Category
	URL       string
	Timestamp time.Time
}
