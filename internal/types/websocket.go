package types

import "time"

// FeedEvent is a live notification published for each capture lifecycle step.
type FeedEvent struct {
	Timestamp  time.Time        `json:"timestamp"`
	EventType  string           `json:"event_type"`
	FlowID     string           `json:"flow_id"`
	Category   Category         `json:"category"`
	Method     string           `json:"method,omitempty"`
	URL        string           `json:"url,omitempty"`
	StatusCode int              `json:"status_code,omitempty"`
	DurationMS int64            `json:"duration_ms,omitempty"`
	Record     *CapturedRequest `json:"record,omitempty"`
}

const (
	FeedEventRequest  = "request"
	FeedEventResponse = "response"
)
