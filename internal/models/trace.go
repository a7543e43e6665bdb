package models

import (
	"time"
)

// DecisionTrace captures one replay decision end to end
type DecisionTrace struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Duration       int64             `json:"duration"` // Duration in nanoseconds
	Request        RequestDescriptor `json:"request"`
	Classification Classification    `json:"classification"`
	Policy         MatchingPolicy    `json:"policy"` // Resolved policy used for matching
	Matched        bool              `json:"matched"`
	SelectedID     string            `json:"selectedId,omitempty"`
	Score          float64           `json:"score"`
	Considered     int               `json:"considered"`
	Rejections     []Rejection       `json:"rejections,omitempty"`
	ResponseStatus int               `json:"responseStatus"`
}

// TraceFilter represents filters for querying traces
type TraceFilter struct {
	EndpointType string    `json:"endpointType,omitempty"`
	Method       string    `json:"method,omitempty"`
	Path         string    `json:"path,omitempty"`
	Matched      *bool     `json:"matched,omitempty"`
	StartTime    time.Time `json:"startTime,omitempty"`
	EndTime      time.Time `json:"endTime,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}
