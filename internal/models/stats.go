package models

import (
	"sync/atomic"
	"time"
)

// GlobalStats represents decision statistics across all endpoints
type GlobalStats struct {
	TotalDecisions     int64          `json:"totalDecisions"`
	TotalMatched       int64          `json:"totalMatched"`
	TotalUnmatched     int64          `json:"totalUnmatched"`
	MatchRate          float64        `json:"matchRate"` // 0..1
	AvgScore           float64        `json:"avgScore"`  // Over matched decisions
	AvgDecisionTimeMs  float64        `json:"avgDecisionTimeMs"`
	DecisionsPerSecond float64        `json:"decisionsPerSecond"`
	PolicyCount        int            `json:"policyCount"`
	ExchangeCount      int            `json:"exchangeCount"`
	StartTime          time.Time      `json:"startTime"`
	Uptime             string         `json:"uptime"`
	TopEndpoints       []EndpointStat `json:"topEndpoints"`
	ByType             []TypeStat     `json:"byType"`
	RecentMisses       []MissStat     `json:"recentMisses"`
	DecisionsByHour    []HourlyStat   `json:"decisionsByHour"`
}

// EndpointStat represents decision statistics for one method and path
type EndpointStat struct {
	Method            string  `json:"method"`
	Path              string  `json:"path"`
	EndpointType      string  `json:"endpointType"`
	TotalDecisions    int64   `json:"totalDecisions"`
	Matched           int64   `json:"matched"`
	Unmatched         int64   `json:"unmatched"`
	AvgScore          float64 `json:"avgScore"`
	AvgDecisionTimeMs float64 `json:"avgDecisionTimeMs"`
	MinDecisionTimeMs float64 `json:"minDecisionTimeMs"`
	MaxDecisionTimeMs float64 `json:"maxDecisionTimeMs"`
	LastDecisionTime  string  `json:"lastDecisionTime,omitempty"`
}

// TypeStat aggregates decisions per endpoint type
type TypeStat struct {
	EndpointType   string `json:"endpointType"`
	TotalDecisions int64  `json:"totalDecisions"`
	Matched        int64  `json:"matched"`
	Unmatched      int64  `json:"unmatched"`
}

// MissStat records a decision that found no recording
type MissStat struct {
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	EndpointType string    `json:"endpointType"`
	Considered   int       `json:"considered"`
	Rejected     int       `json:"rejected"`
}

// HourlyStat represents hourly decision statistics
type HourlyStat struct {
	Hour      string `json:"hour"`
	Decisions int64  `json:"decisions"`
	Misses    int64  `json:"misses"`
}

// AtomicEndpointStat is a thread-safe version of endpoint statistics
type AtomicEndpointStat struct {
	Method           string
	Path             string
	EndpointType     atomic.Value // stores string
	TotalDecisions   atomic.Int64
	Matched          atomic.Int64
	TotalScoreMilli  atomic.Int64 // Sum of matched scores x1000
	TotalTimeNs      atomic.Int64
	MinTimeNs        atomic.Int64
	MaxTimeNs        atomic.Int64
	LastDecisionTime atomic.Value // stores time.Time
}

// ToEndpointStat converts to a regular EndpointStat
func (a *AtomicEndpointStat) ToEndpointStat() EndpointStat {
	total := a.TotalDecisions.Load()
	matched := a.Matched.Load()

	var avgMs, avgScore float64
	if total > 0 {
		avgMs = float64(a.TotalTimeNs.Load()) / float64(total) / 1e6
	}
	if matched > 0 {
		avgScore = float64(a.TotalScoreMilli.Load()) / 1000 / float64(matched)
	}

	var lastTime string
	if t, ok := a.LastDecisionTime.Load().(time.Time); ok && !t.IsZero() {
		lastTime = t.Format(time.RFC3339)
	}
	endpointType, _ := a.EndpointType.Load().(string)

	return EndpointStat{
		Method:            a.Method,
		Path:              a.Path,
		EndpointType:      endpointType,
		TotalDecisions:    total,
		Matched:           matched,
		Unmatched:         total - matched,
		AvgScore:          avgScore,
		AvgDecisionTimeMs: avgMs,
		MinDecisionTimeMs: float64(a.MinTimeNs.Load()) / 1e6,
		MaxDecisionTimeMs: float64(a.MaxTimeNs.Load()) / 1e6,
		LastDecisionTime:  lastTime,
	}
}
