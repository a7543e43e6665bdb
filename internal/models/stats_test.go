package models

import (
	"testing"
	"time"
)

func TestAtomicEndpointStat_ToEndpointStat(t *testing.T) {
	aes := &AtomicEndpointStat{
		Method: "GET",
		Path:   "/users",
	}

	aes.EndpointType.Store("public")
	aes.TotalDecisions.Store(100)
	aes.Matched.Store(80)
	aes.TotalScoreMilli.Store(80 * 90000) // 90 per match
	aes.TotalTimeNs.Store(1000000000)     // 1 second = 1000ms
	aes.MinTimeNs.Store(5000000)          // 5ms
	aes.MaxTimeNs.Store(50000000)         // 50ms
	aes.LastDecisionTime.Store(time.Now())

	stat := aes.ToEndpointStat()

	if stat.Method != "GET" {
		t.Errorf("Expected method 'GET', got %q", stat.Method)
	}
	if stat.Path != "/users" {
		t.Errorf("Expected path '/users', got %q", stat.Path)
	}
	if stat.EndpointType != "public" {
		t.Errorf("Expected endpoint type 'public', got %q", stat.EndpointType)
	}
	if stat.TotalDecisions != 100 {
		t.Errorf("Expected 100 decisions, got %d", stat.TotalDecisions)
	}
	if stat.Matched != 80 || stat.Unmatched != 20 {
		t.Errorf("Expected 80 matched and 20 unmatched, got %d and %d", stat.Matched, stat.Unmatched)
	}
	if stat.AvgScore != 90.0 {
		t.Errorf("Expected avg score 90, got %v", stat.AvgScore)
	}
	// Avg should be 1000ms / 100 = 10ms
	if stat.AvgDecisionTimeMs != 10.0 {
		t.Errorf("Expected avg 10ms, got %v", stat.AvgDecisionTimeMs)
	}
	if stat.MinDecisionTimeMs != 5.0 {
		t.Errorf("Expected min 5ms, got %v", stat.MinDecisionTimeMs)
	}
	if stat.MaxDecisionTimeMs != 50.0 {
		t.Errorf("Expected max 50ms, got %v", stat.MaxDecisionTimeMs)
	}
	if stat.LastDecisionTime == "" {
		t.Error("Expected non-empty last decision time")
	}
}

func TestAtomicEndpointStat_ZeroDecisions(t *testing.T) {
	aes := &AtomicEndpointStat{
		Method: "GET",
		Path:   "/users",
	}

	stat := aes.ToEndpointStat()

	if stat.TotalDecisions != 0 {
		t.Errorf("Expected 0 decisions, got %d", stat.TotalDecisions)
	}
	if stat.AvgDecisionTimeMs != 0 || stat.AvgScore != 0 {
		t.Errorf("Expected zero averages, got %v and %v", stat.AvgDecisionTimeMs, stat.AvgScore)
	}
	if stat.EndpointType != "" {
		t.Errorf("Expected empty endpoint type, got %q", stat.EndpointType)
	}
	if stat.LastDecisionTime != "" {
		t.Errorf("Expected empty last decision time, got %q", stat.LastDecisionTime)
	}
}
