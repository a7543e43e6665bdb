package tracing

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prasenjit/go-replay/internal/models"
)

// Service keeps a bounded history of replay decisions and fans them out to live subscribers
type Service struct {
	mu          sync.RWMutex
	traces      []*models.DecisionTrace
	maxTraces   int
	retention   time.Duration // Zero keeps traces until evicted by maxTraces
	subscribers map[string]chan *models.DecisionTrace
	now         func() time.Time
}

// NewService creates a new tracing service
func NewService(maxTraces int, retention time.Duration) *Service {
	if maxTraces <= 0 {
		maxTraces = 1000
	}
	if retention < 0 {
		retention = 0
	}

	return &Service{
		traces:      make([]*models.DecisionTrace, 0),
		maxTraces:   maxTraces,
		retention:   retention,
		subscribers: make(map[string]chan *models.DecisionTrace),
		now:         time.Now,
	}
}

// RecordTrace records a new decision trace
func (s *Service) RecordTrace(trace *models.DecisionTrace) {
	s.mu.Lock()

	if trace.ID == "" {
		trace.ID = uuid.New().String()
	}
	if trace.Timestamp.IsZero() {
		trace.Timestamp = s.now()
	}

	s.traces = append(s.traces, trace)
	s.expire()

	if len(s.traces) > s.maxTraces {
		s.traces = s.traces[len(s.traces)-s.maxTraces:]
	}

	subscribers := make([]chan *models.DecisionTrace, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		subscribers = append(subscribers, ch)
	}

	s.mu.Unlock()

	// Slow subscribers miss traces rather than block decisions
	for _, ch := range subscribers {
		select {
		case ch <- trace:
		default:
		}
	}
}

// expire drops traces older than the retention window. Caller holds mu.
func (s *Service) expire() {
	if s.retention == 0 {
		return
	}

	cutoff := s.now().Add(-s.retention)
	i := 0
	for i < len(s.traces) && s.traces[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.traces = append(s.traces[:0:0], s.traces[i:]...)
	}
}

// GetTraces returns traces matching the filter, newest first
func (s *Service) GetTraces(filter *models.TraceFilter) []*models.DecisionTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.DecisionTrace, 0)

	for i := len(s.traces) - 1; i >= 0; i-- {
		trace := s.traces[i]

		if filter != nil && !matchesFilter(trace, filter) {
			continue
		}

		result = append(result, trace)

		if filter != nil && filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result
}

func matchesFilter(trace *models.DecisionTrace, filter *models.TraceFilter) bool {
	if filter.EndpointType != "" && trace.Classification.Type != filter.EndpointType {
		return false
	}
	if filter.Method != "" && !strings.EqualFold(trace.Request.Method, filter.Method) {
		return false
	}
	if filter.Path != "" && trace.Request.Path != filter.Path {
		return false
	}
	if filter.Matched != nil && trace.Matched != *filter.Matched {
		return false
	}
	if !filter.StartTime.IsZero() && trace.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && trace.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}

// GetTrace returns a single trace by ID
func (s *Service) GetTrace(id string) *models.DecisionTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, trace := range s.traces {
		if trace.ID == id {
			return trace
		}
	}

	return nil
}

// ClearTraces removes all traces
func (s *Service) ClearTraces() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traces = make([]*models.DecisionTrace, 0)
}

// Subscribe creates a subscription for live traces
func (s *Service) Subscribe() (string, chan *models.DecisionTrace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan *models.DecisionTrace, 100)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// GetStats returns tracing statistics
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"totalTraces":       len(s.traces),
		"maxTraces":         s.maxTraces,
		"retention":         s.retention.String(),
		"activeSubscribers": len(s.subscribers),
	}
}
