package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/go-replay/internal/models"
)

// Collector collects and aggregates replay decision statistics
type Collector struct {
	mu             sync.RWMutex
	startTime      time.Time
	endpoints      map[string]*models.AtomicEndpointStat // "METHOD path" -> stats
	types          map[string]*models.TypeStat
	recentMisses   []models.MissStat
	hourlyStats    map[string]*hourlyCounter // "YYYY-MM-DD-HH" -> counter
	maxMisses      int
	maxHourlySlots int
	now            func() time.Time
}

type hourlyCounter struct {
	Hour      string
	Decisions int64
	Misses    int64
}

// Decision is the summary of one replay decision fed to the collector
type Decision struct {
	Method       string
	Path         string
	EndpointType string
	Matched      bool
	Score        float64
	Considered   int
	Rejected     int
	Duration     time.Duration
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:      time.Now(),
		endpoints:      make(map[string]*models.AtomicEndpointStat),
		types:          make(map[string]*models.TypeStat),
		recentMisses:   make([]models.MissStat, 0),
		hourlyStats:    make(map[string]*hourlyCounter),
		maxMisses:      100,
		maxHourlySlots: 168, // 7 days
		now:            time.Now,
	}
}

// RecordDecision records a replay decision for statistics
func (c *Collector) RecordDecision(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := d.Method + " " + d.Path

	ep, ok := c.endpoints[key]
	if !ok {
		ep = &models.AtomicEndpointStat{Method: d.Method, Path: d.Path}
		ep.MinTimeNs.Store(d.Duration.Nanoseconds())
		c.endpoints[key] = ep
	}

	ep.EndpointType.Store(d.EndpointType)
	ep.TotalDecisions.Add(1)
	ep.TotalTimeNs.Add(d.Duration.Nanoseconds())
	ep.LastDecisionTime.Store(now)
	if d.Matched {
		ep.Matched.Add(1)
		ep.TotalScoreMilli.Add(int64(d.Score * 1000))
	}

	durationNs := d.Duration.Nanoseconds()
	for {
		currentMin := ep.MinTimeNs.Load()
		if durationNs >= currentMin || ep.MinTimeNs.CompareAndSwap(currentMin, durationNs) {
			break
		}
	}
	for {
		currentMax := ep.MaxTimeNs.Load()
		if durationNs <= currentMax || ep.MaxTimeNs.CompareAndSwap(currentMax, durationNs) {
			break
		}
	}

	ts, ok := c.types[d.EndpointType]
	if !ok {
		ts = &models.TypeStat{EndpointType: d.EndpointType}
		c.types[d.EndpointType] = ts
	}
	ts.TotalDecisions++
	if d.Matched {
		ts.Matched++
	} else {
		ts.Unmatched++
		c.recentMisses = append(c.recentMisses, models.MissStat{
			Timestamp:    now,
			Method:       d.Method,
			Path:         d.Path,
			EndpointType: d.EndpointType,
			Considered:   d.Considered,
			Rejected:     d.Rejected,
		})
		if len(c.recentMisses) > c.maxMisses {
			c.recentMisses = c.recentMisses[1:]
		}
	}

	hourKey := now.Format("2006-01-02-15")
	hourly, ok := c.hourlyStats[hourKey]
	if !ok {
		hourly = &hourlyCounter{Hour: hourKey}
		c.hourlyStats[hourKey] = hourly
		c.cleanupOldHourlyStats()
	}
	hourly.Decisions++
	if !d.Matched {
		hourly.Misses++
	}
}

// cleanupOldHourlyStats removes hourly stats older than maxHourlySlots
func (c *Collector) cleanupOldHourlyStats() {
	if len(c.hourlyStats) <= c.maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(c.hourlyStats))
	for k := range c.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	toRemove := len(keys) - c.maxHourlySlots
	for i := 0; i < toRemove; i++ {
		delete(c.hourlyStats, keys[i])
	}
}

// GetGlobalStats returns global statistics
func (c *Collector) GetGlobalStats(policyCount, exchangeCount int) *models.GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total, matched, totalTimeNs, totalScoreMilli int64

	endpointStats := make([]models.EndpointStat, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		stat := ep.ToEndpointStat()
		endpointStats = append(endpointStats, stat)
		total += stat.TotalDecisions
		matched += stat.Matched
		totalTimeNs += ep.TotalTimeNs.Load()
		totalScoreMilli += ep.TotalScoreMilli.Load()
	}

	// Busiest first, ties by endpoint for stable output
	sort.Slice(endpointStats, func(i, j int) bool {
		if endpointStats[i].TotalDecisions != endpointStats[j].TotalDecisions {
			return endpointStats[i].TotalDecisions > endpointStats[j].TotalDecisions
		}
		if endpointStats[i].Path != endpointStats[j].Path {
			return endpointStats[i].Path < endpointStats[j].Path
		}
		return endpointStats[i].Method < endpointStats[j].Method
	})

	top := endpointStats
	if len(top) > 10 {
		top = top[:10]
	}

	byType := make([]models.TypeStat, 0, len(c.types))
	for _, ts := range c.types {
		byType = append(byType, *ts)
	}
	sort.Slice(byType, func(i, j int) bool {
		return byType[i].EndpointType < byType[j].EndpointType
	})

	var matchRate, avgScore, avgTimeMs float64
	if total > 0 {
		matchRate = float64(matched) / float64(total)
		avgTimeMs = float64(totalTimeNs) / float64(total) / 1e6
	}
	if matched > 0 {
		avgScore = float64(totalScoreMilli) / 1000 / float64(matched)
	}

	uptime := c.now().Sub(c.startTime)
	var perSecond float64
	if uptime.Seconds() > 0 {
		perSecond = float64(total) / uptime.Seconds()
	}

	misses := make([]models.MissStat, len(c.recentMisses))
	copy(misses, c.recentMisses)

	return &models.GlobalStats{
		TotalDecisions:     total,
		TotalMatched:       matched,
		TotalUnmatched:     total - matched,
		MatchRate:          matchRate,
		AvgScore:           avgScore,
		AvgDecisionTimeMs:  avgTimeMs,
		DecisionsPerSecond: perSecond,
		PolicyCount:        policyCount,
		ExchangeCount:      exchangeCount,
		StartTime:          c.startTime,
		Uptime:             formatDuration(uptime),
		TopEndpoints:       top,
		ByType:             byType,
		RecentMisses:       misses,
		DecisionsByHour:    c.buildHourlyStats(),
	}
}

// GetEndpointStats returns statistics for one method and path, or nil if
// no decision was recorded for it
func (c *Collector) GetEndpointStats(method, path string) *models.EndpointStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ep, ok := c.endpoints[method+" "+path]; ok {
		stat := ep.ToEndpointStat()
		return &stat
	}

	return nil
}

// buildHourlyStats builds the hourly statistics for the last 24 hours
func (c *Collector) buildHourlyStats() []models.HourlyStat {
	now := c.now()
	stats := make([]models.HourlyStat, 0, 24)

	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)
		hourKey := hour.Format("2006-01-02-15")

		stat := models.HourlyStat{
			Hour: hour.Format("15:00"),
		}
		if hourly, ok := c.hourlyStats[hourKey]; ok {
			stat.Decisions = hourly.Decisions
			stat.Misses = hourly.Misses
		}

		stats = append(stats, stat)
	}

	return stats
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = c.now()
	c.endpoints = make(map[string]*models.AtomicEndpointStat)
	c.types = make(map[string]*models.TypeStat)
	c.recentMisses = make([]models.MissStat, 0)
	c.hourlyStats = make(map[string]*hourlyCounter)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
