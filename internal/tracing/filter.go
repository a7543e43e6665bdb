package tracing

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/prasenjit/go-replay/internal/models"
)

// DefaultLimit is the number of traces listed when no limit is given
const DefaultLimit = 100

// ParseFilter reads a trace filter from query parameters: type, method,
// path, matched, since, until (RFC 3339) and limit
func ParseFilter(q url.Values) (*models.TraceFilter, error) {
	filter := &models.TraceFilter{
		EndpointType: q.Get("type"),
		Method:       q.Get("method"),
		Path:         q.Get("path"),
		Limit:        DefaultLimit,
	}

	if v := q.Get("matched"); v != "" {
		matched, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("matched must be true or false")
		}
		filter.Matched = &matched
	}

	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"since", &filter.StartTime}, {"until", &filter.EndTime}} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%s must be an RFC 3339 time", bound.name)
		}
		*bound.dst = t
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	return filter, nil
}
