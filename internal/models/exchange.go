package models

import (
	"errors"
	"time"
)

var errMissingEndpoint = errors.New("method and path are required")

// RequestDescriptor carries the matchable dimensions of an incoming request
type RequestDescriptor struct {
	Method      string            `json:"method" yaml:"method"`
	Path        string            `json:"path" yaml:"path"`
	Version     string            `json:"version,omitempty" yaml:"version,omitempty"`
	Platform    string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	Language    string            `json:"language,omitempty" yaml:"language,omitempty"`
	Environment string            `json:"environment,omitempty" yaml:"environment,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // Names are case-insensitive
	QueryParams map[string]string `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`
	Body        string            `json:"body,omitempty" yaml:"body,omitempty"` // Raw JSON, fields addressed by dot path
}

// CandidateExchange is a previously recorded request/response pair
type CandidateExchange struct {
	ID                string `json:"id" yaml:"id"`
	RequestDescriptor `yaml:",inline"`
	ResponseStatus    int               `json:"responseStatus" yaml:"responseStatus" validate:"min=100,max=599"`
	ResponseHeaders   map[string]string `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
	ResponseBody      string            `json:"responseBody,omitempty" yaml:"responseBody,omitempty"`
	CreatedAt         time.Time         `json:"createdAt" yaml:"createdAt"`
}

// Validate checks the exchange has an endpoint and a valid status
func (e *CandidateExchange) Validate() error {
	if e.Method == "" || e.Path == "" {
		return &ConfigError{Kind: "exchange", Rule: e.ID, Err: errMissingEndpoint}
	}
	return validate.Struct(e)
}

// Rejection records why a candidate failed hard filtering
type Rejection struct {
	ExchangeID string `json:"exchangeId"`
	Reason     string `json:"reason"`
}

// MatchOutcome is the result of selecting a recorded exchange
type MatchOutcome struct {
	Selected             *CandidateExchange `json:"selected"`
	Score                float64            `json:"score"` // 0..100
	SatisfiedHardFilters bool               `json:"satisfiedHardFilters"`
	Considered           int                `json:"considered"`
	Rejections           []Rejection        `json:"rejections,omitempty"`
}

// Matched reports whether an exchange was selected
func (o MatchOutcome) Matched() bool {
	return o.Selected != nil
}
