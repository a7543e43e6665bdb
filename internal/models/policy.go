package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Mode is the proxy operation mode a policy applies to
type Mode string

const (
	ModeReplay    Mode = "replay"
	ModeRecording Mode = "recording"
	ModeBoth      Mode = "both"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeReplay, ModeRecording, ModeBoth:
		return true
	}
	return false
}

// VersionMode controls how client versions are compared
type VersionMode string

const (
	VersionClosest VersionMode = "closest"
	VersionExact   VersionMode = "exact"
)

func (m VersionMode) Valid() bool {
	return m == VersionClosest || m == VersionExact
}

// PlatformMode controls how client platforms are compared
type PlatformMode string

const (
	PlatformAny   PlatformMode = "any"
	PlatformExact PlatformMode = "exact"
)

func (m PlatformMode) Valid() bool {
	return m == PlatformAny || m == PlatformExact
}

// LanguageMode controls whether language takes part in scoring.
// Language never eliminates candidates.
type LanguageMode string

const (
	LanguageAny   LanguageMode = "any"
	LanguageExact LanguageMode = "exact"
)

func (m LanguageMode) Valid() bool {
	return m == LanguageAny || m == LanguageExact
}

// EnvironmentMode is either "exact" (only the request's environment breaks
// ties) or a named environment that enables the fallback order between
// environments. The named environment keys that order when the request
// carries no environment of its own.
type EnvironmentMode string

const (
	EnvironmentExact EnvironmentMode = "exact"
	EnvironmentDev   EnvironmentMode = "dev"
	EnvironmentSIT   EnvironmentMode = "sit"
	EnvironmentStage EnvironmentMode = "stage"
	EnvironmentProd  EnvironmentMode = "prod"
)

func (m EnvironmentMode) Valid() bool {
	switch m {
	case EnvironmentExact, EnvironmentDev, EnvironmentSIT, EnvironmentStage, EnvironmentProd:
		return true
	}
	return false
}

// StatusMatch selects recorded responses by status: "2xx", "error" or a
// specific code. Empty means any status.
type StatusMatch string

const (
	StatusAny     StatusMatch = ""
	StatusSuccess StatusMatch = "2xx"
	StatusError   StatusMatch = "error"
)

// Valid reports whether s is empty, a category or a status code
func (s StatusMatch) Valid() bool {
	if s == StatusAny || s == StatusSuccess || s == StatusError {
		return true
	}
	_, ok := s.Code()
	return ok
}

// Code returns the specific status code s names, if any
func (s StatusMatch) Code() (int, bool) {
	code, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil || code < 100 || code > 599 {
		return 0, false
	}
	return code, true
}

// MatchingPolicy configures how replay candidates are matched for an endpoint.
// Empty soft fields (version/platform/language/environment/status) inherit
// from the next layer during resolution.
type MatchingPolicy struct {
	ID                  string          `json:"id" yaml:"id"`
	EndpointPattern     string          `json:"endpointPattern" yaml:"endpointPattern" validate:"required"`
	Method              string          `json:"method" yaml:"method"` // Empty or "*" matches any method
	Mode                Mode            `json:"mode" yaml:"mode" validate:"required,oneof=replay recording both"`
	Regex               bool            `json:"regex" yaml:"regex"`
	MatchVersion        VersionMode     `json:"matchVersion,omitempty" yaml:"matchVersion,omitempty" validate:"omitempty,oneof=closest exact"`
	MatchLanguage       LanguageMode    `json:"matchLanguage,omitempty" yaml:"matchLanguage,omitempty" validate:"omitempty,oneof=any exact"`
	MatchPlatform       PlatformMode    `json:"matchPlatform,omitempty" yaml:"matchPlatform,omitempty" validate:"omitempty,oneof=any exact"`
	MatchEnvironment    EnvironmentMode `json:"matchEnvironment,omitempty" yaml:"matchEnvironment,omitempty" validate:"omitempty,oneof=exact dev sit stage prod"`
	MatchHeaders        []string        `json:"matchHeaders" yaml:"matchHeaders"`
	MatchQueryParams    []string        `json:"matchQueryParams" yaml:"matchQueryParams"`
	MatchBody           []string        `json:"matchBody" yaml:"matchBody"` // Dot-notation paths, in priority order
	MatchResponseStatus StatusMatch     `json:"matchResponseStatus,omitempty" yaml:"matchResponseStatus,omitempty"`
	Priority            int             `json:"priority" yaml:"priority"` // Lower = higher priority (0 is highest)
	Enabled             bool            `json:"enabled" yaml:"enabled"`
	Override            bool            `json:"override" yaml:"override"`
	CreatedAt           time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// GlobalDefaults holds the per-mode policies used when no rule overrides them
type GlobalDefaults struct {
	Replay    MatchingPolicy `json:"replayDefaults" yaml:"replayDefaults"`
	Recording MatchingPolicy `json:"recordingDefaults" yaml:"recordingDefaults"`
}

// DefaultGlobalDefaults returns the built-in defaults
func DefaultGlobalDefaults() *GlobalDefaults {
	base := MatchingPolicy{
		MatchVersion:     VersionClosest,
		MatchLanguage:    LanguageAny,
		MatchPlatform:    PlatformAny,
		MatchEnvironment: EnvironmentExact,
		MatchHeaders:     []string{},
		MatchQueryParams: []string{},
		MatchBody:        []string{},
		Enabled:          true,
	}

	replay := base
	replay.Mode = ModeReplay
	replay.MatchResponseStatus = StatusSuccess

	recording := base
	recording.Mode = ModeRecording

	return &GlobalDefaults{Replay: replay, Recording: recording}
}

// For returns the defaults for the given mode
func (d *GlobalDefaults) For(mode Mode) MatchingPolicy {
	if mode == ModeRecording {
		return d.Recording
	}
	return d.Replay
}

var validate = validator.New()

// Validate checks the policy's required fields and enum tokens
func (p *MatchingPolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	if !p.MatchResponseStatus.Valid() {
		return fmt.Errorf("invalid policy: unknown response status %q", p.MatchResponseStatus)
	}
	return nil
}

// Validate checks the classification rules' required fields
func (c *EndpointClassificationConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid classification: %w", err)
	}
	return nil
}

// Validate checks the soft fields of both default policies. Empty fields are
// allowed and take the built-in value.
func (d *GlobalDefaults) Validate() error {
	layers := []struct {
		name   string
		policy *MatchingPolicy
	}{{"replay", &d.Replay}, {"recording", &d.Recording}}
	for _, l := range layers {
		name, p := l.name, l.policy
		if err := validate.StructPartial(p, "MatchVersion", "MatchLanguage", "MatchPlatform", "MatchEnvironment"); err != nil {
			return fmt.Errorf("invalid %s defaults: %w", name, err)
		}
		if !p.MatchResponseStatus.Valid() {
			return fmt.Errorf("invalid %s defaults: unknown response status %q", name, p.MatchResponseStatus)
		}
	}
	return nil
}

// ConfigError describes a rule disabled because of bad configuration
type ConfigError struct {
	Kind string `json:"kind"` // type, tag, policy, defaults
	Rule string `json:"rule"`
	Err  error  `json:"-"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s rule %q disabled: %v", e.Kind, e.Rule, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MarshalJSON includes the underlying error message
func (e ConfigError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Rule  string `json:"rule"`
		Error string `json:"error"`
	}{e.Kind, e.Rule, msg})
}
