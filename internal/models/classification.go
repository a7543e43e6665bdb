package models

// DefaultFallbackType is used when a classification config has no fallback
const DefaultFallbackType = "public"

// EndpointTypeRule assigns a mutually exclusive type to paths matching any of its patterns
type EndpointTypeRule struct {
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Patterns []string `json:"patterns" yaml:"patterns" validate:"required,min=1"`
	Priority int      `json:"priority" yaml:"priority"` // Lower = higher priority (0 is highest)
}

// EndpointTagRule assigns a display-only tag to paths matching its pattern
type EndpointTagRule struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	Pattern string `json:"pattern" yaml:"pattern" validate:"required"`
	Color   string `json:"color" yaml:"color"`
}

// EndpointClassificationConfig holds the type and tag rules for endpoint classification
type EndpointClassificationConfig struct {
	Types    []EndpointTypeRule `json:"types" yaml:"types" validate:"dive"`
	Tags     []EndpointTagRule  `json:"tags" yaml:"tags" validate:"dive"`
	Fallback string             `json:"fallback" yaml:"fallback"`
}

// DefaultClassification returns an empty classification config that labels
// every path with the fallback type
func DefaultClassification() *EndpointClassificationConfig {
	return &EndpointClassificationConfig{
		Types:    make([]EndpointTypeRule, 0),
		Tags:     make([]EndpointTagRule, 0),
		Fallback: DefaultFallbackType,
	}
}

// Tag is a tag attached to a classified path
type Tag struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// Classification is the result of classifying an endpoint path
type Classification struct {
	Type string `json:"type"`
	Tags []Tag  `json:"tags"`
}
