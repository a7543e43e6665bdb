// Package classify labels endpoint paths with a type and display tags using
// prioritized pattern rules.
package classify

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/prasenjit/go-replay/internal/models"
)

// Classifier is a compiled, immutable classification config. It is safe for
// concurrent use.
type Classifier struct {
	types    []typeRule // sorted by priority, stable
	tags     []tagRule
	fallback string
	errs     []models.ConfigError
}

type typeRule struct {
	name     string
	priority int
	patterns []*regexp.Regexp
}

type tagRule struct {
	tag     models.Tag
	pattern *regexp.Regexp
}

// Compile builds a Classifier. A rule with a pattern that fails to compile is
// disabled and reported through Errors; the remaining rules still apply.
func Compile(cfg *models.EndpointClassificationConfig) *Classifier {
	if cfg == nil {
		cfg = models.DefaultClassification()
	}

	c := &Classifier{fallback: cfg.Fallback}
	if c.fallback == "" {
		c.fallback = models.DefaultFallbackType
	}

	for _, rule := range cfg.Types {
		compiled, err := compileAll(rule.Patterns)
		if err == nil && rule.Name == "" {
			err = fmt.Errorf("name is required")
		}
		if err != nil {
			c.errs = append(c.errs, models.ConfigError{Kind: "type", Rule: rule.Name, Err: err})
			continue
		}
		c.types = append(c.types, typeRule{name: rule.Name, priority: rule.Priority, patterns: compiled})
	}
	sort.SliceStable(c.types, func(i, j int) bool {
		return c.types[i].priority < c.types[j].priority
	})

	for _, rule := range cfg.Tags {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			c.errs = append(c.errs, models.ConfigError{Kind: "tag", Rule: rule.Name, Err: err})
			continue
		}
		c.tags = append(c.tags, tagRule{tag: models.Tag{Name: rule.Name, Color: rule.Color}, pattern: re})
	}

	return c
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("at least one pattern is required")
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Errors returns the rules disabled at compile time
func (c *Classifier) Errors() []models.ConfigError {
	return c.errs
}

// Type returns the name of the lowest-priority type rule matching path, or
// the fallback type
func (c *Classifier) Type(path string) string {
	for _, rule := range c.types {
		for _, re := range rule.patterns {
			if re.MatchString(path) {
				return rule.name
			}
		}
	}
	return c.fallback
}

// Tags returns every tag whose pattern matches path, in declaration order
func (c *Classifier) Tags(path string) []models.Tag {
	tags := make([]models.Tag, 0)
	for _, rule := range c.tags {
		if rule.pattern.MatchString(path) {
			tags = append(tags, rule.tag)
		}
	}
	return tags
}

// Classify returns the type and tags of path
func (c *Classifier) Classify(path string) models.Classification {
	return models.Classification{
		Type: c.Type(path),
		Tags: c.Tags(path),
	}
}

// Classify compiles cfg and classifies a single path
func Classify(path string, cfg *models.EndpointClassificationConfig) models.Classification {
	return Compile(cfg).Classify(path)
}
