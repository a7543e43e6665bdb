// Package resolve selects the effective matching policy for an endpoint.
package resolve

import (
	"regexp"
	"sort"
	"strings"

	"github.com/prasenjit/go-replay/internal/models"
)

// Resolver is a compiled, immutable policy set. It is safe for concurrent use.
type Resolver struct {
	exact    map[string][]*entry // endpoint -> entries in registration order
	regex    []*entry            // sorted by priority, then registration order
	defaults models.GlobalDefaults
	errs     []models.ConfigError
}

type entry struct {
	policy models.MatchingPolicy
	re     *regexp.Regexp
}

// Compile builds a Resolver from policies in registration order. Disabled
// policies are ignored; invalid ones are disabled and reported through
// Errors. Invalid default fields are replaced by the built-in defaults.
func Compile(policies []*models.MatchingPolicy, defaults *models.GlobalDefaults) *Resolver {
	r := &Resolver{exact: make(map[string][]*entry)}
	r.defaults = r.sanitizeDefaults(defaults)

	for _, p := range policies {
		if p == nil || !p.Enabled {
			continue
		}
		if err := p.Validate(); err != nil {
			r.errs = append(r.errs, models.ConfigError{Kind: "policy", Rule: ruleName(p), Err: err})
			continue
		}

		e := &entry{policy: *p}
		e.policy.Method = normalizeMethod(p.Method)

		if !p.Regex {
			r.exact[p.EndpointPattern] = append(r.exact[p.EndpointPattern], e)
			continue
		}
		re, err := regexp.Compile(p.EndpointPattern)
		if err != nil {
			r.errs = append(r.errs, models.ConfigError{Kind: "policy", Rule: ruleName(p), Err: err})
			continue
		}
		e.re = re
		r.regex = append(r.regex, e)
	}

	sort.SliceStable(r.regex, func(i, j int) bool {
		return r.regex[i].policy.Priority < r.regex[j].policy.Priority
	})

	return r
}

func (r *Resolver) sanitizeDefaults(d *models.GlobalDefaults) models.GlobalDefaults {
	builtin := models.DefaultGlobalDefaults()
	if d == nil {
		return *builtin
	}
	out := *d
	if err := out.Validate(); err != nil {
		r.errs = append(r.errs, models.ConfigError{Kind: "defaults", Rule: "global", Err: err})
	}
	out.Replay = fillSoft(out.Replay, builtin.Replay)
	out.Recording = fillSoft(out.Recording, builtin.Recording)
	out.Replay.Mode = models.ModeReplay
	out.Recording.Mode = models.ModeRecording
	return out
}

// fillSoft replaces missing or unknown soft fields of p with those of base
func fillSoft(p, base models.MatchingPolicy) models.MatchingPolicy {
	if !p.MatchVersion.Valid() {
		p.MatchVersion = base.MatchVersion
	}
	if !p.MatchPlatform.Valid() {
		p.MatchPlatform = base.MatchPlatform
	}
	if !p.MatchLanguage.Valid() {
		p.MatchLanguage = base.MatchLanguage
	}
	if !p.MatchEnvironment.Valid() {
		p.MatchEnvironment = base.MatchEnvironment
	}
	if !p.MatchResponseStatus.Valid() {
		p.MatchResponseStatus = base.MatchResponseStatus
	}
	return p
}

func ruleName(p *models.MatchingPolicy) string {
	if p.ID != "" {
		return p.ID
	}
	return p.Method + " " + p.EndpointPattern
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return "*"
	}
	return method
}

// Errors returns the policies disabled at compile time
func (r *Resolver) Errors() []models.ConfigError {
	return r.errs
}

// Defaults returns the sanitized global defaults
func (r *Resolver) Defaults() models.GlobalDefaults {
	return r.defaults
}

// Resolve returns the effective policy for endpoint, method and mode. A
// non-regex policy equal to endpoint wins over regex policies; among regex
// policies the lowest priority wins and equal priorities keep registration
// order. Without any matching policy the mode's defaults are returned.
func (r *Resolver) Resolve(endpoint, method string, mode models.Mode) models.MatchingPolicy {
	method = normalizeMethod(method)
	global := clonePolicy(r.defaults.For(mode))

	group := r.exactGroup(endpoint, method, mode)
	if len(group) == 0 {
		group = r.regexGroup(endpoint, method, mode)
	}
	if len(group) == 0 {
		return global
	}

	var specific, shared *models.MatchingPolicy
	for _, e := range group {
		switch {
		case e.policy.Mode == mode && mode != models.ModeBoth:
			specific = pick(specific, &e.policy)
		case e.policy.Mode == models.ModeBoth:
			shared = pick(shared, &e.policy)
		}
	}
	return Merge(specific, shared, global)
}

// exactGroup returns the applicable non-regex entries for endpoint
func (r *Resolver) exactGroup(endpoint, method string, mode models.Mode) []*entry {
	var group []*entry
	for _, e := range r.exact[endpoint] {
		if e.applies(method, mode) {
			group = append(group, e)
		}
	}
	return group
}

// regexGroup finds the winning regex entry and returns every applicable
// entry sharing its pattern
func (r *Resolver) regexGroup(endpoint, method string, mode models.Mode) []*entry {
	var winner *entry
	for _, e := range r.regex {
		if e.applies(method, mode) && e.re.MatchString(endpoint) {
			winner = e
			break
		}
	}
	if winner == nil {
		return nil
	}

	var group []*entry
	for _, e := range r.regex {
		if e.policy.EndpointPattern == winner.policy.EndpointPattern && e.applies(method, mode) {
			group = append(group, e)
		}
	}
	return group
}

func (e *entry) applies(method string, mode models.Mode) bool {
	if e.policy.Method != "*" && e.policy.Method != method {
		return false
	}
	if mode == models.ModeBoth {
		return e.policy.Mode == models.ModeBoth
	}
	return e.policy.Mode == mode || e.policy.Mode == models.ModeBoth
}

// pick prefers a method-specific policy over a wildcard one, then the lower
// priority; the current choice wins ties since it was registered first
func pick(current, next *models.MatchingPolicy) *models.MatchingPolicy {
	if current == nil {
		return next
	}
	currentWild, nextWild := current.Method == "*", next.Method == "*"
	if currentWild != nextWild {
		if nextWild {
			return current
		}
		return next
	}
	if next.Priority < current.Priority {
		return next
	}
	return current
}

// Resolve compiles policies and defaults and resolves a single endpoint
func Resolve(endpoint, method string, mode models.Mode, policies []*models.MatchingPolicy, defaults *models.GlobalDefaults) models.MatchingPolicy {
	return Compile(policies, defaults).Resolve(endpoint, method, mode)
}
