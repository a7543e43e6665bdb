package matching

import (
	"strings"

	"github.com/prasenjit/go-replay/internal/models"
)

// rankFunc orders candidates on one dimension. Lower ranks are preferred and
// excluded removes the candidate.
type rankFunc func(*models.CandidateExchange) int

const excluded = -1

// bestRanked returns the candidates sharing the lowest rank, in input order
func bestRanked(candidates []*models.CandidateExchange, rank rankFunc) []*models.CandidateExchange {
	var best []*models.CandidateExchange
	bestRank := 0
	for _, c := range candidates {
		r := rank(c)
		switch {
		case r == excluded:
		case best == nil || r < bestRank:
			best, bestRank = []*models.CandidateExchange{c}, r
		case r == bestRank:
			best = append(best, c)
		}
	}
	return best
}

func first(candidates []*models.CandidateExchange) *models.CandidateExchange {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// MatchPlatform returns the first candidate whose platform equals the
// request's, ignoring case. Under any it falls back to the first candidate;
// under exact it returns nil instead of widening.
func MatchPlatform(platform string, candidates []*models.CandidateExchange, mode models.PlatformMode) *models.CandidateExchange {
	return first(bestRanked(candidates, platformRank(platform, mode)))
}

func platformRank(platform string, mode models.PlatformMode) rankFunc {
	return func(c *models.CandidateExchange) int {
		switch {
		case platformsEqual(platform, c.Platform):
			return 0
		case mode == models.PlatformExact:
			return excluded
		}
		return 1
	}
}

func platformsEqual(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// NormalizeLanguage lowercases and strips separators: "en-US" -> "enus"
func NormalizeLanguage(lang string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(lang)))
}

// languageCode returns the leading code: "en-US" -> "en"
func languageCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		return lang[:i]
	}
	return lang
}

func languagesEqual(a, b string) bool {
	return a != "" && NormalizeLanguage(a) == NormalizeLanguage(b)
}

// MatchLanguage walks the language fallback chain: exact normalized match,
// same leading language code, any English candidate, then the first
// candidate. It only returns nil for an empty candidate list.
func MatchLanguage(language string, candidates []*models.CandidateExchange) *models.CandidateExchange {
	return first(bestRanked(candidates, languageRank(language)))
}

func languageRank(language string) rankFunc {
	code := languageCode(language)
	return func(c *models.CandidateExchange) int {
		switch {
		case languagesEqual(language, c.Language):
			return 0
		case code != "" && languageCode(c.Language) == code:
			return 1
		case strings.HasPrefix(NormalizeLanguage(c.Language), "en"):
			return 2
		}
		return 3
	}
}

// environmentFallbacks lists, per requested environment, the order in which
// recorded environments are tried
var environmentFallbacks = map[string][]string{
	"dev":   {"dev", "sit", "stage", "prod"},
	"sit":   {"sit", "dev", "stage", "prod"},
	"stage": {"stage", "sit", "dev", "prod"},
	"prod":  {"prod", "stage", "sit", "dev"},
}

var defaultEnvironmentOrder = []string{"sit", "dev", "stage", "prod"}

// EnvironmentOrder returns the fallback order for an environment
func EnvironmentOrder(env string) []string {
	if order, ok := environmentFallbacks[NormalizeEnvironment(env)]; ok {
		return order
	}
	return defaultEnvironmentOrder
}

// NormalizeEnvironment lowercases an environment name
func NormalizeEnvironment(env string) string {
	return strings.ToLower(strings.TrimSpace(env))
}

// TargetEnvironment returns the environment whose fallback order ranks
// recordings: the request's own, or the one a named mode gives when the
// request carries none. Exact mode without a request environment yields "".
func TargetEnvironment(mode models.EnvironmentMode, requested string) string {
	if env := NormalizeEnvironment(requested); env != "" {
		return env
	}
	if mode == models.EnvironmentExact || mode == "" {
		return ""
	}
	return string(mode)
}

// MatchEnvironment returns the candidate recorded in env. Without fallback
// only an equal environment matches. With fallback the environment's order
// table is walked and, failing that, the first candidate is returned.
func MatchEnvironment(env string, candidates []*models.CandidateExchange, fallback bool) *models.CandidateExchange {
	return first(bestRanked(candidates, environmentRank(env, fallback)))
}

func environmentRank(env string, fallback bool) rankFunc {
	env = NormalizeEnvironment(env)
	if !fallback {
		return func(c *models.CandidateExchange) int {
			if env != "" && NormalizeEnvironment(c.Environment) == env {
				return 0
			}
			return excluded
		}
	}

	order := EnvironmentOrder(env)
	return func(c *models.CandidateExchange) int {
		got := NormalizeEnvironment(c.Environment)
		for i, want := range order {
			if got == want {
				return i
			}
		}
		return len(order)
	}
}
