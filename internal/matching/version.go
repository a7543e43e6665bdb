// Package matching compares request dimensions against recorded exchanges
// and selects the best replay candidate.
package matching

import (
	"math"
	"strconv"
	"strings"

	"github.com/prasenjit/go-replay/internal/models"
)

// Version is a parsed major.minor.patch version
type Version struct {
	Major int
	Minor int
	Patch int
}

// MaxVersionPart caps each parsed version part
const MaxVersionPart = math.MaxInt32

// MaxDistance is the largest distance Distance reports
const MaxDistance = math.MaxInt32

// ParseVersion parses "major.minor.patch". Missing parts and parts that are
// not all digits are 0; larger parts are capped at MaxVersionPart.
func ParseVersion(s string) Version {
	var parts [3]int
	for i, p := range strings.Split(strings.TrimSpace(s), ".") {
		if i >= len(parts) {
			break
		}
		parts[i] = parseVersionPart(strings.TrimSpace(p))
	}
	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}
}

func parseVersionPart(p string) int {
	if p == "" {
		return 0
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.ParseUint(p, 10, 64)
	if err != nil || n > MaxVersionPart {
		return MaxVersionPart
	}
	return int(n)
}

// Compare returns -1, 0 or 1 comparing v to o numerically, major first
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

// Distance weighs major differences over minor over patch. The result is
// never negative and saturates at MaxDistance.
func (v Version) Distance(o Version) int {
	d := 0
	for _, part := range []struct{ delta, weight int }{
		{abs(v.Major - o.Major), 10000},
		{abs(v.Minor - o.Minor), 100},
		{abs(v.Patch - o.Patch), 1},
	} {
		if part.delta > (MaxDistance-d)/part.weight {
			return MaxDistance
		}
		d += part.delta * part.weight
	}
	return d
}

// CompareVersions compares two version strings
func CompareVersions(a, b string) int {
	return ParseVersion(a).Compare(ParseVersion(b))
}

// VersionDistance returns the weighted distance between two version strings
func VersionDistance(a, b string) int {
	return ParseVersion(a).Distance(ParseVersion(b))
}

// versionsEqual is false when either side is missing
func versionsEqual(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	return CompareVersions(a, b) == 0
}

// MatchVersion picks the candidate for the requested version. Under exact it
// returns the first candidate with an equal version, or nil. Under closest it
// returns the candidate with the smallest distance; ties keep input order and
// candidates without a version are only used when nothing else is available.
func MatchVersion(version string, candidates []*models.CandidateExchange, mode models.VersionMode) *models.CandidateExchange {
	return first(bestRanked(candidates, versionRank(version, mode)))
}

func versionRank(version string, mode models.VersionMode) rankFunc {
	if mode == models.VersionExact {
		return func(c *models.CandidateExchange) int {
			if versionsEqual(version, c.Version) {
				return 0
			}
			return excluded
		}
	}
	if strings.TrimSpace(version) == "" {
		return func(*models.CandidateExchange) int { return 0 }
	}

	want := ParseVersion(version)
	return func(c *models.CandidateExchange) int {
		if strings.TrimSpace(c.Version) == "" {
			return math.MaxInt
		}
		return want.Distance(ParseVersion(c.Version))
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
