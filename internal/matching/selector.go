package matching

import (
	"github.com/prasenjit/go-replay/internal/models"
)

// Dimension weights used when scoring candidates that passed hard filtering.
// A weight only counts when its dimension is configured for the policy.
const (
	WeightVersion     = 40
	WeightPlatform    = 20
	WeightLanguage    = 15
	WeightEnvironment = 15
	WeightQueryParams = 5
	WeightHeaders     = 5
)

// Rejection reasons reported for candidates removed by hard filters
const (
	RejectHeaders     = "headers"
	RejectQueryParams = "queryParams"
	RejectBody        = "body"
	RejectStatus      = "responseStatus"
	RejectVersion     = "version"
	RejectPlatform    = "platform"
)

// FindBestMatch selects the recorded exchange that best matches the request
// under policy. Candidates failing a hard filter are discarded; survivors are
// scored 0..100 and the highest score wins. Equal scores are narrowed by the
// version, platform, language and environment fallback chains, then go to
// the most recently created exchange and finally to input order. A nil
// Selected means no match.
func FindBestMatch(req models.RequestDescriptor, candidates []*models.CandidateExchange, policy models.MatchingPolicy) models.MatchOutcome {
	outcome := models.MatchOutcome{Considered: len(candidates)}

	survivors := make([]*models.CandidateExchange, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if reason := rejectReason(req, c, policy); reason != "" {
			outcome.Rejections = append(outcome.Rejections, models.Rejection{ExchangeID: c.ID, Reason: reason})
			continue
		}
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		return outcome
	}
	outcome.SatisfiedHardFilters = true

	applicable := applicableWeight(req, policy)
	if applicable == 0 {
		outcome.Selected = survivors[0]
		return outcome
	}

	var tied []*models.CandidateExchange
	bestEarned := -1
	for _, c := range survivors {
		earned := earnedWeight(req, c, policy)
		switch {
		case earned > bestEarned:
			tied, bestEarned = []*models.CandidateExchange{c}, earned
		case earned == bestEarned:
			tied = append(tied, c)
		}
	}

	outcome.Selected = breakTie(req, tied, policy)
	outcome.Score = float64(bestEarned) / float64(applicable) * 100
	return outcome
}

// breakTie picks among equally scored candidates
func breakTie(req models.RequestDescriptor, tied []*models.CandidateExchange, policy models.MatchingPolicy) *models.CandidateExchange {
	chains := []rankFunc{versionRank(req.Version, models.VersionClosest)}
	if req.Platform != "" {
		chains = append(chains, platformRank(req.Platform, models.PlatformAny))
	}
	chains = append(chains, languageRank(req.Language))
	fallback := policy.MatchEnvironment != "" && policy.MatchEnvironment != models.EnvironmentExact
	if env := TargetEnvironment(policy.MatchEnvironment, req.Environment); env != "" {
		chains = append(chains, environmentRank(env, fallback))
	}

	for _, rank := range chains {
		if len(tied) == 1 {
			break
		}
		if narrowed := bestRanked(tied, rank); len(narrowed) > 0 {
			tied = narrowed
		}
	}

	best := tied[0]
	for _, c := range tied[1:] {
		if c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	return best
}

// rejectReason returns the first hard filter c fails, or ""
func rejectReason(req models.RequestDescriptor, c *models.CandidateExchange, policy models.MatchingPolicy) string {
	if ok, field := MatchHeaders(policy.MatchHeaders, req.Headers, c.Headers); !ok {
		return RejectHeaders + ":" + field
	}
	if ok, field := MatchQueryParams(policy.MatchQueryParams, req.QueryParams, c.QueryParams); !ok {
		return RejectQueryParams + ":" + field
	}
	if ok, field := MatchBodyFields(policy.MatchBody, req.Body, c.Body); !ok {
		return RejectBody + ":" + field
	}
	if !MatchResponseStatus(policy.MatchResponseStatus, c.ResponseStatus) {
		return RejectStatus
	}
	if policy.MatchVersion == models.VersionExact && !versionsEqual(req.Version, c.Version) {
		return RejectVersion
	}
	if policy.MatchPlatform == models.PlatformExact && !platformsEqual(req.Platform, c.Platform) {
		return RejectPlatform
	}
	return ""
}

// applicableWeight sums the weights of the dimensions this policy scores
func applicableWeight(req models.RequestDescriptor, policy models.MatchingPolicy) int {
	total := 0
	if req.Version != "" {
		total += WeightVersion
	}
	if policy.MatchPlatform == models.PlatformExact {
		total += WeightPlatform
	}
	if policy.MatchLanguage == models.LanguageExact {
		total += WeightLanguage
	}
	if NormalizeEnvironment(req.Environment) != "" {
		total += WeightEnvironment
	}
	if len(policy.MatchQueryParams) > 0 {
		total += WeightQueryParams
	}
	if len(policy.MatchHeaders) > 0 {
		total += WeightHeaders
	}
	return total
}

// earnedWeight scores c on every dimension counted by applicableWeight
func earnedWeight(req models.RequestDescriptor, c *models.CandidateExchange, policy models.MatchingPolicy) int {
	earned := 0
	if req.Version != "" && c.Version != "" {
		if versionsEqual(req.Version, c.Version) {
			earned += WeightVersion
		} else if d := VersionDistance(req.Version, c.Version); d >= 0 && d < WeightVersion {
			earned += WeightVersion - d
		}
	}
	if policy.MatchPlatform == models.PlatformExact && platformsEqual(req.Platform, c.Platform) {
		earned += WeightPlatform
	}
	if policy.MatchLanguage == models.LanguageExact && languagesEqual(req.Language, c.Language) {
		earned += WeightLanguage
	}
	if env := NormalizeEnvironment(req.Environment); env != "" && NormalizeEnvironment(c.Environment) == env {
		earned += WeightEnvironment
	}
	// Candidates reaching scoring already passed the query and header filters
	if len(policy.MatchQueryParams) > 0 {
		earned += WeightQueryParams
	}
	if len(policy.MatchHeaders) > 0 {
		earned += WeightHeaders
	}
	return earned
}
