package resolve

import (
	"github.com/prasenjit/go-replay/internal/models"
)

// Merge combines a mode-specific policy, a policy shared by both modes and the
// mode's global defaults. The first non-nil of specific and shared supplies
// identity, filters and priority. Soft fields (version, platform, language,
// environment, response status) come from the first layer that overrides
// and sets them, falling through to global.
func Merge(specific, shared *models.MatchingPolicy, global models.MatchingPolicy) models.MatchingPolicy {
	primary := specific
	if primary == nil {
		primary = shared
	}
	if primary == nil {
		return clonePolicy(global)
	}

	out := clonePolicy(*primary)
	if global.Mode != "" {
		out.Mode = global.Mode
	}

	layers := make([]*models.MatchingPolicy, 0, 3)
	if specific != nil && specific.Override {
		layers = append(layers, specific)
	}
	if shared != nil && shared.Override {
		layers = append(layers, shared)
	}
	layers = append(layers, &global)

	out.MatchVersion = ""
	out.MatchPlatform = ""
	out.MatchLanguage = ""
	out.MatchEnvironment = ""
	out.MatchResponseStatus = ""
	for _, l := range layers {
		if out.MatchVersion == "" {
			out.MatchVersion = l.MatchVersion
		}
		if out.MatchPlatform == "" {
			out.MatchPlatform = l.MatchPlatform
		}
		if out.MatchLanguage == "" {
			out.MatchLanguage = l.MatchLanguage
		}
		if out.MatchEnvironment == "" {
			out.MatchEnvironment = l.MatchEnvironment
		}
		if out.MatchResponseStatus == "" {
			out.MatchResponseStatus = l.MatchResponseStatus
		}
	}
	return out
}

func clonePolicy(p models.MatchingPolicy) models.MatchingPolicy {
	p.MatchHeaders = cloneStrings(p.MatchHeaders)
	p.MatchQueryParams = cloneStrings(p.MatchQueryParams)
	p.MatchBody = cloneStrings(p.MatchBody)
	return p
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
