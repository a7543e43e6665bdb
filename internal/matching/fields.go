package matching

import (
	"strings"

	"github.com/prasenjit/go-replay/internal/models"
	"github.com/tidwall/gjson"
)

// lookupHeader finds a header value, ignoring the case of the name. An exact
// key wins; among keys differing only by case the lexically smallest is used.
func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	key, found := "", false
	for k := range headers {
		if strings.EqualFold(k, name) && (!found || k < key) {
			key, found = k, true
		}
	}
	if !found {
		return "", false
	}
	return headers[key], true
}

// MatchHeaders reports whether every named header is present on both sides
// with equal values. Names are case-insensitive, values are not. It returns
// the first name that failed.
func MatchHeaders(names []string, request, candidate map[string]string) (bool, string) {
	for _, name := range names {
		want, ok := lookupHeader(request, name)
		if !ok {
			return false, name
		}
		got, ok := lookupHeader(candidate, name)
		if !ok || got != want {
			return false, name
		}
	}
	return true, ""
}

// MatchQueryParams reports whether every named parameter is present on both
// sides with equal values. It returns the first name that failed.
func MatchQueryParams(names []string, request, candidate map[string]string) (bool, string) {
	for _, name := range names {
		want, ok := request[name]
		if !ok {
			return false, name
		}
		got, ok := candidate[name]
		if !ok || got != want {
			return false, name
		}
	}
	return true, ""
}

// MatchBodyFields looks up each dot-notation path in both JSON bodies and
// reports whether all of them exist with equal values. Paths are checked in
// order and the first failing path is returned.
func MatchBodyFields(paths []string, requestBody, candidateBody string) (bool, string) {
	if len(paths) == 0 {
		return true, ""
	}
	for _, path := range paths {
		want := gjson.Get(requestBody, path)
		if !want.Exists() {
			return false, path
		}
		got := gjson.Get(candidateBody, path)
		if !got.Exists() || got.Type != want.Type || got.String() != want.String() {
			return false, path
		}
	}
	return true, ""
}

// MatchResponseStatus reports whether a recorded status satisfies the
// configured category or code
func MatchResponseStatus(match models.StatusMatch, status int) bool {
	switch match {
	case models.StatusAny:
		return true
	case models.StatusSuccess:
		return status >= 200 && status < 300
	case models.StatusError:
		return status >= 400
	}
	code, ok := match.Code()
	return ok && status == code
}
