package generator

import (
	"regexp"
	"strings"
)

var (
	rateLimitHintRe = regexp.MustCompile(`(?i)rate limit|too many requests|requests per (?:minute|hour|day)|quota|throttl|429\b`)
	authHintRe      = regexp.MustCompile(`(?i)invalid.*(api.?key|token)|unauthorized|authentication|expired.*(token|key)|401\b|403\b`)
)

// IsLikelyRateLimitError reports whether a generation failure looks like
// throttling. The orchestrator treats every generation failure the same;
// this only sharpens log and report text.
func IsLikelyRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return rateLimitHintRe.MatchString(err.Error())
}

func IsLikelyAuthError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.TrimSpace(err.Error())
	if text == "" {
		return false
	}
	if rateLimitHintRe.MatchString(text) {
		return false
	}
	return authHintRe.MatchString(text)
}
