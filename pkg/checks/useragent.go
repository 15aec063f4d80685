package checks

import (
	"strings"

	"github.com/avct/uasurfer"
)

// Substrings that mark a user agent as an automation tool. Matching
// is case-insensitive.
var botKeywords = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"automated",
	"headless",
}

// Tokens present in every mainstream browser user agent.
var browserTokens = []string{
	"Mozilla",
	"Chrome",
	"Safari",
}

// MatchesBotKeyword reports whether the user agent contains any of
// the known automation keywords.
func MatchesBotKeyword(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, kw := range botKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsDeclaredBot reports whether the user agent either contains a bot
// keyword or parses as a bot per uasurfer.
func IsDeclaredBot(userAgent string) bool {
	if MatchesBotKeyword(userAgent) {
		return true
	}
	parsed := uasurfer.Parse(userAgent)
	return parsed.Browser.Name == uasurfer.BrowserBot ||
		parsed.OS.Name == uasurfer.OSBot ||
		parsed.OS.Platform == uasurfer.PlatformBot
}

// MissingBrowserTokens reports whether the user agent lacks all of
// the common browser identification tokens.
func MissingBrowserTokens(userAgent string) bool {
	for _, token := range browserTokens {
		if strings.Contains(userAgent, token) {
			return false
		}
	}
	return true
}
