package middleware

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent renders a short "Browser on OS" description for request logs.
func ParseUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "Unknown Device"
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := parsed.OS()
	if os == "" {
		os = parsed.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// IsBot reports whether the user agent identifies a crawler or script.
func IsBot(ua string) bool {
	if ua == "" {
		return false
	}
	return useragent.New(ua).Bot()
}
