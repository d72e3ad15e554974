// Package device summarizes client user agents for audit records.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Describe renders a short "Browser on OS" label for a User-Agent header.
func Describe(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		if name == "" {
			name = "Bot"
		}
		return name + " (bot)"
	}

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OSInfo().Name
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	if ua.Mobile() && !strings.Contains(os, "Android") && !strings.Contains(os, "iPhone") {
		os += " (mobile)"
	}
	return strings.TrimSpace(browser) + " on " + strings.TrimSpace(os)
}
