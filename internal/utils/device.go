package utils

import (
	"regexp"
	"strings"
)

// Fallback labels used by DescribeDevice.
const (
	UnknownDevice  = "unknown device"
	UnknownBrowser = "unknown browser"
	UnknownOS      = "unknown OS"
)

var (
	browserPattern = regexp.MustCompile(`(?i)(Chrome|Firefox|Safari|Edge|Opera|MSIE|Trident)[/\s](\d+)`)
	osPattern      = regexp.MustCompile(`(?i)(Windows|Mac OS|Linux|Android|iOS|iPhone|iPad)[^\s;)]*`)
)

// DescribeDevice turns a User-Agent header into a short "<browser> on <os>"
// label stored next to refresh tokens.  The first (leftmost) match wins for
// each part.  The label is diagnostic only.
func DescribeDevice(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return UnknownDevice
	}
	browser := UnknownBrowser
	if m := browserPattern.FindStringSubmatch(userAgent); m != nil {
		browser = m[1]
	}
	os := UnknownOS
	if m := osPattern.FindStringSubmatch(userAgent); m != nil {
		os = strings.Replace(m[1], "_", " ", 1)
	}
	return browser + " on " + os
}
