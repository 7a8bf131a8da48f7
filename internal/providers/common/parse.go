// Package common holds parsing helpers shared by the hand-coded indexer
// drivers.
package common

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanHTMLText strips tags and entities from a scraped fragment and
// collapses whitespace.
func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// ParseHumanSize converts a human-readable size like "1.4 GB" or "700 MiB"
// to bytes. Unparseable input yields 0.
func ParseHumanSize(raw string) int64 {
	value := strings.TrimSpace(strings.ToUpper(raw))
	value = strings.ReplaceAll(value, " ", " ")
	if value == "" {
		return 0
	}

	unit := ""
	number := value
	for _, suffix := range []string{"TIB", "GIB", "MIB", "KIB", "TB", "GB", "MB", "KB", "B"} {
		if strings.HasSuffix(number, suffix) {
			unit = suffix
			number = strings.TrimSpace(strings.TrimSuffix(number, suffix))
			break
		}
	}
	if unit == "" {
		if parsed, err := strconv.ParseInt(number, 10, 64); err == nil {
			return parsed
		}
		return 0
	}

	parsed, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", "."), 64)
	if err != nil || parsed < 0 {
		return 0
	}

	multiplier := float64(1)
	switch unit {
	case "KB", "KIB":
		multiplier = 1 << 10
	case "MB", "MIB":
		multiplier = 1 << 20
	case "GB", "GIB":
		multiplier = 1 << 30
	case "TB", "TIB":
		multiplier = 1 << 40
	}
	return int64(parsed * multiplier)
}

// ParseInt converts a scraped integer field like "1,234" to an int.
// Unparseable input yields 0.
func ParseInt(raw string) int {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

var resolutionPattern = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|480p|4k)\b`)

// DetectResolution extracts a resolution token from a release title.
func DetectResolution(title string) string {
	m := resolutionPattern.FindString(title)
	if m == "" {
		return ""
	}
	m = strings.ToLower(m)
	if m == "4k" {
		return "2160p"
	}
	return m
}
