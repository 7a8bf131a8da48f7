// Package challenge detects anti-bot interstitials in HTTP responses.
package challenge

import (
	"net/http"
	"regexp"
	"strings"
)

// Tag classifies a blocked response.
type Tag string

const (
	TagNone        Tag = ""
	TagCFJS        Tag = "cf-js"
	TagCFCaptcha   Tag = "cf-captcha"
	TagCFDenied    Tag = "cf-denied"
	TagCFError1020 Tag = "cf-error-1020"
	TagCFPage      Tag = "cf-challenge-page"
	TagDDoSGuard   Tag = "ddos-guard"
	TagDDoSGeneric Tag = "ddos-generic"
	TagSucuri      Tag = "sucuri"
	TagAkamai      Tag = "akamai"
	TagRateLimited Tag = "rate-limited"
	TagForbidden   Tag = "forbidden"
	TagUnavailable Tag = "unavailable"
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

var cfPageMarkers = []string{
	"cf-challenge-running",
	"cf-please-wait",
	"challenge-spinner",
	"turnstile-wrapper",
	"cf-error-title",
}

// Detect classifies a response as blocked or not. It is a pure function of
// status, headers and body; TagNone means no block was detected.
func Detect(status int, header http.Header, body string) Tag {
	title := extractTitle(body)
	lowerBody := strings.ToLower(body)
	server := strings.ToLower(header.Get("Server"))
	blockedStatus := status == http.StatusForbidden || status == http.StatusServiceUnavailable

	if blockedStatus {
		switch {
		case strings.Contains(title, "just a moment..."):
			return TagCFJS
		case strings.Contains(title, "attention required! | cloudflare"),
			strings.Contains(title, "attention required! cloudflare"):
			return TagCFCaptcha
		case strings.Contains(title, "access denied") && strings.Contains(server, "cloudflare"):
			return TagCFDenied
		}
	}

	if strings.Contains(body, "Error code: 1020") {
		return TagCFError1020
	}

	if (blockedStatus && strings.Contains(title, "ddos-guard")) || strings.Contains(server, "ddos-guard") {
		return TagDDoSGuard
	}

	if blockedStatus &&
		header.Get("Vary") == "Accept-Encoding,User-Agent" &&
		strings.Contains(lowerBody, "ddos") {
		return TagDDoSGeneric
	}

	for _, marker := range cfPageMarkers {
		if strings.Contains(lowerBody, marker) {
			return TagCFPage
		}
	}

	if strings.Contains(lowerBody, "sucuri") &&
		(status == http.StatusForbidden || strings.Contains(lowerBody, "access denied")) {
		return TagSucuri
	}

	if strings.Contains(lowerBody, "akamai") && status == http.StatusForbidden {
		return TagAkamai
	}

	switch status {
	case http.StatusTooManyRequests:
		return TagRateLimited
	case http.StatusForbidden:
		return TagForbidden
	case http.StatusServiceUnavailable:
		return TagUnavailable
	}

	return TagNone
}

// Solvable reports whether the tag is eligible for a challenge-solver
// attempt. Only Cloudflare and DDoS-Guard class blocks can be solved; the
// rest are permanent failures for the mirror.
func (t Tag) Solvable() bool {
	return strings.HasPrefix(string(t), "cf-") || strings.HasPrefix(string(t), "ddos-")
}

// Blocked reports whether the tag marks a blocked response.
func (t Tag) Blocked() bool {
	return t != TagNone
}

func extractTitle(body string) string {
	m := titlePattern.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m[1]))
}
