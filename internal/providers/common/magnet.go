package common

import (
	"net/url"
	"strings"
)

// DefaultTrackers is the tracker set appended to magnets built from a bare
// infoHash.
var DefaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
}

// StripInfoHash lowercases and removes the urn:btih: prefix from a raw hash
// without validating it.
func StripInfoHash(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.ToLower(value), "urn:btih:")
	return value
}

// BuildMagnet assembles a magnet URI from an infoHash, display name and
// tracker list. An empty hash yields an empty string.
func BuildMagnet(infoHash, name string, trackers []string) string {
	hash := StripInfoHash(infoHash)
	if hash == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(hash)
	if strings.TrimSpace(name) != "" {
		builder.WriteString("&dn=")
		builder.WriteString(url.QueryEscape(strings.TrimSpace(name)))
	}
	for _, tracker := range trackers {
		value := strings.TrimSpace(tracker)
		if value == "" {
			continue
		}
		builder.WriteString("&tr=")
		builder.WriteString(url.QueryEscape(value))
	}
	return builder.String()
}

// InfoHashFromMagnet extracts the infoHash from a magnet URI.
func InfoHashFromMagnet(magnet string) string {
	parsed, err := url.Parse(strings.TrimSpace(magnet))
	if err != nil || parsed.Scheme != "magnet" {
		return ""
	}
	for _, xt := range parsed.Query()["xt"] {
		if strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
			return StripInfoHash(xt)
		}
	}
	return ""
}
