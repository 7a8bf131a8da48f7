// Package types contains shared type definitions for the indexer subsystems.
package types

import (
	"regexp"
	"strings"
	"time"
)

// ContentType identifies the user-facing content category of a search.
type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
	ContentAnime  ContentType = "anime"
)

// ResponseKind identifies how a search path's response is parsed.
type ResponseKind string

const (
	ResponseHTML ResponseKind = "html"
	ResponseJSON ResponseKind = "json"
	ResponseRSS  ResponseKind = "rss"
)

// SolverNeed is the tri-state record of whether an indexer has been observed
// to require challenge-solver assistance.
type SolverNeed int

const (
	SolverUnknown SolverNeed = -1
	SolverNo      SolverNeed = 0
	SolverYes     SolverNeed = 1
)

// SearchPath is a resolved search endpoint of an indexer.
type SearchPath struct {
	Path     string       `json:"path"`
	Method   string       `json:"method"`
	Response ResponseKind `json:"response"`
}

// Query carries the parameters of one per-indexer search.
type Query struct {
	Keywords string
	IMDBID   string // with "tt" prefix
	KitsuID  string
	Season   int
	Episode  int
	Page     int
	Type     ContentType
}

// Result is one torrent entry produced by a driver.
type Result struct {
	InfoHash   string      `json:"infoHash"`
	Title      string      `json:"title"`
	Size       int64       `json:"size"`
	Seeders    int         `json:"seeders"`
	UploadedAt time.Time   `json:"uploadedAt,omitempty"`
	Provider   string      `json:"provider"`
	MagnetURI  string      `json:"magnetUri,omitempty"`
	Resolution string      `json:"resolution,omitempty"`
	Type       ContentType `json:"type"`
	IMDBID     string      `json:"imdbId,omitempty"`
	KitsuID    string      `json:"kitsuId,omitempty"`
	Season     int         `json:"season,omitempty"`
	Episode    int         `json:"episode,omitempty"`

	// Extras carries driver-specific metadata that has no place in the
	// core record. Never read by the dispatcher.
	Extras map[string]string `json:"-"`
}

var infoHashPattern = regexp.MustCompile(`^[a-f0-9]{40}$`)

// NormalizeInfoHash lowercases an infoHash and reports whether the result is
// a canonical 40-hex digest.
func NormalizeInfoHash(raw string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "urn:btih:")
	return h, infoHashPattern.MatchString(h)
}

// HealthRow is the mutable per-indexer health record.
type HealthRow struct {
	ID                  string
	DisplayName         string
	Language            string
	IsPublic            bool
	Domains             []string
	SearchPaths         []SearchPath
	ContentTypes        []ContentType
	LastCheckedAt       time.Time
	LastSucceededAt     time.Time
	TotalChecks         int64
	TotalSuccesses      int64
	TotalFailures       int64
	SuccessRate         float64
	AvgResponseMs       float64
	ConsecutiveFailures int
	DisabledUntil       *time.Time
	Enabled             bool
	WorkingDomain       string
	LastError           string
	RequiresSolver      SolverNeed
	Priority            float64
}

// SupportsContent reports whether the indexer covers the given content type.
// An empty ContentTypes set never matches anything.
func (r *HealthRow) SupportsContent(ct ContentType) bool {
	for _, c := range r.ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// IsDisabled reports whether the circuit breaker holds the indexer off at
// the given instant.
func (r *HealthRow) IsDisabled(now time.Time) bool {
	return r.DisabledUntil != nil && now.Before(*r.DisabledUntil)
}

// Cookie is one browser cookie captured from a solved challenge session.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Session is a solved challenge session shared across requests to a host.
type Session struct {
	Host      string
	Cookies   []Cookie
	UserAgent string
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return len(s.Cookies) == 0 || !now.Before(s.ExpiresAt)
}
