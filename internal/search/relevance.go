package search

import (
	"math"
	"regexp"
	"strings"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

// stopWords are common English tokens that carry no identifying power in a
// release title.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "is": true, "it": true,
}

var (
	apostrophePattern = regexp.MustCompile("[''`‘’ʼ]")
	punctPattern      = regexp.MustCompile(`[^a-z0-9\s]`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// RelevanceConfig holds the token-overlap thresholds. The defaults require
// every token for short titles and a 60% majority for longer ones.
type RelevanceConfig struct {
	ShortTitleThreshold float64 // applied when the title has at most 2 significant tokens
	LongTitleThreshold  float64
}

// DefaultRelevanceConfig returns the default thresholds.
func DefaultRelevanceConfig() RelevanceConfig {
	return RelevanceConfig{
		ShortTitleThreshold: 1.0,
		LongTitleThreshold:  0.6,
	}
}

// RelevanceFilter discards results whose titles are insufficiently related
// to the resolved query title. It defends against indexers that answer a
// broken search with their homepage listing.
type RelevanceFilter struct {
	config RelevanceConfig
}

// NewRelevanceFilter creates a filter with the given thresholds; zero values
// fall back to the defaults.
func NewRelevanceFilter(cfg RelevanceConfig) *RelevanceFilter {
	def := DefaultRelevanceConfig()
	if cfg.ShortTitleThreshold <= 0 {
		cfg.ShortTitleThreshold = def.ShortTitleThreshold
	}
	if cfg.LongTitleThreshold <= 0 {
		cfg.LongTitleThreshold = def.LongTitleThreshold
	}
	return &RelevanceFilter{config: cfg}
}

// normalizeTitle lowercases, strips apostrophes within words, replaces other
// punctuation with spaces and collapses whitespace.
func normalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = apostrophePattern.ReplaceAllString(s, "")
	s = punctPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// significantTokens tokenizes a normalized title, dropping stop words and
// single-character tokens.
func significantTokens(title string) []string {
	var tokens []string
	for _, tok := range strings.Fields(normalizeTitle(title)) {
		if len(tok) <= 1 || stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Apply filters candidates against the resolved title. imdbID, when present
// in a candidate's title, accepts that candidate unconditionally. A title
// made entirely of stop words disables the filter.
func (f *RelevanceFilter) Apply(results []types.Result, title, imdbID string) []types.Result {
	tokens := significantTokens(title)
	if len(tokens) == 0 {
		return results
	}

	threshold := f.config.LongTitleThreshold
	if len(tokens) <= 2 {
		threshold = f.config.ShortTitleThreshold
	}
	required := int(math.Ceil(float64(len(tokens)) * threshold))

	imdbID = strings.ToLower(strings.TrimSpace(imdbID))

	kept := make([]types.Result, 0, len(results))
	for _, r := range results {
		if imdbID != "" && strings.Contains(strings.ToLower(r.Title), imdbID) {
			kept = append(kept, r)
			continue
		}
		if matchCount(tokens, r.Title) >= required {
			kept = append(kept, r)
		}
	}
	return kept
}

// matchCount counts how many query tokens appear whole-word in the candidate
// title.
func matchCount(tokens []string, candidate string) int {
	candidateTokens := strings.Fields(normalizeTitle(candidate))
	set := make(map[string]bool, len(candidateTokens))
	for _, tok := range candidateTokens {
		set[tok] = true
	}
	n := 0
	for _, tok := range tokens {
		if set[tok] {
			n++
		}
	}
	return n
}
