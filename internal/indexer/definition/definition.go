// Package definition implements the indexer definition store: parsing of
// upstream YAML definition documents, capability extraction, a local disk
// cache, and the periodic sync task that refreshes it.
package definition

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

// Definition represents a parsed indexer definition document. The documents
// describe how to search an indexer site: its mirror links, search paths and
// row/field selectors for HTML responses.
type Definition struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Language    string   `yaml:"language"`
	Type        string   `yaml:"type"` // public, private, semi-private
	Links       []string `yaml:"links"`
	LegacyLinks []string `yaml:"legacylinks"`

	Caps   Capabilities `yaml:"caps"`
	Search SearchBlock  `yaml:"search"`
}

// Capabilities describes what search modes and categories the indexer supports.
type Capabilities struct {
	CategoryMappings []CategoryMapping   `yaml:"categorymappings"`
	Modes            map[string][]string `yaml:"modes"` // search, tv-search, movie-search -> supported params
}

// CategoryMapping maps indexer-specific category IDs to standard Newznab categories.
type CategoryMapping struct {
	ID      string `yaml:"id"`
	Cat     string `yaml:"cat"` // Newznab category name (e.g., "Movies/HD")
	Desc    string `yaml:"desc"`
	Default bool   `yaml:"default"`
}

// SearchBlock defines how to execute searches and parse results.
type SearchBlock struct {
	Paths  []SearchPath     `yaml:"paths"`
	Inputs map[string]string `yaml:"inputs"`
	Rows   RowSelector      `yaml:"rows"`
	Fields map[string]Field `yaml:"fields"`
}

// SearchPath defines one search endpoint.
type SearchPath struct {
	Path     string          `yaml:"path"`
	Method   string          `yaml:"method"`
	Response *ResponseConfig `yaml:"response"`
}

// ResponseConfig specifies the response format of a search path.
type ResponseConfig struct {
	Type string `yaml:"type"` // json, rss, html (default)
}

// RowSelector defines how to find result rows in an HTML response.
type RowSelector struct {
	Selector string `yaml:"selector"`
	After    int    `yaml:"after"` // Skip N rows (e.g., header row)
	Remove   string `yaml:"remove"`
}

// Field defines how to extract a single piece of data from a result row.
type Field struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"` // href, src, title, ...
	Text      string `yaml:"text"`      // Static value
	Optional  bool   `yaml:"optional"`
}

// Parse parses an indexer definition from YAML bytes.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition YAML: %w", err)
	}
	if def.ID == "" {
		return nil, fmt.Errorf("definition has no id")
	}
	return &def, nil
}

// Domains returns the indexer's mirror base URLs in preference order.
// Primary links come first, legacy links after.
func (d *Definition) Domains() []string {
	domains := make([]string, 0, len(d.Links)+len(d.LegacyLinks))
	seen := make(map[string]bool)
	for _, link := range append(append([]string{}, d.Links...), d.LegacyLinks...) {
		u := strings.TrimSpace(link)
		if u == "" || seen[u] {
			continue
		}
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		seen[u] = true
		domains = append(domains, u)
	}
	return domains
}

// IsPublic reports whether the definition describes a public indexer.
func (d *Definition) IsPublic() bool {
	return d.Type == "" || d.Type == "public"
}

// SearchPaths returns the definition's search endpoints with response kinds
// resolved. Paths with an empty template are dropped.
func (d *Definition) SearchPaths() []types.SearchPath {
	paths := make([]types.SearchPath, 0, len(d.Search.Paths))
	for _, p := range d.Search.Paths {
		if strings.TrimSpace(p.Path) == "" {
			continue
		}
		method := strings.ToUpper(p.Method)
		if method == "" {
			method = "GET"
		}
		kind := types.ResponseHTML
		if p.Response != nil {
			switch strings.ToLower(p.Response.Type) {
			case "json":
				kind = types.ResponseJSON
			case "xml", "rss":
				kind = types.ResponseRSS
			}
		}
		paths = append(paths, types.SearchPath{
			Path:     p.Path,
			Method:   method,
			Response: kind,
		})
	}
	return paths
}

// ContentTypes derives the user-facing content types the indexer covers from
// its category mappings. The derivation is deterministic: the same document
// always yields the same (sorted) set. Indexers whose categories cover none
// of the user-facing types (adult, games, audio) yield an empty set and are
// never selected for a search.
func (d *Definition) ContentTypes() []types.ContentType {
	set := make(map[types.ContentType]bool)
	for _, m := range d.Caps.CategoryMappings {
		cat := strings.ToLower(m.Cat)
		switch {
		case strings.Contains(cat, "anime"):
			set[types.ContentAnime] = true
		case strings.HasPrefix(cat, "movies"):
			set[types.ContentMovie] = true
		case strings.HasPrefix(cat, "tv"):
			set[types.ContentSeries] = true
		}
	}
	out := make([]types.ContentType, 0, len(set))
	for ct := range set {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Usable reports whether the definition can back a search at all.
func (d *Definition) Usable() bool {
	return len(d.Domains()) > 0 && len(d.SearchPaths()) > 0
}
