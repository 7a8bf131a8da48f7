// Package metadata resolves content ids to display titles via the Cinemeta
// catalog service.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

// Config controls the resolver.
type Config struct {
	BaseURL  string        // Default: "https://v3-cinemeta.strem.io"
	Timeout  time.Duration // Default: 5s
	CacheTTL time.Duration // Default: 24h
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://v3-cinemeta.strem.io",
		Timeout:  5 * time.Second,
		CacheTTL: 24 * time.Hour,
	}
}

type cacheEntry struct {
	title     string
	expiresAt time.Time
}

// Resolver is the Cinemeta client with an in-process TTL cache. Concurrent
// lookups for the same id collapse into one upstream call.
type Resolver struct {
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group

	logger zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg Config, logger zerolog.Logger) *Resolver {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Resolver{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		ttl:        cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      make(map[string]cacheEntry),
		logger:     logger.With().Str("component", "metadata").Logger(),
	}
}

type metaResponse struct {
	Meta struct {
		Name        string   `json:"name"`
		ReleaseInfo string   `json:"releaseInfo"`
		Genres      []string `json:"genres"`
	} `json:"meta"`
}

// ResolveTitle returns the display title for an IMDB id.
func (r *Resolver) ResolveTitle(ctx context.Context, contentType types.ContentType, imdbID string) (string, error) {
	metaType := "movie"
	if contentType == types.ContentSeries || contentType == types.ContentAnime {
		metaType = "series"
	}
	key := metaType + "/" + imdbID

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.title, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		title, err := r.fetch(ctx, metaType, imdbID)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.cache[key] = cacheEntry{title: title, expiresAt: time.Now().Add(r.ttl)}
		r.mu.Unlock()
		return title, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) fetch(ctx context.Context, metaType, imdbID string) (string, error) {
	url := fmt.Sprintf("%s/meta/%s/%s.json", r.baseURL, metaType, imdbID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed metaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode metadata: %w", err)
	}
	if parsed.Meta.Name == "" {
		return "", fmt.Errorf("no title for %s", imdbID)
	}

	r.logger.Debug().Str("id", imdbID).Str("title", parsed.Meta.Name).Msg("Resolved title")
	return parsed.Meta.Name, nil
}
