package definition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Repository fetches indexer definitions from the upstream repository.
type Repository struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	config     RepositoryConfig
}

// RepositoryConfig contains configuration for the upstream definition source.
type RepositoryConfig struct {
	BaseURL        string        // Default: "https://indexers.prowlarr.com"
	Version        string        // Default: "v11"
	RequestTimeout time.Duration // Default: 60s
	UserAgent      string        // Default: "StreamSieve/1.0"
}

// DefaultRepositoryConfig returns the default repository configuration.
func DefaultRepositoryConfig() RepositoryConfig {
	return RepositoryConfig{
		BaseURL:        "https://indexers.prowlarr.com",
		Version:        "v11",
		RequestTimeout: 60 * time.Second,
		UserAgent:      "StreamSieve/1.0",
	}
}

// Metadata describes one upstream definition without its full content.
type Metadata struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Language string `json:"language"`
}

// NewRepository creates a new upstream definition repository client.
// Requests are paced to at most one per 100ms.
func NewRepository(cfg RepositoryConfig, logger zerolog.Logger) *Repository {
	def := DefaultRepositoryConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	return &Repository{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		logger:     logger.With().Str("component", "definition-repo").Logger(),
		config:     cfg,
	}
}

func (r *Repository) buildURL(path string) string {
	return fmt.Sprintf("%s/definitions/%s/%s", r.config.BaseURL, r.config.Version, path)
}

func (r *Repository) get(ctx context.Context, url string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.config.UserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// FetchList retrieves the list of available definitions.
func (r *Repository) FetchList(ctx context.Context) ([]Metadata, error) {
	url := r.buildURL("index.json")
	r.logger.Debug().Str("url", url).Msg("Fetching definition list")

	data, err := r.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch definition list: %w", err)
	}

	var metadata []Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode definition list: %w", err)
	}

	r.logger.Info().Int("count", len(metadata)).Msg("Fetched definition list")
	return metadata, nil
}

// FetchDefinition retrieves a single raw definition document by id.
func (r *Repository) FetchDefinition(ctx context.Context, id string) ([]byte, error) {
	url := r.buildURL(id + ".yml")
	data, err := r.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch definition %q: %w", id, err)
	}
	return data, nil
}
