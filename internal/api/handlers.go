package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/search"
)

// manifest describes the addon to clients.
type manifest struct {
	ID            string          `json:"id"`
	Version       string          `json:"version"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Resources     []string        `json:"resources"`
	Types         []string        `json:"types"`
	IDPrefixes    []string        `json:"idPrefixes"`
	Catalogs      []any           `json:"catalogs"`
	BehaviorHints map[string]bool `json:"behaviorHints,omitempty"`
}

func (s *Server) handleManifest(c echo.Context) error {
	return c.JSON(http.StatusOK, manifest{
		ID:          "com.streamsieve.addon",
		Version:     "1.0.0",
		Name:        "StreamSieve",
		Description: "Aggregated torrent meta-search across public indexers.",
		Resources:   []string{"stream"},
		Types:       []string{"movie", "series", "anime"},
		IDPrefixes:  []string{"tt", "kitsu"},
		Catalogs:    []any{},
		BehaviorHints: map[string]bool{
			"configurable": true,
		},
	})
}

// stream is one entry in the addon stream response.
type stream struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	InfoHash      string         `json:"infoHash"`
	Sources       []string       `json:"sources,omitempty"`
	BehaviorHints map[string]any `json:"behaviorHints,omitempty"`
}

type streamResponse struct {
	Streams []stream `json:"streams"`
}

// handleStream answers /stream/{type}/{id}.json. The id carries optional
// season and episode as "tt1234567:1:3".
func (s *Server) handleStream(c echo.Context) error {
	contentType, err := parseContentType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, season, episode, err := parseStreamID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results := s.dispatcher.Search(c.Request().Context(), search.Request{
		ID:       id,
		Type:     contentType,
		Season:   season,
		Episode:  episode,
		Deadline: 0, // dispatcher default
	})

	streams := make([]stream, 0, len(results))
	for _, r := range results {
		streams = append(streams, toStream(r))
	}
	return c.JSON(http.StatusOK, streamResponse{Streams: streams})
}

func (s *Server) handleHealth(c echo.Context) error {
	status := "ok"
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":     status,
		"lastSyncAt": s.definitions.LastSyncAt(),
		"time":       time.Now().UTC(),
	})
}

func parseContentType(raw string) (types.ContentType, error) {
	switch raw {
	case "movie":
		return types.ContentMovie, nil
	case "series":
		return types.ContentSeries, nil
	case "anime":
		return types.ContentAnime, nil
	default:
		return "", fmt.Errorf("unsupported type %q", raw)
	}
}

// parseStreamID splits "tt1234567:1:3.json" into id, season and episode.
func parseStreamID(raw string) (id string, season, episode int, err error) {
	raw = strings.TrimSuffix(raw, ".json")
	if raw == "" {
		return "", 0, 0, fmt.Errorf("empty id")
	}

	parts := strings.Split(raw, ":")
	if strings.HasPrefix(raw, "kitsu:") && len(parts) >= 2 {
		// kitsu ids are themselves colon-separated: kitsu:<num>[:<episode>]
		id = parts[0] + ":" + parts[1]
		parts = parts[2:]
		if len(parts) >= 1 {
			episode, _ = strconv.Atoi(parts[0])
		}
		return id, 0, episode, nil
	}

	id = parts[0]
	if len(parts) >= 2 {
		season, _ = strconv.Atoi(parts[1])
	}
	if len(parts) >= 3 {
		episode, _ = strconv.Atoi(parts[2])
	}
	return id, season, episode, nil
}

// toStream formats one result for the addon client.
func toStream(r types.Result) stream {
	var info []string
	if r.Resolution != "" {
		info = append(info, r.Resolution)
	}
	if r.Size > 0 {
		info = append(info, formatSize(r.Size))
	}
	info = append(info, fmt.Sprintf("S:%d", r.Seeders))
	info = append(info, r.Provider)

	return stream{
		Name:     "StreamSieve",
		Title:    r.Title + "\n" + strings.Join(info, " | "),
		InfoHash: r.InfoHash,
		BehaviorHints: map[string]any{
			"bingeGroup": "streamsieve-" + r.Resolution,
		},
	}
}

func formatSize(bytes int64) string {
	const (
		gb = 1 << 30
		mb = 1 << 20
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.0f MB", float64(bytes)/mb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
