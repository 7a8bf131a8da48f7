// Package yts queries the YTS movie API.
package yts

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/providers/common"
)

var defaultMirrors = []string{
	"https://yts.mx",
	"https://yts.rs",
	"https://yts.am",
}

const searchTimeout = 8 * time.Second

// Driver is the hand-coded YTS driver. Movies only; the API takes an IMDB
// id directly, so no relevance risk on that path.
type Driver struct {
	mirrors []string
	getter  common.Getter
	logger  zerolog.Logger
}

// New creates the driver. Empty mirrors fall back to the built-in list.
func New(mirrors []string, getter common.Getter, logger zerolog.Logger) *Driver {
	if len(mirrors) == 0 {
		mirrors = defaultMirrors
	}
	return &Driver{
		mirrors: mirrors,
		getter:  getter,
		logger:  logger.With().Str("driver", "yts").Logger(),
	}
}

func (d *Driver) Name() string { return "yts" }

func (d *Driver) Supports(ct types.ContentType) bool { return ct == types.ContentMovie }

func (d *Driver) RequiresSolver() bool { return false }

type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		MovieCount int `json:"movie_count"`
		Movies     []struct {
			Title     string `json:"title"`
			TitleLong string `json:"title_long"`
			IMDBCode  string `json:"imdb_code"`
			Year      int    `json:"year"`
			Torrents  []struct {
				Hash         string `json:"hash"`
				Quality      string `json:"quality"`
				Type         string `json:"type"`
				SizeBytes    int64  `json:"size_bytes"`
				Seeds        int    `json:"seeds"`
				DateUploaded int64  `json:"date_uploaded_unix"`
			} `json:"torrents"`
		} `json:"movies"`
	} `json:"data"`
}

// Search queries the movie API. Failures of any kind yield an empty list.
func (d *Driver) Search(ctx context.Context, q types.Query) []types.Result {
	if q.Type != types.ContentMovie {
		return nil
	}
	term := q.IMDBID
	if term == "" {
		term = q.Keywords
	}
	if strings.TrimSpace(term) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	path := "/api/v2/list_movies.json?limit=50&query_term=" + url.QueryEscape(term)

	var parsed apiResponse
	for _, mirror := range d.mirrors {
		var body string
		err := common.DoWithRetry(ctx, func() error {
			resp, err := d.getter.Get(ctx, strings.TrimSuffix(mirror, "/")+path)
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		})
		if err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			d.logger.Debug().Err(err).Str("mirror", mirror).Msg("Bad API payload")
			continue
		}
		if parsed.Status == "ok" {
			break
		}
		parsed = apiResponse{}
	}
	if parsed.Status != "ok" {
		return nil
	}

	var results []types.Result
	for _, movie := range parsed.Data.Movies {
		// The API fuzzy-matches query_term; when searching by IMDB id keep
		// exact matches only.
		if q.IMDBID != "" && !strings.EqualFold(movie.IMDBCode, q.IMDBID) {
			continue
		}
		for _, t := range movie.Torrents {
			hash, ok := types.NormalizeInfoHash(t.Hash)
			if !ok {
				continue
			}
			title := movie.TitleLong
			if title == "" {
				title = movie.Title
			}
			title = title + " " + t.Quality + " " + t.Type
			r := types.Result{
				InfoHash:   hash,
				Title:      strings.TrimSpace(title),
				Size:       t.SizeBytes,
				Seeders:    t.Seeds,
				Provider:   d.Name(),
				MagnetURI:  common.BuildMagnet(hash, movie.Title, common.DefaultTrackers),
				Resolution: common.DetectResolution(t.Quality),
				Type:       types.ContentMovie,
				IMDBID:     movie.IMDBCode,
			}
			if t.DateUploaded > 0 {
				r.UploadedAt = time.Unix(t.DateUploaded, 0)
			}
			results = append(results, r)
		}
	}
	return results
}
