// Package eztv queries the EZTV series API.
package eztv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/providers/common"
)

var defaultMirrors = []string{
	"https://eztvx.to",
	"https://eztv.re",
	"https://eztv.wf",
}

const searchTimeout = 8 * time.Second

// Driver is the hand-coded EZTV driver. Series only; the API is keyed by
// numeric IMDB id, so a query without one returns nothing.
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
		logger:  logger.With().Str("driver", "eztv").Logger(),
	}
}

func (d *Driver) Name() string { return "eztv" }

func (d *Driver) Supports(ct types.ContentType) bool { return ct == types.ContentSeries }

func (d *Driver) RequiresSolver() bool { return false }

type apiResponse struct {
	TorrentsCount int `json:"torrents_count"`
	Torrents      []struct {
		Title     string `json:"title"`
		Hash      string `json:"hash"`
		MagnetURL string `json:"magnet_url"`
		Season    string `json:"season"`
		Episode   string `json:"episode"`
		SizeBytes string `json:"size_bytes"`
		Seeds     int    `json:"seeds"`
		Released  int64  `json:"date_released_unix"`
	} `json:"torrents"`
}

// Search queries the series API. Failures of any kind yield an empty list.
func (d *Driver) Search(ctx context.Context, q types.Query) []types.Result {
	if q.Type != types.ContentSeries {
		return nil
	}
	numericID := strings.TrimPrefix(q.IMDBID, "tt")
	if numericID == "" || numericID == q.IMDBID {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/get-torrents?imdb_id=%s&limit=100&page=1", numericID)

	var parsed apiResponse
	found := false
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
		found = true
		break
	}
	if !found {
		return nil
	}

	var results []types.Result
	for _, t := range parsed.Torrents {
		hash, ok := types.NormalizeInfoHash(t.Hash)
		if !ok {
			continue
		}
		season, _ := strconv.Atoi(t.Season)
		episode, _ := strconv.Atoi(t.Episode)
		if q.Season > 0 && season != q.Season {
			continue
		}
		if q.Episode > 0 && episode != 0 && episode != q.Episode {
			continue
		}
		size, _ := strconv.ParseInt(t.SizeBytes, 10, 64)

		magnet := t.MagnetURL
		if magnet == "" {
			magnet = common.BuildMagnet(hash, t.Title, common.DefaultTrackers)
		}
		r := types.Result{
			InfoHash:   hash,
			Title:      strings.TrimSpace(t.Title),
			Size:       size,
			Seeders:    t.Seeds,
			Provider:   d.Name(),
			MagnetURI:  magnet,
			Resolution: common.DetectResolution(t.Title),
			Type:       types.ContentSeries,
			IMDBID:     q.IMDBID,
			Season:     season,
			Episode:    episode,
		}
		if t.Released > 0 {
			r.UploadedAt = time.Unix(t.Released, 0)
		}
		results = append(results, r)
	}
	return results
}
