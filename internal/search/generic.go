package search

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/definition"
	"github.com/streamsieve/streamsieve/internal/indexer/fetch"
	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/providers/common"
)

const genericDriverTimeout = 10 * time.Second

// GenericDriver runs searches for any indexer that has a definition: it
// resolves the search path template, walks the mirrors until one answers,
// and extracts rows with the definition's selectors.
type GenericDriver struct {
	row    *types.HealthRow
	def    *definition.Definition
	engine *definition.Engine
	getter common.Getter
	logger zerolog.Logger
}

// NewGenericDriver builds a driver from an indexer's health row and parsed
// definition.
func NewGenericDriver(row *types.HealthRow, def *definition.Definition, getter common.Getter, logger zerolog.Logger) *GenericDriver {
	return &GenericDriver{
		row:    row,
		def:    def,
		engine: definition.NewEngine(),
		getter: getter,
		logger: logger.With().Str("driver", row.ID).Logger(),
	}
}

func (d *GenericDriver) Name() string { return d.row.ID }

func (d *GenericDriver) Supports(ct types.ContentType) bool { return d.row.SupportsContent(ct) }

func (d *GenericDriver) RequiresSolver() bool { return d.row.RequiresSolver == types.SolverYes }

// Search resolves the first usable search path against each mirror in turn.
// Failures of any kind yield an empty list.
func (d *GenericDriver) Search(ctx context.Context, q types.Query) []types.Result {
	if len(d.row.SearchPaths) == 0 || len(d.row.Domains) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, genericDriverTimeout)
	defer cancel()

	tmplCtx := &definition.TemplateContext{
		Keywords: q.Keywords,
		Query: definition.QueryContext{
			Keywords:    q.Keywords,
			IMDBID:      q.IMDBID,
			IMDBIDShort: strings.TrimPrefix(q.IMDBID, "tt"),
			Season:      q.Season,
			Episode:     q.Episode,
			Page:        1,
		},
	}

	for _, sp := range d.row.SearchPaths {
		path, err := d.engine.Resolve(sp.Path, tmplCtx)
		if err != nil {
			d.logger.Debug().Err(err).Str("path", sp.Path).Msg("Unusable search path")
			continue
		}
		if sp.Response != types.ResponseHTML {
			// Non-HTML definitions need per-format field mapping the generic
			// extractor does not have; those indexers get hand-coded drivers.
			continue
		}

		for _, domain := range orderMirrors(d.row.Domains, d.row.WorkingDomain) {
			if ctx.Err() != nil {
				return nil
			}
			resp, err := d.getter.Get(ctx, joinURL(domain, path))
			if err != nil {
				continue
			}
			if results := d.extract(resp, q); len(results) > 0 {
				return results
			}
		}
	}
	return nil
}

// extract applies the definition's row and field selectors to an HTML page.
func (d *GenericDriver) extract(resp *fetch.Response, q types.Query) []types.Result {
	rowSel := d.def.Search.Rows.Selector
	if rowSel == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if err != nil {
		return nil
	}
	if remove := d.def.Search.Rows.Remove; remove != "" {
		doc.Find(remove).Remove()
	}

	var results []types.Result
	doc.Find(rowSel).Each(func(i int, row *goquery.Selection) {
		if i < d.def.Search.Rows.After {
			return
		}
		r, ok := d.extractRow(row, q)
		if ok {
			results = append(results, r)
		}
	})
	return results
}

func (d *GenericDriver) extractRow(row *goquery.Selection, q types.Query) (types.Result, bool) {
	title := d.fieldValue(row, "title")
	if title == "" {
		return types.Result{}, false
	}

	magnet := d.fieldValue(row, "magnet")
	if magnet == "" {
		magnet = d.fieldValue(row, "download")
	}
	rawHash := d.fieldValue(row, "infohash")
	if rawHash == "" && magnet != "" {
		rawHash = common.InfoHashFromMagnet(magnet)
	}
	hash, ok := types.NormalizeInfoHash(rawHash)
	if !ok {
		return types.Result{}, false
	}
	if magnet == "" {
		magnet = common.BuildMagnet(hash, title, common.DefaultTrackers)
	}

	r := types.Result{
		InfoHash:   hash,
		Title:      common.CleanHTMLText(title),
		Size:       common.ParseHumanSize(d.fieldValue(row, "size")),
		Seeders:    common.ParseInt(d.fieldValue(row, "seeders")),
		Provider:   d.row.ID,
		MagnetURI:  magnet,
		Resolution: common.DetectResolution(title),
		Type:       q.Type,
		IMDBID:     q.IMDBID,
		KitsuID:    q.KitsuID,
		Season:     q.Season,
		Episode:    q.Episode,
	}
	if date := d.fieldValue(row, "date"); date != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, date); err == nil {
				r.UploadedAt = t
				break
			}
		}
	}
	return r, true
}

// fieldValue evaluates one field selector against a row. A static text field
// wins; otherwise the selector's attribute or text content is used.
func (d *GenericDriver) fieldValue(row *goquery.Selection, name string) string {
	field, ok := d.def.Search.Fields[name]
	if !ok {
		return ""
	}
	if field.Text != "" {
		return field.Text
	}
	sel := row
	if field.Selector != "" {
		sel = row.Find(field.Selector).First()
	}
	if field.Attribute != "" {
		val, _ := sel.Attr(field.Attribute)
		return strings.TrimSpace(val)
	}
	return strings.TrimSpace(sel.Text())
}

// orderMirrors puts the last known working domain first.
func orderMirrors(domains []string, working string) []string {
	if working == "" {
		return domains
	}
	out := make([]string, 0, len(domains))
	out = append(out, working)
	for _, d := range domains {
		if d != working {
			out = append(out, d)
		}
	}
	return out
}

// joinURL glues a mirror base URL and a resolved search path.
func joinURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
