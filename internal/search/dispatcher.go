package search

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/streamsieve/streamsieve/internal/indexer/definition"
	"github.com/streamsieve/streamsieve/internal/indexer/types"
	"github.com/streamsieve/streamsieve/internal/metrics"
	"github.com/streamsieve/streamsieve/internal/providers/common"
)

// SmartProvider is the provider-list sentinel that selects automatic indexer
// tiering.
const SmartProvider = "smart"

// TitleResolver turns an IMDB id into a display title.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, contentType types.ContentType, imdbID string) (string, error)
}

// HealthSource is the slice of the health store the dispatcher reads.
type HealthSource interface {
	ListCandidates(ctx context.Context, minRate float64, limit int) ([]*types.HealthRow, error)
	Get(ctx context.Context, id string) (*types.HealthRow, error)
}

// DefinitionSource resolves indexer definitions by id.
type DefinitionSource interface {
	GetDefinition(id string) (*definition.Definition, error)
}

// Config holds the dispatcher tuning knobs.
type Config struct {
	// DefaultDeadline applies when a request carries none.
	DefaultDeadline time.Duration
	// CandidateLimit caps how many health rows the smart path considers.
	CandidateLimit int
	// FastTierSize and SlowTierSize cap the two tiers.
	FastTierSize int
	SlowTierSize int
	// MinSuccessRate excludes indexers below this success percentage.
	MinSuccessRate float64
	// SlowTierSkipCount skips the slow tier when the first wave already
	// produced this many results.
	SlowTierSkipCount int
	// MaxParallel bounds concurrently running drivers.
	MaxParallel int
	Relevance   RelevanceConfig
}

// DefaultConfig returns the default dispatcher tuning.
func DefaultConfig() Config {
	return Config{
		DefaultDeadline:   15 * time.Second,
		CandidateLimit:    30,
		FastTierSize:      8,
		SlowTierSize:      5,
		MinSuccessRate:    20,
		SlowTierSkipCount: 10,
		MaxParallel:       16,
	}
}

// Request is one aggregated search.
type Request struct {
	ID        string // IMDB id ("tt...") or Kitsu id ("kitsu:...")
	Type      types.ContentType
	Season    int
	Episode   int
	Title     string   // optional; resolved from ID when empty
	Providers []string // empty or containing "smart" selects the smart path
	Deadline  time.Duration
}

// Dispatcher fans a search out across selected indexers and merges the
// results.
type Dispatcher struct {
	health      HealthSource
	definitions DefinitionSource
	getter      common.Getter
	handCoded   []Driver
	resolver    TitleResolver
	filter      *RelevanceFilter
	config      Config
	sem         *semaphore.Weighted
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher. resolver may be nil; searches then run
// with the raw id as the query and skip the relevance filter.
func NewDispatcher(
	healthStore HealthSource,
	definitions DefinitionSource,
	getter common.Getter,
	handCoded []Driver,
	resolver TitleResolver,
	cfg Config,
	logger zerolog.Logger,
) *Dispatcher {
	def := DefaultConfig()
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = def.DefaultDeadline
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = def.CandidateLimit
	}
	if cfg.FastTierSize <= 0 {
		cfg.FastTierSize = def.FastTierSize
	}
	if cfg.SlowTierSize <= 0 {
		cfg.SlowTierSize = def.SlowTierSize
	}
	if cfg.MinSuccessRate <= 0 {
		cfg.MinSuccessRate = def.MinSuccessRate
	}
	if cfg.SlowTierSkipCount <= 0 {
		cfg.SlowTierSkipCount = def.SlowTierSkipCount
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	return &Dispatcher{
		health:      healthStore,
		definitions: definitions,
		getter:      getter,
		handCoded:   handCoded,
		resolver:    resolver,
		filter:      NewRelevanceFilter(cfg.Relevance),
		config:      cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxParallel)),
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

var imdbIDPattern = regexp.MustCompile(`^tt\d{7,}$`)

// Search runs one aggregated search. It always returns within the request
// deadline; drivers still running past it contribute nothing. The only
// caller-visible failure is an empty list.
func (d *Dispatcher) Search(ctx context.Context, req Request) []types.Result {
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = d.config.DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	query, gated := d.buildQuery(ctx, req)

	var results []types.Result
	if manual := manualProviders(req.Providers); len(manual) > 0 {
		results = d.manualSearch(ctx, manual, query)
	} else {
		results = d.smartSearch(ctx, query)
	}

	if gated {
		before := len(results)
		results = d.filter.Apply(results, query.Keywords, query.IMDBID)
		d.logger.Debug().
			Int("before", before).
			Int("after", len(results)).
			Msg("Applied relevance filter")
	}

	results = dedup(results)
	metrics.SearchResultsReturned.Observe(float64(len(results)))

	d.logger.Info().
		Str("id", req.ID).
		Str("type", string(req.Type)).
		Int("results", len(results)).
		Bool("filtered", gated).
		Msg("Search complete")
	return results
}

// buildQuery resolves the display title and assembles the driver query. The
// second return reports whether the relevance filter can be applied: a title
// we failed to resolve leaves the result set ungated.
func (d *Dispatcher) buildQuery(ctx context.Context, req Request) (types.Query, bool) {
	q := types.Query{
		Keywords: strings.TrimSpace(req.Title),
		Season:   req.Season,
		Episode:  req.Episode,
		Type:     req.Type,
	}
	if imdbIDPattern.MatchString(req.ID) {
		q.IMDBID = req.ID
	} else if rest, ok := strings.CutPrefix(req.ID, "kitsu:"); ok {
		q.KitsuID = rest
	}

	if q.Keywords != "" {
		return q, true
	}
	if q.IMDBID != "" && d.resolver != nil {
		title, err := d.resolver.ResolveTitle(ctx, req.Type, q.IMDBID)
		if err == nil && title != "" {
			q.Keywords = title
			return q, true
		}
		d.logger.Warn().Err(err).Str("id", q.IMDBID).Msg("Title resolution failed, searching ungated")
	}
	q.Keywords = req.ID
	return q, false
}

// smartSearch picks candidates from the health store, tiers them by solver
// need, and fans out. The slow tier only runs when the first wave came up
// short.
func (d *Dispatcher) smartSearch(ctx context.Context, q types.Query) []types.Result {
	fast, slow := d.tieredDrivers(ctx, q.Type)

	firstWave := append(fast, d.handCodedFor(q.Type)...)
	results := d.runWave(ctx, firstWave, q)

	if len(results) >= d.config.SlowTierSkipCount {
		d.logger.Debug().Int("results", len(results)).Msg("Skipping slow tier")
		return results
	}
	if len(slow) > 0 && ctx.Err() == nil {
		results = append(results, d.runWave(ctx, slow, q)...)
	}
	return results
}

// tieredDrivers loads candidate rows and partitions them into the fast tier
// (observed to work without the solver) and slow tier (everything else).
func (d *Dispatcher) tieredDrivers(ctx context.Context, ct types.ContentType) (fast, slow []Driver) {
	rows, err := d.health.ListCandidates(ctx, d.config.MinSuccessRate, d.config.CandidateLimit)
	if err != nil {
		// Store outage: the hand-coded drivers still run.
		d.logger.Error().Err(err).Msg("Health store unavailable, using hand-coded drivers only")
		return nil, nil
	}

	now := time.Now()
	for _, row := range rows {
		if !row.SupportsContent(ct) || row.IsDisabled(now) {
			continue
		}
		def, err := d.definitions.GetDefinition(row.ID)
		if err != nil {
			continue
		}
		driver := NewGenericDriver(row, def, d.getter, d.logger)
		if row.RequiresSolver == types.SolverNo {
			if len(fast) < d.config.FastTierSize {
				fast = append(fast, driver)
			}
		} else if len(slow) < d.config.SlowTierSize {
			slow = append(slow, driver)
		}
	}
	return fast, slow
}

// manualSearch uses exactly the named providers: a hand-coded driver when
// one exists under that name, the generic driver otherwise.
func (d *Dispatcher) manualSearch(ctx context.Context, providers []string, q types.Query) []types.Result {
	byName := make(map[string]Driver, len(d.handCoded))
	for _, drv := range d.handCoded {
		byName[drv.Name()] = drv
	}

	var drivers []Driver
	for _, id := range providers {
		if drv, ok := byName[id]; ok {
			drivers = append(drivers, drv)
			continue
		}
		row, err := d.health.Get(ctx, id)
		if err != nil {
			d.logger.Warn().Str("provider", id).Msg("Unknown provider requested")
			continue
		}
		def, err := d.definitions.GetDefinition(id)
		if err != nil {
			d.logger.Warn().Str("provider", id).Msg("No definition for requested provider")
			continue
		}
		drivers = append(drivers, NewGenericDriver(row, def, d.getter, d.logger))
	}
	return d.runWave(ctx, drivers, q)
}

func (d *Dispatcher) handCodedFor(ct types.ContentType) []Driver {
	var out []Driver
	for _, drv := range d.handCoded {
		if drv.Supports(ct) {
			out = append(out, drv)
		}
	}
	return out
}

// runWave fans the query out to a set of drivers and collects whatever
// arrives before ctx expires. Late results are discarded with their driver.
func (d *Dispatcher) runWave(ctx context.Context, drivers []Driver, q types.Query) []types.Result {
	if len(drivers) == 0 {
		return nil
	}

	out := make(chan []types.Result, len(drivers))
	for _, drv := range drivers {
		go func(drv Driver) {
			if err := d.sem.Acquire(ctx, 1); err != nil {
				out <- nil
				return
			}
			defer d.sem.Release(1)

			start := time.Now()
			results := drv.Search(ctx, q)
			elapsed := time.Since(start)

			status := "ok"
			if len(results) == 0 {
				status = "empty"
			}
			metrics.DriverRequestsTotal.WithLabelValues(drv.Name(), status).Inc()
			metrics.DriverRequestDuration.WithLabelValues(drv.Name()).Observe(elapsed.Seconds())

			out <- results
		}(drv)
	}

	var all []types.Result
	for pending := len(drivers); pending > 0; pending-- {
		select {
		case results := <-out:
			all = append(all, results...)
		case <-ctx.Done():
			return all
		}
	}
	return all
}

// dedup canonicalizes infoHashes, drops invalid ones, and keeps the first
// occurrence per hash.
func dedup(results []types.Result) []types.Result {
	seen := make(map[string]bool, len(results))
	out := make([]types.Result, 0, len(results))
	for _, r := range results {
		hash, ok := types.NormalizeInfoHash(r.InfoHash)
		if !ok || seen[hash] {
			continue
		}
		seen[hash] = true
		r.InfoHash = hash
		out = append(out, r)
	}
	return out
}

// manualProviders strips the smart sentinel; an empty result selects the
// smart path.
func manualProviders(providers []string) []string {
	var out []string
	for _, p := range providers {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == SmartProvider {
			return nil
		}
		out = append(out, p)
	}
	return out
}
