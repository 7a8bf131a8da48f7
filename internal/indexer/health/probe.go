package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsieve/streamsieve/internal/indexer/definition"
	"github.com/streamsieve/streamsieve/internal/indexer/fetch"
	"github.com/streamsieve/streamsieve/internal/metrics"
)

// ProbeConfig controls one probe run.
type ProbeConfig struct {
	// BatchSize is how many least-recently-checked indexers one run covers.
	BatchSize int
	// MaxDomains caps how many mirrors are tried per indexer.
	MaxDomains int
	// Pause is the politeness delay between indexers.
	Pause time.Duration
}

// DefaultProbeConfig returns the default probe parameters.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		BatchSize:  5,
		MaxDomains: 5,
		Pause:      time.Second,
	}
}

// PageFetcher is the fetch surface the prober needs.
type PageFetcher interface {
	GetWithOptions(ctx context.Context, rawURL string, allowSolver bool) (*fetch.Response, error)
}

// Canonical probe inputs. Every probe resolves the indexer's first search
// path with the same query so responses are comparable across runs.
var probeContext = definition.TemplateContext{
	Keywords: "avengers",
	Query: definition.QueryContext{
		Keywords:    "avengers",
		IMDBID:      "tt4154796",
		IMDBIDShort: "4154796",
		Season:      1,
		Episode:     1,
		Page:        1,
	},
}

// Prober walks indexers least-recently-checked first and records one check
// outcome per indexer per run.
type Prober struct {
	store   *Store
	fetcher PageFetcher
	engine  *definition.Engine
	config  ProbeConfig
	logger  zerolog.Logger
}

// NewProber creates a prober.
func NewProber(store *Store, fetcher PageFetcher, cfg ProbeConfig, logger zerolog.Logger) *Prober {
	def := DefaultProbeConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxDomains <= 0 {
		cfg.MaxDomains = def.MaxDomains
	}
	if cfg.Pause <= 0 {
		cfg.Pause = def.Pause
	}
	return &Prober{
		store:   store,
		fetcher: fetcher,
		engine:  definition.NewEngine(),
		config:  cfg,
		logger:  logger.With().Str("component", "health-probe").Logger(),
	}
}

// Run executes one probe pass. Each row is committed as soon as its check
// finishes, so a run cut short by ctx keeps the progress it made.
func (p *Prober) Run(ctx context.Context) error {
	ids, err := p.store.ListIDsByLastChecked(ctx)
	if err != nil {
		return err
	}
	if len(ids) > p.config.BatchSize {
		ids = ids[:p.config.BatchSize]
	}

	p.logger.Info().Int("batch", len(ids)).Msg("Starting probe run")

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			p.logger.Warn().Int("remaining", len(ids)-i).Msg("Probe run cut short by deadline")
			return err
		}

		result := p.probeOne(ctx, id)
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// A deadline mid-probe makes the outcome meaningless; do not
			// charge the indexer for it.
			return ctx.Err()
		}

		if err := p.store.RecordCheck(ctx, id, result); err != nil {
			p.logger.Error().Err(err).Str("indexer", id).Msg("Failed to record probe result")
		}
		p.observe(ctx, id, result)

		if i < len(ids)-1 {
			select {
			case <-time.After(p.config.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	p.logger.Info().Int("batch", len(ids)).Msg("Probe run complete")
	return nil
}

// probeOne tries the indexer's mirrors in order until one answers cleanly.
// The solver gets at most one attempt across the whole mirror list.
func (p *Prober) probeOne(ctx context.Context, id string) CheckResult {
	row, err := p.store.Get(ctx, id)
	if err != nil {
		return CheckResult{Err: err.Error()}
	}

	domains := orderDomains(row.Domains, row.WorkingDomain)
	if len(domains) > p.config.MaxDomains {
		domains = domains[:p.config.MaxDomains]
	}
	if len(domains) == 0 {
		return CheckResult{Err: "no domains"}
	}
	if len(row.SearchPaths) == 0 {
		return CheckResult{Err: "no search paths"}
	}

	path, err := p.engine.Resolve(row.SearchPaths[0].Path, &probeContext)
	if err != nil {
		return CheckResult{Err: "unusable search path: " + err.Error()}
	}

	var (
		lastErr     string
		solverTried bool
		usedSolver  bool
	)
	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			return CheckResult{Err: err.Error()}
		}

		resp, err := p.fetcher.GetWithOptions(ctx, joinURL(domain, path), !solverTried)
		if resp != nil && resp.UsedSolver {
			solverTried = true
		}
		if err != nil {
			lastErr = err.Error()
			continue
		}
		if resp.Blocked() {
			lastErr = "blocked: " + string(resp.Tag)
			continue
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Sprintf("status %d", resp.StatusCode)
			continue
		}

		usedSolver = resp.UsedSolver
		return CheckResult{
			Success:       true,
			ResponseMs:    resp.Elapsed.Milliseconds(),
			WorkingDomain: domain,
			UsedSolver:    usedSolver,
		}
	}

	return CheckResult{Err: lastErr, UsedSolver: solverTried}
}

func (p *Prober) observe(ctx context.Context, id string, result CheckResult) {
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	metrics.ProbeResultsTotal.WithLabelValues(id, outcome).Inc()

	row, err := p.store.Get(ctx, id)
	if err != nil {
		return
	}
	enabled := 0.0
	if row.Enabled && !row.IsDisabled(time.Now()) {
		enabled = 1.0
	}
	metrics.IndexerEnabled.WithLabelValues(id).Set(enabled)
}

// joinURL glues a base mirror URL and a resolved search path.
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

// orderDomains puts the last known working domain first, preserving the
// definition's preference order for the rest.
func orderDomains(domains []string, working string) []string {
	working = strings.TrimSpace(working)
	if working == "" {
		return domains
	}
	out := make([]string, 0, len(domains))
	found := false
	for _, d := range domains {
		if d == working {
			found = true
			continue
		}
		out = append(out, d)
	}
	if !found {
		return domains
	}
	return append([]string{working}, out...)
}
