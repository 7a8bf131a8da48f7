// Command streamsieve runs the aggregated torrent meta-search service: the
// addon HTTP surface, the indexer health loop and the definition sync task.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/streamsieve/streamsieve/internal/api"
	"github.com/streamsieve/streamsieve/internal/config"
	"github.com/streamsieve/streamsieve/internal/database"
	"github.com/streamsieve/streamsieve/internal/indexer/definition"
	"github.com/streamsieve/streamsieve/internal/indexer/fetch"
	"github.com/streamsieve/streamsieve/internal/indexer/health"
	"github.com/streamsieve/streamsieve/internal/indexer/solver"
	"github.com/streamsieve/streamsieve/internal/logger"
	"github.com/streamsieve/streamsieve/internal/metadata"
	"github.com/streamsieve/streamsieve/internal/metrics"
	"github.com/streamsieve/streamsieve/internal/providers/eztv"
	"github.com/streamsieve/streamsieve/internal/providers/nyaa"
	"github.com/streamsieve/streamsieve/internal/providers/x1337"
	"github.com/streamsieve/streamsieve/internal/providers/yts"
	"github.com/streamsieve/streamsieve/internal/ratelimit"
	"github.com/streamsieve/streamsieve/internal/scheduler"
	"github.com/streamsieve/streamsieve/internal/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "streamsieve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Optional; real deployments set env directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Msg("Starting StreamSieve")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// Health store and protected fetch stack.
	healthStore := health.NewStoreWithConfig(db.Conn(), health.BreakerConfig{
		FailureThreshold: cfg.Health.FailureThreshold,
		Cooldown:         cfg.Health.Cooldown,
	}, log.Logger)

	solverClient := solver.New(solver.Config{
		URL:        cfg.Solver.URL,
		MaxTimeout: cfg.Solver.MaxTimeout,
	}, log.Logger)
	if solverClient != nil {
		defer solverClient.Close()
	}

	sessions := fetch.NewSessionStore(db.Conn(), log.Logger)
	fetcher := fetch.NewFetcher(sessions, solverClient, log.Logger)

	// Definition store.
	defCache, err := definition.NewCache(cfg.Definitions.CachePath, log.Logger)
	if err != nil {
		return err
	}
	defRepo := definition.NewRepository(definition.RepositoryConfig{
		BaseURL:   cfg.Definitions.BaseURL,
		Version:   cfg.Definitions.Version,
		UserAgent: cfg.Definitions.UserAgent,
	}, log.Logger)
	defStore := definition.NewStore(defCache, defRepo, healthStore, log.Logger)

	// Search dispatcher with the hand-coded drivers.
	resolver := metadata.NewResolver(metadata.Config{
		BaseURL:  cfg.Metadata.CinemetaURL,
		Timeout:  cfg.Metadata.Timeout,
		CacheTTL: cfg.Metadata.CacheTTL,
	}, log.Logger)

	handCoded := []search.Driver{
		yts.New(nil, fetcher, log.Logger),
		eztv.New(nil, fetcher, log.Logger),
		nyaa.New(nil, fetcher, log.Logger),
		x1337.New(nil, fetcher, log.Logger),
	}

	dispatcher := search.NewDispatcher(healthStore, defStore, fetcher, handCoded, resolver, search.Config{
		DefaultDeadline:   cfg.Search.InteractiveDeadline,
		CandidateLimit:    cfg.Search.CandidateLimit,
		FastTierSize:      cfg.Search.FastTierSize,
		SlowTierSize:      cfg.Search.SlowTierSize,
		MinSuccessRate:    cfg.Search.MinSuccessRate,
		SlowTierSkipCount: cfg.Search.SlowTierSkipCount,
		Relevance: search.RelevanceConfig{
			LongTitleThreshold: cfg.Search.RelevanceThreshold,
		},
	}, log.Logger)

	// Background tasks.
	prober := health.NewProber(healthStore, fetcher, health.ProbeConfig{
		BatchSize:  cfg.Health.BatchSize,
		MaxDomains: cfg.Health.MaxDomains,
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "definition-sync",
		Name:        "Definition Sync",
		Description: "Refresh indexer definitions from the upstream repository",
		Cron:        cfg.Definitions.SyncCron,
		Func:        defStore.Sync,
		RunOnStart:  true,
	}); err != nil {
		return err
	}
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "health-probe",
		Name:        "Indexer Health Probe",
		Description: "Probe the least recently checked indexers",
		Cron:        cfg.Health.Cron,
		Budget:      cfg.Health.CronBudget(),
		Func:        prober.Run,
	}); err != nil {
		return err
	}
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "session-prune",
		Name:        "Session Prune",
		Description: "Delete expired challenge sessions",
		Cron:        "*/30 * * * *",
		Func:        sessions.PruneExpired,
	}); err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	limiter := ratelimit.New(ratelimit.Config{
		RedisURL:  cfg.RateLimit.RedisURL,
		PerMinute: cfg.RateLimit.PerMinute,
		Burst:     cfg.RateLimit.Burst,
	}, log.Logger)
	defer limiter.Close()

	server := api.NewServer(db.Conn(), cfg, dispatcher, defStore, limiter, registry, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
