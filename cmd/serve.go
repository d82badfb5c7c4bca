package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/adapter/comprasnet"
	"github.com/sells-group/procsearch/internal/adapter/pncp"
	"github.com/sells-group/procsearch/internal/cache"
	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/consolidate"
	"github.com/sells-group/procsearch/internal/filter"
	"github.com/sells-group/procsearch/internal/httpapi"
	"github.com/sells-group/procsearch/internal/jobqueue"
	"github.com/sells-group/procsearch/internal/objectstore"
	"github.com/sells-group/procsearch/internal/persistence"
	"github.com/sells-group/procsearch/internal/pipeline"
	"github.com/sells-group/procsearch/internal/resilience"
	"github.com/sells-group/procsearch/internal/sector"
	"github.com/sells-group/procsearch/internal/searchstate"
	anthropicpkg "github.com/sells-group/procsearch/pkg/anthropic"
)

// startupRecoveryGrace is how long a non-terminal search session must sit
// untouched before a restart marks it timed out (searchstate.RunStartupRecovery).
const startupRecoveryGrace = 10 * time.Minute

// sweepInterval is how often searchstate.Registry evicts expired trackers.
const sweepInterval = time.Minute

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search HTTP/SSE server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := buildServerEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := searchstate.RunStartupRecovery(ctx, env.Store, startupRecoveryGrace); err != nil {
			zap.L().Warn("serve: startup recovery sweep failed", zap.Error(err))
		}
		stopSweeper := env.Registry.StartSweeper(sweepInterval)
		defer stopSweeper()

		srv := httpapi.New(cfg, env.Pipeline, env.Registry, env.Store, env.Cache, env.Sources)
		srv.Breakers = env.Breakers
		srv.RateLimiter = env.RateLimiter
		srv.Rejections = env.Rejections
		srv.SetReady(true)

		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// serverEnv holds every long-lived collaborator the serve command
// composes; the worker command builds its own.
type serverEnv struct {
	Store       *persistence.SearchStore
	Cache       *cache.Cascade
	Registry    *searchstate.Registry
	Pipeline    *pipeline.SearchPipeline
	Breakers    *resilience.SourceBreakers
	RateLimiter *resilience.RateLimiter
	Rejections  *filter.RejectionTracker
	Sources     httpapi.SourceSelector
	Dispatcher  *jobqueue.Dispatcher
	Worker      *jobqueue.Worker

	redisClient *redis.Client
}

func (e *serverEnv) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
	if e.redisClient != nil {
		_ = e.redisClient.Close()
	}
}

// buildServerEnv wires storage, cache, adapters, resilience, the job
// queue, and the search pipeline, following the teacher's initPipeline
// single-function composition-root shape.
func buildServerEnv(ctx context.Context) (*serverEnv, error) {
	store, err := persistence.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	if err != nil {
		return nil, eris.Wrap(err, "serve: connect store")
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "serve: migrate store")
	}
	cacheTier := cache.NewPostgresTier(store.Pool())
	if err := cacheTier.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "serve: migrate cache")
	}
	if err := cache.ValidateSchema(ctx, cacheTier, "search_cache"); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "serve: validate cache schema")
	}

	sectors, err := sector.LoadFile(cfg.Sectors.CatalogPath)
	if err != nil {
		store.Close()
		return nil, eris.Wrap(err, "serve: load sector catalog")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, parseErr := redis.ParseURL(cfg.Redis.URL)
		if parseErr != nil {
			store.Close()
			return nil, eris.Wrap(parseErr, "serve: parse redis.url")
		}
		redisClient = redis.NewClient(opts)
	}

	cascade := buildCascade(store, redisClient)

	circuitCfg := resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.CooldownSec)
	breakers := resilience.NewSourceBreakers(circuitCfg)

	var rateLimiter *resilience.RateLimiter
	if redisClient != nil {
		rateLimiter = resilience.NewRateLimiter(redisClient)
	}

	sources := buildSources(redisClient, circuitCfg, rateLimiter)
	for _, a := range sources().Enabled {
		if err := adapter.Validate(a); err != nil {
			store.Close()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return nil, eris.Wrap(err, "serve: adapter contract check")
		}
	}

	var anthropicClient anthropicpkg.Client
	if cfg.LLM.APIKey != "" {
		anthropicClient = anthropicpkg.NewClient(cfg.LLM.APIKey)
	}

	rejections := filter.NewRejectionTracker(200)
	var arbiter filter.Arbiter
	if cfg.LLM.ArbiterEnabled && anthropicClient != nil {
		sectorNames := make(map[string]string, len(sectors.IDs()))
		for _, id := range sectors.IDs() {
			sectorNames[id] = id
		}
		base := &filter.AnthropicArbiter{Client: anthropicClient, Model: cfg.LLM.ArbiterModel, SectorMap: sectorNames}
		if redisClient != nil {
			arbiter = filter.NewCachedArbiter(base, redisClient)
		} else {
			arbiter = base
		}
	}

	filterEngine := filter.NewEngine(cfg.Filter, cfg.Features, arbiter,
		filter.NewItemInspectionBudget(nil, cfg.Filter.ItemInspectMaxFetch, time.Duration(cfg.Filter.ItemFetchTimeoutSec)*time.Second, 256),
		rejections)

	var jobDispatcher *jobqueue.Dispatcher
	var worker *jobqueue.Worker
	var coordinator pipeline.JobCoordinator
	if redisClient != nil {
		queue := jobqueue.NewQueue(redisClient)
		results := jobqueue.NewResultStore(redisClient, time.Duration(cfg.JobQueue.ResultTTLMin)*time.Minute)

		objects, objErr := objectstore.New(cfg.Server.ObjectStorageURL, "")
		if objErr != nil {
			zap.L().Warn("serve: object store unavailable, report downloads disabled", zap.Error(objErr))
		}

		worker = &jobqueue.Worker{
			Queue:   queue,
			Results: results,
			Redis:   redisClient,
			Reports: jobqueue.ReportGenerator{},
		}
		if objErr == nil {
			worker.Objects = objects
		}
		if anthropicClient != nil {
			worker.Summaries = &jobqueue.AnthropicSummaryGenerator{Client: anthropicClient, Model: cfg.LLM.SummaryModel}
		}
		jobDispatcher = &jobqueue.Dispatcher{Queue: queue, Inline: worker}
		coordinator = &jobqueue.Coordinator{Dispatcher: jobDispatcher, Results: results}
	}

	var summarizer pipeline.SummaryGenerator
	if anthropicClient != nil {
		summarizer = &jobqueue.AnthropicSummaryGenerator{Client: anthropicClient, Model: cfg.LLM.SummaryModel}
	}

	searchPipeline := &pipeline.SearchPipeline{
		Cfg:          cfg,
		Sectors:      sectors,
		Consolidator: consolidate.New(),
		FilterEngine: filterEngine,
		Cache:        cascade,
		Summarizer:   summarizer,
		Jobs:         coordinator,
		ResultStore:  store,
		Quota:        nil, // external collaborator (QuotaConfig's doc comment); not implemented in this deployment
	}

	registry := searchstate.NewRegistry(time.Duration(cfg.Server.SearchMaxDurationSec)*time.Second, redisClient, 64)

	return &serverEnv{
		Store:       store,
		Cache:       cascade,
		Registry:    registry,
		Pipeline:    searchPipeline,
		Breakers:    breakers,
		RateLimiter: rateLimiter,
		Rejections:  rejections,
		Sources:     sources,
		Dispatcher:  jobDispatcher,
		Worker:      worker,
		redisClient: redisClient,
	}, nil
}

// buildCascade assembles the three-tier cache in read order: Postgres
// (slowest, most durable) first so PostgresTier.DegradedStats always has
// the full picture, then Redis, then the local file tier as the
// both-Postgres-and-Redis-down fallback.
func buildCascade(store *persistence.SearchStore, redisClient *redis.Client) *cache.Cascade {
	var tiers []cache.Tier
	tiers = append(tiers, cache.NewPostgresTier(store.Pool()))
	if redisClient != nil {
		tiers = append(tiers, cache.NewRedisTier(redisClient))
	}
	if cfg.Cache.LocalDir != "" {
		if fileTier, err := cache.NewFileTier(cfg.Cache.LocalDir); err == nil {
			tiers = append(tiers, fileTier)
		} else {
			zap.L().Warn("serve: file cache tier unavailable", zap.Error(err))
		}
	}
	return cache.NewCascade(cfg.Cache.HotAccessThreshold, cfg.Cache.WarmAccessThreshold, tiers...)
}

// buildSources constructs the enabled adapter set plus fallback from
// config, each wired with its own distributed circuit breaker, shared
// rate limiter, and adaptive timeout per §4.1/§4.2.
func buildSources(redisClient *redis.Client, circuitCfg resilience.CircuitBreakerConfig, limiter *resilience.RateLimiter) httpapi.SourceSelector {
	var circuitStore resilience.CircuitStore
	if redisClient != nil {
		circuitStore = resilience.NewRedisCircuitStore(redisClient)
	}
	maxCooldown := time.Duration(cfg.Circuit.MaxCooldownSec) * time.Second

	build := func(srcCfg config.SourceConfig) adapter.Adapter {
		opts := adapter.HTTPClientOptions{
			Breaker: resilience.NewDistributedBreaker(srcCfg.Code, circuitCfg, maxCooldown, circuitStore),
			Limiter: limiter,
			Timeout: resilience.NewAdaptiveTimeout(0.2, time.Duration(srcCfg.TimeoutMs)*time.Millisecond, 60*time.Second),
			Retry: resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs,
				cfg.Retry.MaxBackoffMs, cfg.Retry.Multiplier, cfg.Retry.JitterFraction),
		}
		switch srcCfg.Code {
		case "pncp":
			return pncp.New(pncp.Config{BaseURL: srcCfg.BaseURL, HTTP: opts})
		case "comprasnet":
			return comprasnet.New(comprasnet.Config{BaseURL: srcCfg.BaseURL, HTTP: opts})
		default:
			zap.L().Warn("serve: unknown source code, skipping", zap.String("code", srcCfg.Code))
			return nil
		}
	}

	return func() pipeline.Sources {
		var enabled []adapter.Adapter
		var fallback adapter.Adapter
		for _, srcCfg := range cfg.Sources.Sources {
			if !srcCfg.Enabled {
				continue
			}
			a := build(srcCfg)
			if a == nil {
				continue
			}
			if srcCfg.Code == cfg.Sources.Fallback {
				fallback = a
			}
			enabled = append(enabled, a)
		}
		return pipeline.Sources{Enabled: enabled, Fallback: fallback}
	}
}
