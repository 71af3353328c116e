package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"jobmate/campaign-service/internal/campaign"
	"jobmate/campaign-service/internal/config"
	"jobmate/campaign-service/internal/db"
	"jobmate/campaign-service/internal/dispatcher"
	"jobmate/campaign-service/internal/events"
	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/matcher"
	"jobmate/campaign-service/internal/metrics"
	"jobmate/campaign-service/internal/notify"
	"jobmate/campaign-service/internal/prepkit"
	"jobmate/campaign-service/internal/scheduler"
	"jobmate/campaign-service/internal/scraper"
	"jobmate/campaign-service/internal/store"
)

// app holds every wired component of the service.
type app struct {
	cfg        *config.Config
	log        logger.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	store      store.Store
	redis      *redis.Client
	bus        *events.Bus
	cards      *kanban.Service
	campaigns  *campaign.Service
	scheduler  *scheduler.Scheduler
	dispatcher *dispatcher.Dispatcher
}

func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	// ── Storage ──────────────────────────────────────────────────────────────
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		log.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.store = store.NewPostgres(pool)
		log.Info("PostgreSQL connected")
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		a.store = store.NewMemory()
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	if cfg.Redis.URL != "" {
		log.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rdb
		log.Info("Redis connected")
	}

	var dedup store.DedupStore = a.store
	if a.redis != nil {
		dedup = store.NewSeenCache(a.store, a.redis, cfg.Redis.SeenTTL, log)
	}

	// ── Pipeline ─────────────────────────────────────────────────────────────
	a.bus = events.NewBus(a.metrics)
	a.cards = kanban.NewService(a.store, a.bus, log, kanban.WithMetrics(a.metrics))
	a.campaigns = campaign.NewService(a.store, log, campaign.WithDefaultInterval(cfg.Scheduler.DefaultInterval))

	// ── Scheduler ────────────────────────────────────────────────────────────
	syn := matcher.DefaultSynonyms()
	if cfg.Matching.SynonymsFile != "" {
		loaded, err := matcher.LoadSynonyms(cfg.Matching.SynonymsFile)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("synonyms: %w", err)
		}
		syn = loaded
	}
	a.scheduler = scheduler.New(
		scheduler.Config{
			TickSpec:      cfg.Scheduler.TickSpec,
			Workers:       cfg.Scheduler.Workers,
			SourceTimeout: cfg.Scheduler.SourceTimeout,
		},
		a.store, dedup, a.cards, matcher.NewScorer(syn), a.sources(), log,
		scheduler.WithMetrics(a.metrics),
		scheduler.WithPostings(a.store),
	)

	// ── Dispatcher ───────────────────────────────────────────────────────────
	generator, err := a.prepKitGenerator(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	opts := []dispatcher.Option{dispatcher.WithMetrics(a.metrics)}
	if cfg.Notifications.Enabled {
		opts = append(opts, dispatcher.WithNotifier(notify.NewRedisNotifier(a.redis, cfg.Notifications.Channel, log)))
	}
	a.dispatcher = dispatcher.New(dispatcher.Config{
		Consumers: cfg.Dispatcher.Consumers,
		Retry: dispatcher.RetryConfig{
			MaxAttempts:    cfg.Dispatcher.MaxAttempts,
			InitialBackoff: cfg.Dispatcher.InitialBackoff,
			MaxBackoff:     cfg.Dispatcher.MaxBackoff,
		},
		AttemptTimeout: cfg.Dispatcher.AttemptTimeout,
	}, a.cards, generator, log, opts...)

	return a, nil
}

func (a *app) sources() []scraper.Source {
	var sources []scraper.Source
	az := a.cfg.Sources.Adzuna
	if az.AppID != "" && az.AppKey != "" {
		sources = append(sources, scraper.NewRateLimited(
			scraper.NewAdzunaSource(az.AppID, az.AppKey, az.Country, a.log), az.RateLimit, 1))
	} else {
		a.log.Warn("Adzuna credentials not set; source disabled")
	}
	if rm := a.cfg.Sources.Remotive; rm.Enabled {
		sources = append(sources, scraper.NewRateLimited(scraper.NewRemotiveSource(rm.BaseURL), rm.RateLimit, 1))
	}
	if len(sources) == 0 {
		a.log.Warn("no job sources configured; scans will find nothing")
	}
	return sources
}

// prepKitGenerator returns nil when prep kits are disabled.
func (a *app) prepKitGenerator(ctx context.Context) (dispatcher.PrepKitGenerator, error) {
	pk := a.cfg.PrepKit
	switch pk.Provider {
	case config.PrepKitHTTP:
		return prepkit.NewHTTPGenerator(pk.URL, pk.APIKey), nil
	case config.PrepKitGemini:
		var artifacts prepkit.ArtifactStore = prepkit.NewMemoryArtifacts()
		if a.redis != nil {
			artifacts = prepkit.NewRedisArtifacts(a.redis, 0)
		}
		gen, err := prepkit.NewGeminiGenerator(ctx, prepkit.GeminiConfig{APIKey: pk.APIKey, Model: pk.Model}, artifacts)
		if err != nil {
			return nil, fmt.Errorf("prepkit: %w", err)
		}
		return gen, nil
	default:
		a.log.Info("prep kit generation disabled")
		return nil, nil
	}
}

func (a *app) close() {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		a.store.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("close", logger.Error(err))
	}
	_ = a.log.Sync()
}
